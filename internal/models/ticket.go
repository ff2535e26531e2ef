package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

type TicketStatus string

const (
	StatusPurchased  TicketStatus = "purchased"
	StatusConfigured TicketStatus = "configured"
	StatusGenerated  TicketStatus = "generated"
	StatusUsed       TicketStatus = "used"
)

type RecoveryStatus string

const (
	RecoveryPending   RecoveryStatus = "pending"
	RecoveryRecovered RecoveryStatus = "recovered"
	RecoveryExpired   RecoveryStatus = "expired"
)

const (
	LinkedViaAutoRecovery = "auto_recovery"

	CheckinAction = "checkin"
	UndoAction    = "undo_checkin"
)

// DateList is an ordered list of calendar days in YYYY-MM-DD form,
// stored as a JSON column so the Postgres and SQLite (test) dialects
// share one codec.
type DateList []string

func (d DateList) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal([]string(d))
}

func (d *DateList) Scan(src interface{}) error {
	if src == nil {
		*d = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("datelist: cannot scan %T", src)
	}
	if len(raw) == 0 {
		*d = nil
		return nil
	}
	return json.Unmarshal(raw, (*[]string)(d))
}

func (d DateList) Contains(day string) bool {
	for _, v := range d {
		if v == day {
			return true
		}
	}
	return false
}

// Without returns a copy with the given day removed.
func (d DateList) Without(day string) DateList {
	out := make(DateList, 0, len(d))
	for _, v := range d {
		if v != day {
			out = append(out, v)
		}
	}
	return out
}

type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	ID           string `bun:"id,pk" json:"id"`
	QRID         string `bun:"qr_id,unique,notnull" json:"qr_id"`
	OrderID      string `bun:"order_id,notnull" json:"order_id"`
	EventID      string `bun:"event_id,notnull" json:"event_id"`
	TicketTypeID string `bun:"ticket_type_id,notnull" json:"ticket_type_id"`

	// UserID empty means the ticket is unbound (guest purchase or
	// courtesy grant pending recovery).
	UserID string `bun:"user_id,nullzero" json:"user_id,omitempty"`

	CustomerName  string `bun:"customer_name,notnull" json:"customer_name"`
	CustomerEmail string `bun:"customer_email,notnull" json:"customer_email"`
	CustomerPhone string `bun:"customer_phone" json:"customer_phone,omitempty"`

	AttendeeName  string `bun:"attendee_name" json:"attendee_name,omitempty"`
	AttendeeEmail string `bun:"attendee_email" json:"attendee_email,omitempty"`
	AttendeePhone string `bun:"attendee_phone" json:"attendee_phone,omitempty"`

	Status       TicketStatus `bun:"status,notnull" json:"status"`
	IsCourtesy   bool         `bun:"is_courtesy" json:"is_courtesy"`
	CourtesyType string       `bun:"courtesy_type,nullzero" json:"courtesy_type,omitempty"`

	Price    float64 `bun:"price,notnull" json:"price"`
	Currency string  `bun:"currency,notnull" json:"currency"`

	AuthorizedDays DateList `bun:"authorized_days" json:"authorized_days"`
	UsedDays       DateList `bun:"used_days" json:"used_days"`

	LastCheckin    time.Time `bun:"last_checkin,nullzero" json:"last_checkin,omitempty"`
	LastCheckinBy  string    `bun:"last_checkin_by,nullzero" json:"last_checkin_by,omitempty"`
	LastCheckinDay string    `bun:"last_checkin_day,nullzero" json:"last_checkin_day,omitempty"`
	CanUndoUntil   time.Time `bun:"can_undo_until,nullzero" json:"can_undo_until,omitempty"`

	// Orphan recovery sidecar. Present (RecoveryStatus non-empty) iff
	// UserID is empty and auto-link was not disabled at issuance.
	RecoveryEmail      string         `bun:"recovery_email,nullzero" json:"recovery_email,omitempty"`
	RecoveryStatus     RecoveryStatus `bun:"recovery_status,nullzero" json:"recovery_status,omitempty"`
	RecoveryProvenance string         `bun:"recovery_provenance,nullzero" json:"recovery_provenance,omitempty"`
	RecoveredAt        time.Time      `bun:"recovered_at,nullzero" json:"recovered_at,omitempty"`
	RecoveryLinkedTo   string         `bun:"recovery_linked_to,nullzero" json:"recovery_linked_to,omitempty"`

	LinkedAt  time.Time `bun:"linked_at,nullzero" json:"linked_at,omitempty"`
	LinkedVia string    `bun:"linked_via,nullzero" json:"linked_via,omitempty"`

	QRCode []byte `bun:"qr_code" json:"-"`

	IssuedAt  time.Time `bun:"issued_at,notnull" json:"issued_at"`
	UpdatedAt time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// HasRecoveryData reports whether the orphan recovery sidecar is set.
func (t *Ticket) HasRecoveryData() bool {
	return t.RecoveryStatus != ""
}

// Configured reports whether the ticket is ready to be scanned: the
// attendee has been named and the QR/PDF materialized. Status "used" is
// ticket-level legacy; per-day consumption lives in UsedDays, so a used
// multi-day ticket still counts as configured here and the access policy
// decides whether another day remains.
func (t *Ticket) Configured() bool {
	if t.AttendeeName == "" {
		return false
	}
	return t.Status == StatusConfigured || t.Status == StatusGenerated || t.Status == StatusUsed
}

// Exhausted reports whether every authorized day has been consumed.
func (t *Ticket) Exhausted() bool {
	return len(t.AuthorizedDays) > 0 && len(t.UsedDays) >= len(t.AuthorizedDays)
}

// TicketLog is the append-only audit trail of check-in transitions.
type TicketLog struct {
	bun.BaseModel `bun:"table:ticket_logs"`

	ID          string    `bun:"id,pk" json:"id"`
	TicketID    string    `bun:"ticket_id,notnull" json:"ticket_id"`
	QRID        string    `bun:"qr_id,notnull" json:"qr_id"`
	EventID     string    `bun:"event_id,notnull" json:"event_id"`
	Action      string    `bun:"action,notnull" json:"action"`
	Day         string    `bun:"day,notnull" json:"day"`
	PerformedBy string    `bun:"performed_by,notnull" json:"performed_by"`
	PerformedAt time.Time `bun:"performed_at,notnull" json:"performed_at"`
}
