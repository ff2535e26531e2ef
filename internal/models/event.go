package models

import (
	"time"

	"github.com/uptrace/bun"
)

// AccessType is the day-authorization policy of a ticket type.
type AccessType string

const (
	AccessAllDays      AccessType = "all_days"
	AccessSpecificDays AccessType = "specific_days"
	AccessAnySingleDay AccessType = "any_single_day"
)

type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID        string    `bun:"id,pk" json:"id"`
	Name      string    `bun:"name,notnull" json:"name"`
	Slug      string    `bun:"slug,unique,notnull" json:"slug"`
	Location  string    `bun:"location" json:"location"`
	// Timezone is the IANA zone all calendar-day comparisons for this
	// event resolve in. Empty means UTC.
	Timezone  string    `bun:"timezone" json:"timezone"`
	StartDate time.Time `bun:"start_date,notnull" json:"start_date"`
	EndDate   time.Time `bun:"end_date,notnull" json:"end_date"`
	Published bool      `bun:"published" json:"published"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}

type TicketType struct {
	bun.BaseModel `bun:"table:ticket_types"`

	ID            string     `bun:"id,pk" json:"id"`
	EventID       string     `bun:"event_id,notnull" json:"event_id"`
	Name          string     `bun:"name,notnull" json:"name"`
	AccessType    AccessType `bun:"access_type,notnull" json:"access_type"`
	// AvailableDays is only meaningful for access_type = specific_days.
	AvailableDays DateList   `bun:"available_days" json:"available_days,omitempty"`
	Price         float64    `bun:"price,notnull" json:"price"`
	Currency      string     `bun:"currency,notnull" json:"currency"`
	IsCourtesy    bool       `bun:"is_courtesy" json:"is_courtesy"`
	SoldCount     int        `bun:"sold_count" json:"sold_count"`
}

type Preregistration struct {
	bun.BaseModel `bun:"table:preregistrations"`

	ID        string    `bun:"id,pk" json:"id"`
	EventID   string    `bun:"event_id,notnull" json:"event_id"`
	Name      string    `bun:"name,notnull" json:"name"`
	Email     string    `bun:"email,notnull" json:"email"`
	Phone     string    `bun:"phone" json:"phone,omitempty"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}
