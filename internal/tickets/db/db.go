package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"ms-boxoffice/internal/errs"
	"ms-boxoffice/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// ticketColumns is the mutable column set written back by ticket
// updates. Identity and issuance columns are immutable after creation.
var ticketColumns = []string{
	"user_id", "status",
	"attendee_name", "attendee_email", "attendee_phone",
	"used_days",
	"last_checkin", "last_checkin_by", "last_checkin_day", "can_undo_until",
	"recovery_status", "recovered_at", "recovery_linked_to",
	"linked_at", "linked_via",
	"qr_code", "updated_at",
}

// ---------------- EVENTS / TICKET TYPES ----------------

func (d *DB) GetEventByID(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().
		Model(&event).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.Wrap(errs.NotFound, fmt.Sprintf("event %s not found", id), err)
		}
		return nil, err
	}
	return &event, nil
}

func (d *DB) GetEventsByIDs(ctx context.Context, ids []string) ([]models.Event, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var events []models.Event
	err := d.Bun.NewSelect().
		Model(&events).
		Where("id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (d *DB) GetTicketTypeByID(ctx context.Context, id string) (*models.TicketType, error) {
	var tt models.TicketType
	err := d.Bun.NewSelect().
		Model(&tt).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.Wrap(errs.NotFound, fmt.Sprintf("ticket type %s not found", id), err)
		}
		return nil, err
	}
	return &tt, nil
}

// IncrementSoldCount bumps the sold counter on a ticket type. Called
// outside the issuance transaction: a failure here must not roll back
// the tickets.
func (d *DB) IncrementSoldCount(ctx context.Context, ticketTypeID string, delta int) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.TicketType)(nil)).
		Set("sold_count = sold_count + ?", delta).
		Where("id = ?", ticketTypeID).
		Exec(ctx)
	return err
}

// ---------------- TICKETS ----------------

// CreateTicketsBatch inserts every ticket of one order in a single
// transaction: either the whole order persists or none of it.
func (d *DB) CreateTicketsBatch(ctx context.Context, tickets []models.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(&tickets).Exec(ctx)
		return err
	})
}

// OrderExists reports whether any ticket was already issued under the
// given order id. Used as the idempotency guard for retried captures.
func (d *DB) OrderExists(ctx context.Context, orderID string) (bool, error) {
	return d.Bun.NewSelect().
		Model((*models.Ticket)(nil)).
		Where("order_id = ?", orderID).
		Exists(ctx)
}

func (d *DB) GetTicketByID(ctx context.Context, id string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.Wrap(errs.NotFound, fmt.Sprintf("ticket %s not found", id), err)
		}
		return nil, err
	}
	return &ticket, nil
}

func (d *DB) GetTicketByQRID(ctx context.Context, qrID string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("qr_id = ?", qrID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.Wrap(errs.NotFound, "no ticket matches the scanned code", err)
		}
		return nil, err
	}
	return &ticket, nil
}

func (d *DB) GetTicketsByOrder(ctx context.Context, orderID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("order_id = ?", orderID).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

func (d *DB) GetTicketsByUser(ctx context.Context, userID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("user_id = ?", userID).
		Order("issued_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

func (d *DB) GetTicketsByCustomerEmail(ctx context.Context, email string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("LOWER(customer_email) = ?", strings.ToLower(email)).
		Order("issued_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

// GetUnboundTicketsByEmail finds orphan tickets: purchased under the
// email with no user bound yet.
func (d *DB) GetUnboundTicketsByEmail(ctx context.Context, email string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("LOWER(customer_email) = ?", strings.ToLower(email)).
		Where("(user_id IS NULL OR user_id = '')").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

func (d *DB) UpdateTicket(ctx context.Context, ticket models.Ticket) error {
	ticket.UpdatedAt = time.Now()
	_, err := d.Bun.NewUpdate().
		Model(&ticket).
		Column(ticketColumns...).
		Where("id = ?", ticket.ID).
		Exec(ctx)
	return err
}

// MutateTicket atomically applies fn to the current ticket row and, when
// fn returns an audit entry, appends it in the same transaction. On
// Postgres the row is locked for the duration, so validation and write
// happen against the same state even under concurrent scans.
func (d *DB) MutateTicket(ctx context.Context, ticketID string, fn func(t *models.Ticket) (*models.TicketLog, error)) (*models.Ticket, error) {
	var result models.Ticket
	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var ticket models.Ticket
		query := tx.NewSelect().
			Model(&ticket).
			Where("id = ?", ticketID).
			Limit(1)
		if d.Bun.Dialect().Name() == dialect.PG {
			query = query.For("UPDATE")
		}
		if err := query.Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errs.Wrap(errs.NotFound, fmt.Sprintf("ticket %s not found", ticketID), err)
			}
			return err
		}

		entry, err := fn(&ticket)
		if err != nil {
			return err
		}

		ticket.UpdatedAt = time.Now()
		if _, err := tx.NewUpdate().
			Model(&ticket).
			Column(ticketColumns...).
			Where("id = ?", ticket.ID).
			Exec(ctx); err != nil {
			return err
		}

		if entry != nil {
			if _, err := tx.NewInsert().Model(entry).Exec(ctx); err != nil {
				return err
			}
		}

		result = ticket
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// BindTicketToUser links an orphan ticket to the given user and marks
// its recovery sidecar resolved. The sidecar is retained for audit.
func (d *DB) BindTicketToUser(ctx context.Context, ticketID, uid string, now time.Time) error {
	_, err := d.MutateTicket(ctx, ticketID, func(t *models.Ticket) (*models.TicketLog, error) {
		t.UserID = uid
		t.LinkedAt = now
		t.LinkedVia = models.LinkedViaAutoRecovery
		if t.HasRecoveryData() {
			t.RecoveryStatus = models.RecoveryRecovered
			t.RecoveredAt = now
			t.RecoveryLinkedTo = uid
		}
		return nil, nil
	})
	return err
}

// ---------------- TICKET LOGS ----------------

func (d *DB) GetTicketLogs(ctx context.Context, ticketID string) ([]models.TicketLog, error) {
	var logs []models.TicketLog
	err := d.Bun.NewSelect().
		Model(&logs).
		Where("ticket_id = ?", ticketID).
		Order("performed_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// ---------------- COURTESY ----------------

// GetCourtesyTickets lists courtesy tickets, optionally scoped to one
// event, newest first.
func (d *DB) GetCourtesyTickets(ctx context.Context, eventID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	query := d.Bun.NewSelect().
		Model(&tickets).
		Where("is_courtesy = ?", true).
		Order("issued_at DESC")
	if eventID != "" {
		query = query.Where("event_id = ?", eventID)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, err
	}
	return tickets, nil
}

// ---------------- PREREGISTRATIONS ----------------

func (d *DB) CreatePreregistration(ctx context.Context, prereg models.Preregistration) error {
	_, err := d.Bun.NewInsert().Model(&prereg).Exec(ctx)
	return err
}

func (d *DB) GetPreregistrationsByEvent(ctx context.Context, eventID string) ([]models.Preregistration, error) {
	var preregs []models.Preregistration
	err := d.Bun.NewSelect().
		Model(&preregs).
		Where("event_id = ?", eventID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return preregs, nil
}
