// Package checkin implements the day-scoped check-in state machine:
// validate a scanned ticket, consume one authorized day, and allow the
// same operator to undo within a bounded window.
package checkin

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ms-boxoffice/internal/access"
	"ms-boxoffice/internal/errs"
	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/models"
	"ms-boxoffice/internal/utils"
)

type DBLayer interface {
	GetTicketByQRID(ctx context.Context, qrID string) (*models.Ticket, error)
	GetEventByID(ctx context.Context, id string) (*models.Event, error)
	GetTicketTypeByID(ctx context.Context, id string) (*models.TicketType, error)
	MutateTicket(ctx context.Context, ticketID string, fn func(t *models.Ticket) (*models.TicketLog, error)) (*models.Ticket, error)
	GetTicketLogs(ctx context.Context, ticketID string) ([]models.TicketLog, error)
}

type Locker interface {
	Acquire(ctx context.Context, ticketID, token string) (bool, error)
	Release(ctx context.Context, ticketID, token string) error
}

type Notifier interface {
	CheckinRecorded(entry models.TicketLog)
}

type Service struct {
	DB         DBLayer
	Lock       Locker
	Notify     Notifier
	Logger     *logger.Logger
	UndoWindow time.Duration

	// now is swappable in tests.
	now func() time.Time
}

func NewService(db DBLayer, lock Locker, notify Notifier, log *logger.Logger, undoWindow time.Duration) *Service {
	if undoWindow <= 0 {
		undoWindow = 5 * time.Minute
	}
	return &Service{
		DB:         db,
		Lock:       lock,
		Notify:     notify,
		Logger:     log,
		UndoWindow: undoWindow,
		now:        time.Now,
	}
}

// Result is the enriched view returned to the scanning operator.
type Result struct {
	TicketID     string    `json:"ticket_id"`
	QRID         string    `json:"qr_id"`
	EventID      string    `json:"event_id"`
	EventName    string    `json:"event_name"`
	AttendeeName string    `json:"attendee_name"`
	Status       string    `json:"status"`
	Day          string    `json:"day"`
	UsedDays     []string  `json:"used_days"`
	CanUndo      bool      `json:"can_undo"`
	UndoUntil    time.Time `json:"undo_until,omitempty"`
}

// PublicStatus is the unauthenticated pre-scan view. It must never
// carry payment or contact data.
type PublicStatus struct {
	Valid        bool   `json:"valid"`
	EventName    string `json:"event_name,omitempty"`
	AttendeeName string `json:"attendee_name,omitempty"`
	Status       string `json:"status,omitempty"`
}

// CheckIn validates the scanned ticket and consumes today's entry. The
// whole read-validate-write sequence runs under the per-ticket lock and
// a single DB transaction, so two scanners hitting the same ticket
// cannot both succeed.
func (s *Service) CheckIn(ctx context.Context, qrID string, operator models.Identity) (*Result, error) {
	ticket, err := s.DB.GetTicketByQRID(ctx, qrID)
	if err != nil {
		return nil, err
	}

	event, err := s.DB.GetEventByID(ctx, ticket.EventID)
	if err != nil {
		return nil, err
	}

	ticketType, err := s.DB.GetTicketTypeByID(ctx, ticket.TicketTypeID)
	if err != nil {
		return nil, err
	}

	lockToken := uuid.NewString()
	acquired, err := s.Lock.Acquire(ctx, ticket.ID, lockToken)
	if err != nil {
		return nil, fmt.Errorf("checkin lock error: %w", err)
	}
	if !acquired {
		return nil, errs.E(errs.ScanInProgress, "this ticket is being scanned right now, try again in a moment")
	}
	defer func() {
		if err := s.Lock.Release(ctx, ticket.ID, lockToken); err != nil {
			s.Logger.Warn("CHECKIN", fmt.Sprintf("failed to release lock for ticket %s: %v", ticket.ID, err))
		}
	}()

	now := s.now()
	today := access.DayIn(event.Timezone, now)
	undoUntil := now.Add(s.UndoWindow)

	var entry *models.TicketLog
	updated, err := s.DB.MutateTicket(ctx, ticket.ID, func(t *models.Ticket) (*models.TicketLog, error) {
		if !t.Configured() {
			return nil, errs.E(errs.NotConfigured, "ticket has no attendee configured yet; complete the ticket before scanning")
		}

		startDay := access.DayIn(event.Timezone, event.StartDate)
		endDay := access.DayIn(event.Timezone, event.EndDate)
		if today < startDay {
			return nil, errs.E(errs.EventNotStarted, fmt.Sprintf("event starts on %s", startDay))
		}
		if today > endDay {
			return nil, errs.E(errs.EventEnded, fmt.Sprintf("event ended on %s", endDay))
		}

		decision := access.CanCheckInToday(ticketType.AccessType, t.AuthorizedDays, t.UsedDays, today)
		if !decision.Allowed {
			return nil, errs.E(decision.Reason, decision.Details)
		}

		t.UsedDays = append(t.UsedDays, decision.Day)
		t.LastCheckin = now
		t.LastCheckinBy = operator.UID
		t.LastCheckinDay = decision.Day
		t.CanUndoUntil = undoUntil
		if t.Exhausted() || ticketType.AccessType == models.AccessAnySingleDay {
			t.Status = models.StatusUsed
		}

		entry = &models.TicketLog{
			ID:          utils.GenerateLogID(),
			TicketID:    t.ID,
			QRID:        t.QRID,
			EventID:     t.EventID,
			Action:      models.CheckinAction,
			Day:         decision.Day,
			PerformedBy: operator.UID,
			PerformedAt: now,
		}
		return entry, nil
	})
	if err != nil {
		s.Logger.LogCheckin("REJECT", qrID, errs.DetailsOf(err))
		return nil, err
	}

	s.Logger.LogCheckin("CHECKIN", qrID, fmt.Sprintf("day %s by %s", today, operator.UID))
	if s.Notify != nil && entry != nil {
		s.Notify.CheckinRecorded(*entry)
	}

	return &Result{
		TicketID:     updated.ID,
		QRID:         updated.QRID,
		EventID:      updated.EventID,
		EventName:    event.Name,
		AttendeeName: updated.AttendeeName,
		Status:       string(updated.Status),
		Day:          today,
		UsedDays:     updated.UsedDays,
		CanUndo:      true,
		UndoUntil:    updated.CanUndoUntil,
	}, nil
}

// UndoCheckIn reverses today's check-in. Only the operator who scanned
// the ticket may undo, and only within the undo window.
func (s *Service) UndoCheckIn(ctx context.Context, qrID string, operator models.Identity) (*Result, error) {
	ticket, err := s.DB.GetTicketByQRID(ctx, qrID)
	if err != nil {
		return nil, err
	}

	event, err := s.DB.GetEventByID(ctx, ticket.EventID)
	if err != nil {
		return nil, err
	}

	lockToken := uuid.NewString()
	acquired, err := s.Lock.Acquire(ctx, ticket.ID, lockToken)
	if err != nil {
		return nil, fmt.Errorf("checkin lock error: %w", err)
	}
	if !acquired {
		return nil, errs.E(errs.ScanInProgress, "this ticket is being scanned right now, try again in a moment")
	}
	defer func() {
		if err := s.Lock.Release(ctx, ticket.ID, lockToken); err != nil {
			s.Logger.Warn("CHECKIN", fmt.Sprintf("failed to release lock for ticket %s: %v", ticket.ID, err))
		}
	}()

	now := s.now()
	today := access.DayIn(event.Timezone, now)

	var entry *models.TicketLog
	updated, err := s.DB.MutateTicket(ctx, ticket.ID, func(t *models.Ticket) (*models.TicketLog, error) {
		if t.LastCheckinDay == "" {
			return nil, errs.E(errs.NothingToUndo, "ticket has no check-in to undo")
		}
		if t.CanUndoUntil.IsZero() || now.After(t.CanUndoUntil) {
			return nil, errs.E(errs.UndoExpired, "the undo window for this check-in has expired")
		}
		if t.LastCheckinBy != operator.UID {
			return nil, errs.E(errs.UnauthorizedUndo, "only the operator who performed the check-in may undo it")
		}
		if t.LastCheckinDay != today {
			return nil, errs.E(errs.NothingToUndo, "the last check-in was on a different day")
		}

		day := t.LastCheckinDay
		t.UsedDays = t.UsedDays.Without(day)
		t.LastCheckin = time.Time{}
		t.LastCheckinBy = ""
		t.LastCheckinDay = ""
		t.CanUndoUntil = time.Time{}
		if t.Status == models.StatusUsed {
			t.Status = models.StatusConfigured
		}

		entry = &models.TicketLog{
			ID:          utils.GenerateLogID(),
			TicketID:    t.ID,
			QRID:        t.QRID,
			EventID:     t.EventID,
			Action:      models.UndoAction,
			Day:         day,
			PerformedBy: operator.UID,
			PerformedAt: now,
		}
		return entry, nil
	})
	if err != nil {
		s.Logger.LogCheckin("UNDO_REJECT", qrID, errs.DetailsOf(err))
		return nil, err
	}

	s.Logger.LogCheckin("UNDO", qrID, fmt.Sprintf("day %s by %s", today, operator.UID))
	if s.Notify != nil && entry != nil {
		s.Notify.CheckinRecorded(*entry)
	}

	return &Result{
		TicketID:     updated.ID,
		QRID:         updated.QRID,
		EventID:      updated.EventID,
		EventName:    event.Name,
		AttendeeName: updated.AttendeeName,
		Status:       string(updated.Status),
		Day:          today,
		UsedDays:     updated.UsedDays,
		CanUndo:      false,
	}, nil
}

// PublicLookup is the unauthenticated pre-scan status view: no payment
// or contact data, only what a door display may show.
func (s *Service) PublicLookup(ctx context.Context, qrID string) (*PublicStatus, error) {
	ticket, err := s.DB.GetTicketByQRID(ctx, qrID)
	if err != nil {
		if errs.KindOf(err) == errs.NotFound {
			return &PublicStatus{Valid: false}, nil
		}
		return nil, err
	}

	event, err := s.DB.GetEventByID(ctx, ticket.EventID)
	if err != nil {
		return nil, err
	}

	return &PublicStatus{
		Valid:        true,
		EventName:    event.Name,
		AttendeeName: ticket.AttendeeName,
		Status:       string(ticket.Status),
	}, nil
}
