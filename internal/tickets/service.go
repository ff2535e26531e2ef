// Package tickets serves the holder-facing side of the lifecycle: the
// grouped my-tickets view, per-ticket attendee configuration with QR and
// PDF materialization, audit logs, and event preregistrations.
package tickets

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"ms-boxoffice/internal/errs"
	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/models"
	"ms-boxoffice/internal/qr"
)

type DBLayer interface {
	GetTicketByID(ctx context.Context, id string) (*models.Ticket, error)
	GetTicketsByUser(ctx context.Context, userID string) ([]models.Ticket, error)
	GetUnboundTicketsByEmail(ctx context.Context, email string) ([]models.Ticket, error)
	GetEventByID(ctx context.Context, id string) (*models.Event, error)
	GetEventsByIDs(ctx context.Context, ids []string) ([]models.Event, error)
	MutateTicket(ctx context.Context, ticketID string, fn func(t *models.Ticket) (*models.TicketLog, error)) (*models.Ticket, error)
	GetTicketLogs(ctx context.Context, ticketID string) ([]models.TicketLog, error)
	CreatePreregistration(ctx context.Context, prereg models.Preregistration) error
	GetPreregistrationsByEvent(ctx context.Context, eventID string) ([]models.Preregistration, error)
}

type QRRenderer interface {
	EncryptedPNG(payload qr.Payload) ([]byte, error)
}

type PDFRenderer interface {
	Generate(ticket models.Ticket, event models.Event, qrCode []byte) ([]byte, error)
}

type Notifier interface {
	TicketReady(ticket models.Ticket, pdf []byte)
}

// Linker is the orphan recovery hook run before listing a user's
// tickets, so tickets bought as guest show up on first login.
type Linker interface {
	TryLink(ctx context.Context, uid, email string) int
}

type Service struct {
	DB     DBLayer
	QR     QRRenderer
	PDF    PDFRenderer
	Notify Notifier
	Linker Linker
	Logger *logger.Logger

	now func() time.Time
}

func NewService(db DBLayer, qrRenderer QRRenderer, pdfRenderer PDFRenderer, notify Notifier, linker Linker, log *logger.Logger) *Service {
	return &Service{
		DB:     db,
		QR:     qrRenderer,
		PDF:    pdfRenderer,
		Notify: notify,
		Linker: linker,
		Logger: log,
		now:    time.Now,
	}
}

// GroupCounts summarizes ticket states inside one grouping node.
type GroupCounts struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Configured int `json:"configured"`
	Used       int `json:"used"`
}

type OrderGroup struct {
	OrderID  string          `json:"order_id"`
	IssuedAt time.Time       `json:"issued_at"`
	Tickets  []models.Ticket `json:"tickets"`
	Counts   GroupCounts     `json:"counts"`
	Amount   float64         `json:"amount"`
	Currency string          `json:"currency,omitempty"`
}

type EventGroup struct {
	Event    models.Event `json:"event"`
	Upcoming bool         `json:"upcoming"`
	Orders   []OrderGroup `json:"orders"`
	Counts   GroupCounts  `json:"counts"`
}

// Overview is the my-tickets tree: events, their orders, their tickets.
type Overview struct {
	Events []EventGroup `json:"events"`
	Linked int          `json:"linked,omitempty"`
}

// GetUserTickets builds the grouped ticket view for a holder. Orphan
// tickets matching the account email are linked first, so a guest
// purchase appears the moment its buyer signs in.
func (s *Service) GetUserTickets(ctx context.Context, uid, email string) (*Overview, error) {
	linked := 0
	if s.Linker != nil {
		linked = s.Linker.TryLink(ctx, uid, email)
	}

	tickets, err := s.DB.GetTicketsByUser(ctx, uid)
	if err != nil {
		return nil, err
	}

	// Surface guest purchases whose orphan linking has not landed yet:
	// unbound tickets matching the account email still belong in the view.
	if len(tickets) == 0 && email != "" {
		tickets, err = s.DB.GetUnboundTicketsByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
	}

	overview, err := s.groupTickets(ctx, tickets)
	if err != nil {
		return nil, err
	}
	overview.Linked = linked
	return overview, nil
}

func (s *Service) groupTickets(ctx context.Context, tickets []models.Ticket) (*Overview, error) {
	if len(tickets) == 0 {
		return &Overview{Events: []EventGroup{}}, nil
	}

	eventIDs := make([]string, 0)
	seen := map[string]bool{}
	for _, t := range tickets {
		if !seen[t.EventID] {
			seen[t.EventID] = true
			eventIDs = append(eventIDs, t.EventID)
		}
	}
	events, err := s.DB.GetEventsByIDs(ctx, eventIDs)
	if err != nil {
		return nil, err
	}
	eventByID := make(map[string]models.Event, len(events))
	for _, ev := range events {
		eventByID[ev.ID] = ev
	}

	// event -> order -> tickets
	byEvent := map[string]map[string][]models.Ticket{}
	for _, t := range tickets {
		if byEvent[t.EventID] == nil {
			byEvent[t.EventID] = map[string][]models.Ticket{}
		}
		byEvent[t.EventID][t.OrderID] = append(byEvent[t.EventID][t.OrderID], t)
	}

	now := s.now()
	groups := make([]EventGroup, 0, len(byEvent))
	for eventID, orders := range byEvent {
		event, ok := eventByID[eventID]
		if !ok {
			s.Logger.Warn("TICKETS", fmt.Sprintf("tickets reference missing event %s", eventID))
			continue
		}

		eg := EventGroup{Event: event, Upcoming: !event.EndDate.Before(now)}
		for orderID, orderTickets := range orders {
			og := OrderGroup{OrderID: orderID, Tickets: orderTickets}
			for _, t := range orderTickets {
				og.Counts.add(t.Status)
				og.Amount += t.Price
				og.Currency = t.Currency
				if t.IssuedAt.After(og.IssuedAt) {
					og.IssuedAt = t.IssuedAt
				}
			}
			eg.Counts.merge(og.Counts)
			eg.Orders = append(eg.Orders, og)
		}
		sort.Slice(eg.Orders, func(i, j int) bool {
			return eg.Orders[i].IssuedAt.After(eg.Orders[j].IssuedAt)
		})
		groups = append(groups, eg)
	}

	// Upcoming events first, soonest start first; then past events,
	// most recent first.
	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if a.Upcoming != b.Upcoming {
			return a.Upcoming
		}
		if a.Upcoming {
			return a.Event.StartDate.Before(b.Event.StartDate)
		}
		return a.Event.EndDate.After(b.Event.EndDate)
	})

	return &Overview{Events: groups}, nil
}

func (c *GroupCounts) add(status models.TicketStatus) {
	c.Total++
	switch status {
	case models.StatusPurchased:
		c.Pending++
	case models.StatusConfigured, models.StatusGenerated:
		c.Configured++
	case models.StatusUsed:
		c.Used++
	}
}

func (c *GroupCounts) merge(other GroupCounts) {
	c.Total += other.Total
	c.Pending += other.Pending
	c.Configured += other.Configured
	c.Used += other.Used
}

type AttendeeInput struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// ConfigureAttendee names the person who will hold the ticket, renders
// the encrypted QR, and hands the printable PDF to delivery. A ticket
// already scanned on some day can no longer be renamed.
func (s *Service) ConfigureAttendee(ctx context.Context, ticketID string, attendee AttendeeInput) (*models.Ticket, error) {
	if strings.TrimSpace(attendee.Name) == "" {
		return nil, errs.E(errs.InvalidInput, "attendee name is required")
	}

	ticket, err := s.DB.GetTicketByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	event, err := s.DB.GetEventByID(ctx, ticket.EventID)
	if err != nil {
		return nil, err
	}

	qrCode, err := s.QR.EncryptedPNG(qr.Payload{QRID: ticket.QRID, EventID: ticket.EventID})
	if err != nil {
		return nil, fmt.Errorf("render qr for ticket %s: %w", ticketID, err)
	}

	updated, err := s.DB.MutateTicket(ctx, ticketID, func(t *models.Ticket) (*models.TicketLog, error) {
		if len(t.UsedDays) > 0 || t.Status == models.StatusUsed {
			return nil, errs.E(errs.AlreadyUsed, "ticket has already been used and can no longer be reconfigured")
		}
		t.AttendeeName = strings.TrimSpace(attendee.Name)
		t.AttendeeEmail = strings.ToLower(strings.TrimSpace(attendee.Email))
		t.AttendeePhone = strings.TrimSpace(attendee.Phone)
		t.QRCode = qrCode
		t.Status = models.StatusGenerated
		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("TICKETS", fmt.Sprintf("ticket %s configured for %s", ticketID, updated.AttendeeName))

	if s.PDF != nil && s.Notify != nil {
		pdf, err := s.PDF.Generate(*updated, *event, qrCode)
		if err != nil {
			// Delivery is retryable downstream; configuration stands.
			s.Logger.Error("TICKETS", fmt.Sprintf("render pdf for ticket %s: %v", ticketID, err))
		} else {
			s.Notify.TicketReady(*updated, pdf)
		}
	}

	return updated, nil
}

// GetTicketLogs returns the audit trail of one ticket, oldest first.
func (s *Service) GetTicketLogs(ctx context.Context, ticketID string) ([]models.TicketLog, error) {
	if _, err := s.DB.GetTicketByID(ctx, ticketID); err != nil {
		return nil, err
	}
	return s.DB.GetTicketLogs(ctx, ticketID)
}

// OwnedBy reports whether the ticket belongs to the given user. Used by
// the API layer for self-or-admin checks.
func (s *Service) OwnedBy(ctx context.Context, ticketID, uid string) (bool, error) {
	ticket, err := s.DB.GetTicketByID(ctx, ticketID)
	if err != nil {
		return false, err
	}
	return ticket.UserID == uid, nil
}

type PreregistrationInput struct {
	EventID string `json:"event_id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
}

// Preregister records interest in an event before sales open.
func (s *Service) Preregister(ctx context.Context, input PreregistrationInput) (*models.Preregistration, error) {
	if input.EventID == "" || input.Name == "" || input.Email == "" {
		return nil, errs.E(errs.InvalidInput, "event id, name and email are required")
	}
	if _, err := s.DB.GetEventByID(ctx, input.EventID); err != nil {
		return nil, err
	}

	prereg := models.Preregistration{
		ID:        uuid.NewString(),
		EventID:   input.EventID,
		Name:      strings.TrimSpace(input.Name),
		Email:     strings.ToLower(strings.TrimSpace(input.Email)),
		Phone:     strings.TrimSpace(input.Phone),
		CreatedAt: s.now(),
	}
	if err := s.DB.CreatePreregistration(ctx, prereg); err != nil {
		return nil, err
	}
	return &prereg, nil
}

func (s *Service) ListPreregistrations(ctx context.Context, eventID string) ([]models.Preregistration, error) {
	if eventID == "" {
		return nil, errs.E(errs.InvalidInput, "event id is required")
	}
	return s.DB.GetPreregistrationsByEvent(ctx, eventID)
}
