// Package issuance creates ticket records for paid purchases and for
// courtesy grants: one order id per call, authorized days computed from
// the ticket type's access policy, identity resolved up front, and the
// whole order committed atomically.
package issuance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ms-boxoffice/internal/access"
	"ms-boxoffice/internal/errs"
	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/models"
	"ms-boxoffice/internal/utils"
)

const (
	maxCourtesyQuantity = 10

	ProvenanceCheckout = "checkout_guest"
	ProvenanceCourtesy = "courtesy_grant"
)

type DBLayer interface {
	GetEventByID(ctx context.Context, id string) (*models.Event, error)
	GetTicketTypeByID(ctx context.Context, id string) (*models.TicketType, error)
	OrderExists(ctx context.Context, orderID string) (bool, error)
	CreateTicketsBatch(ctx context.Context, tickets []models.Ticket) error
	IncrementSoldCount(ctx context.Context, ticketTypeID string, delta int) error
	GetTicketsByOrder(ctx context.Context, orderID string) ([]models.Ticket, error)
	GetCourtesyTickets(ctx context.Context, eventID string) ([]models.Ticket, error)
}

type IdentityProvider interface {
	GetUserByEmail(ctx context.Context, email string) (string, error)
	CreateUser(ctx context.Context, email, password, displayName string) (string, error)
	CreateLoginToken(ctx context.Context, uid string) (string, error)
}

type PaymentProcessor interface {
	Capture(ctx context.Context, orderID string) (*models.CaptureResult, error)
}

type Notifier interface {
	TicketsIssued(orderID string, tickets []models.Ticket)
	RecoveryInvite(email string)
}

type Service struct {
	DB       DBLayer
	Identity IdentityProvider
	Payment  PaymentProcessor
	Notify   Notifier
	Logger   *logger.Logger

	now func() time.Time
}

func NewService(db DBLayer, identity IdentityProvider, payment PaymentProcessor, notify Notifier, log *logger.Logger) *Service {
	return &Service{
		DB:       db,
		Identity: identity,
		Payment:  payment,
		Notify:   notify,
		Logger:   log,
		now:      time.Now,
	}
}

type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type PurchaseItem struct {
	TicketTypeID string `json:"ticket_type_id"`
	Quantity     int    `json:"quantity"`
}

type PurchaseRequest struct {
	// OrderID is the payment processor's order id; it also groups the
	// issued tickets and anchors the idempotency guard.
	OrderID       string         `json:"order_id"`
	EventID       string         `json:"event_id"`
	Items         []PurchaseItem `json:"items"`
	Customer      Customer       `json:"customer"`
	CreateAccount bool           `json:"create_account"`
	Password      string         `json:"password,omitempty"`
}

// AccountOutcome reports how identity resolution went for a purchase.
type AccountOutcome struct {
	Kind       string `json:"kind"` // bound, guest, new_account
	UID        string `json:"uid,omitempty"`
	LoginToken string `json:"login_token,omitempty"`
	Error      string `json:"error,omitempty"`
}

type PurchaseResult struct {
	OrderID       string          `json:"order_id"`
	Tickets       []models.Ticket `json:"tickets"`
	AlreadyIssued bool            `json:"already_issued"`
	Account       AccountOutcome  `json:"account"`
}

type CourtesyRequest struct {
	EventID      string   `json:"event_id"`
	TicketTypeID string   `json:"ticket_type_id"`
	Requester    Customer `json:"requester"`
	CourtesyType string   `json:"courtesy_type"`
	Quantity     int      `json:"quantity"`
	AutoLink     bool     `json:"auto_link"`
}

type CourtesyResult struct {
	OrderID     string          `json:"order_id"`
	Tickets     []models.Ticket `json:"tickets"`
	LinkedToUID string          `json:"linked_to_uid,omitempty"`
}

// CourtesyStats summarizes courtesy issuance for the admin listing.
type CourtesyStats struct {
	Total  int            `json:"total"`
	ByType map[string]int `json:"by_type"`
	Used   int            `json:"used"`
}

type resolvedIdentity struct {
	uid        string
	guestEmail string // non-empty means write the recovery sidecar
}

// CompletePurchase captures the approved payment and issues the order's
// tickets. A retried capture for an order that was already fulfilled
// returns the existing tickets without issuing new ones.
func (s *Service) CompletePurchase(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error) {
	if err := validatePurchase(req); err != nil {
		return nil, err
	}

	// Idempotency guard: a second capture call for a fulfilled order
	// must not mint duplicate tickets.
	exists, err := s.DB.OrderExists(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if exists {
		s.Logger.LogIssuance("DUPLICATE", req.OrderID, "order already fulfilled, returning existing tickets")
		tickets, err := s.DB.GetTicketsByOrder(ctx, req.OrderID)
		if err != nil {
			return nil, err
		}
		return &PurchaseResult{OrderID: req.OrderID, Tickets: tickets, AlreadyIssued: true}, nil
	}

	event, err := s.DB.GetEventByID(ctx, req.EventID)
	if err != nil {
		return nil, err
	}

	capture, err := s.Payment.Capture(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if capture.Status != models.PaymentCompleted {
		return nil, errs.E(errs.PaymentNotCompleted,
			fmt.Sprintf("payment for order %s is %s, not completed", req.OrderID, capture.Status))
	}

	outcome := s.resolvePurchaseIdentity(ctx, req)
	identity := resolvedIdentity{uid: outcome.UID}
	if outcome.UID == "" {
		identity.guestEmail = strings.ToLower(req.Customer.Email)
	}

	var tickets []models.Ticket
	counts := map[string]int{}
	for _, item := range req.Items {
		ticketType, err := s.DB.GetTicketTypeByID(ctx, item.TicketTypeID)
		if err != nil {
			return nil, err
		}
		if ticketType.EventID != event.ID {
			return nil, errs.E(errs.InvalidInput,
				fmt.Sprintf("ticket type %s does not belong to event %s", ticketType.ID, event.ID))
		}
		batch := s.buildTickets(event, ticketType, item.Quantity, req.OrderID, req.Customer, identity, "", ProvenanceCheckout)
		tickets = append(tickets, batch...)
		counts[ticketType.ID] += item.Quantity
	}

	if err := s.DB.CreateTicketsBatch(ctx, tickets); err != nil {
		return nil, fmt.Errorf("failed to persist order %s: %w", req.OrderID, err)
	}
	s.Logger.LogIssuance("PURCHASE", req.OrderID, fmt.Sprintf("%d tickets issued", len(tickets)))

	s.afterIssuance(ctx, req.OrderID, tickets, counts)

	return &PurchaseResult{OrderID: req.OrderID, Tickets: tickets, Account: outcome}, nil
}

// IssueCourtesy creates complimentary tickets for staff, press, or VIP
// guests. The requester's email (not the eventual attendee's) drives
// identity resolution; attendee fields always stay blank and require
// per-ticket configuration afterwards.
func (s *Service) IssueCourtesy(ctx context.Context, req CourtesyRequest) (*CourtesyResult, error) {
	if err := validateCourtesy(req); err != nil {
		return nil, err
	}

	event, err := s.DB.GetEventByID(ctx, req.EventID)
	if err != nil {
		return nil, err
	}
	ticketType, err := s.DB.GetTicketTypeByID(ctx, req.TicketTypeID)
	if err != nil {
		return nil, err
	}
	if ticketType.EventID != event.ID {
		return nil, errs.E(errs.InvalidInput,
			fmt.Sprintf("ticket type %s does not belong to event %s", ticketType.ID, event.ID))
	}

	var identity resolvedIdentity
	uid, err := s.Identity.GetUserByEmail(ctx, req.Requester.Email)
	switch {
	case err == nil:
		identity.uid = uid
	case errs.KindOf(err) == errs.NotFound:
		if req.AutoLink {
			identity.guestEmail = strings.ToLower(req.Requester.Email)
		}
	default:
		// Identity lookup trouble must not block a grant; leave the
		// ticket unbound so recovery can link it later.
		s.Logger.Warn("ISSUANCE", fmt.Sprintf("identity lookup for %s failed: %v", req.Requester.Email, err))
		if req.AutoLink {
			identity.guestEmail = strings.ToLower(req.Requester.Email)
		}
	}

	orderID := utils.GenerateOrderID()
	tickets := s.buildTickets(event, ticketType, req.Quantity, orderID, req.Requester, identity, req.CourtesyType, ProvenanceCourtesy)

	if err := s.DB.CreateTicketsBatch(ctx, tickets); err != nil {
		return nil, fmt.Errorf("failed to persist courtesy order %s: %w", orderID, err)
	}
	s.Logger.LogIssuance("COURTESY", orderID,
		fmt.Sprintf("%d %s tickets for %s", len(tickets), req.CourtesyType, req.Requester.Email))

	s.afterIssuance(ctx, orderID, tickets, map[string]int{ticketType.ID: req.Quantity})

	return &CourtesyResult{OrderID: orderID, Tickets: tickets, LinkedToUID: identity.uid}, nil
}

// ListCourtesy returns courtesy tickets with summary stats.
func (s *Service) ListCourtesy(ctx context.Context, eventID string) ([]models.Ticket, *CourtesyStats, error) {
	tickets, err := s.DB.GetCourtesyTickets(ctx, eventID)
	if err != nil {
		return nil, nil, err
	}
	stats := &CourtesyStats{Total: len(tickets), ByType: map[string]int{}}
	for _, t := range tickets {
		stats.ByType[t.CourtesyType]++
		if len(t.UsedDays) > 0 {
			stats.Used++
		}
	}
	return tickets, stats, nil
}

func (s *Service) buildTickets(event *models.Event, ticketType *models.TicketType, quantity int, orderID string, customer Customer, identity resolvedIdentity, courtesyType, provenance string) []models.Ticket {
	authorized := access.AuthorizedDays(ticketType, event)
	now := s.now()

	tickets := make([]models.Ticket, 0, quantity)
	for i := 0; i < quantity; i++ {
		t := models.Ticket{
			ID:             uuid.NewString(),
			QRID:           utils.GenerateQRToken(),
			OrderID:        orderID,
			EventID:        event.ID,
			TicketTypeID:   ticketType.ID,
			UserID:         identity.uid,
			CustomerName:   customer.Name,
			CustomerEmail:  strings.ToLower(customer.Email),
			CustomerPhone:  customer.Phone,
			Status:         models.StatusPurchased,
			IsCourtesy:     courtesyType != "",
			CourtesyType:   courtesyType,
			Price:          ticketType.Price,
			Currency:       ticketType.Currency,
			AuthorizedDays: authorized,
			IssuedAt:       now,
		}
		if courtesyType != "" {
			t.Price = 0
		}
		if identity.uid == "" && identity.guestEmail != "" {
			t.RecoveryEmail = identity.guestEmail
			t.RecoveryStatus = models.RecoveryPending
			t.RecoveryProvenance = provenance
		}
		tickets = append(tickets, t)
	}
	return tickets
}

// afterIssuance runs the best-effort side effects. Failures here are
// logged and must never unwind the committed tickets.
func (s *Service) afterIssuance(ctx context.Context, orderID string, tickets []models.Ticket, counts map[string]int) {
	for ticketTypeID, quantity := range counts {
		if err := s.DB.IncrementSoldCount(ctx, ticketTypeID, quantity); err != nil {
			s.Logger.Error("ISSUANCE", fmt.Sprintf("failed to increment sold count for %s: %v", ticketTypeID, err))
		}
	}
	if s.Notify != nil {
		s.Notify.TicketsIssued(orderID, tickets)
	}
}

func (s *Service) resolvePurchaseIdentity(ctx context.Context, req PurchaseRequest) AccountOutcome {
	uid, err := s.Identity.GetUserByEmail(ctx, req.Customer.Email)
	if err == nil {
		return AccountOutcome{Kind: "bound", UID: uid}
	}
	if errs.KindOf(err) != errs.NotFound {
		s.Logger.Warn("ISSUANCE", fmt.Sprintf("identity lookup for %s failed: %v", req.Customer.Email, err))
		return AccountOutcome{Kind: "guest"}
	}

	if !req.CreateAccount {
		return AccountOutcome{Kind: "guest"}
	}

	// Account creation is explicitly non-fatal: the purchase proceeds
	// as guest and a recovery invite goes out instead.
	newUID, err := s.Identity.CreateUser(ctx, req.Customer.Email, req.Password, req.Customer.Name)
	if err != nil {
		s.Logger.Error("ISSUANCE", fmt.Sprintf("account creation for %s failed: %v", req.Customer.Email, err))
		if s.Notify != nil {
			s.Notify.RecoveryInvite(strings.ToLower(req.Customer.Email))
		}
		return AccountOutcome{Kind: "guest", Error: string(errs.AccountCreationFailed)}
	}

	outcome := AccountOutcome{Kind: "new_account", UID: newUID}
	token, err := s.Identity.CreateLoginToken(ctx, newUID)
	if err != nil {
		s.Logger.Warn("ISSUANCE", fmt.Sprintf("login token for %s failed: %v", newUID, err))
	} else {
		outcome.LoginToken = token
	}
	return outcome
}

func validatePurchase(req PurchaseRequest) error {
	if req.OrderID == "" {
		return errs.E(errs.InvalidInput, "order id is required")
	}
	if req.EventID == "" {
		return errs.E(errs.InvalidInput, "event id is required")
	}
	if len(req.Items) == 0 {
		return errs.E(errs.InvalidInput, "at least one ticket item is required")
	}
	for _, item := range req.Items {
		if item.TicketTypeID == "" || item.Quantity < 1 {
			return errs.E(errs.InvalidInput, "every item needs a ticket type and a quantity of at least 1")
		}
	}
	if req.Customer.Name == "" || req.Customer.Email == "" {
		return errs.E(errs.InvalidInput, "customer name and email are required")
	}
	return nil
}

func validateCourtesy(req CourtesyRequest) error {
	if req.EventID == "" || req.TicketTypeID == "" {
		return errs.E(errs.InvalidInput, "event id and ticket type id are required")
	}
	if req.Requester.Name == "" || req.Requester.Email == "" {
		return errs.E(errs.InvalidInput, "requester name and email are required")
	}
	if req.CourtesyType == "" {
		return errs.E(errs.InvalidInput, "courtesy type is required")
	}
	if req.Quantity < 1 || req.Quantity > maxCourtesyQuantity {
		return errs.E(errs.InvalidInput,
			fmt.Sprintf("quantity must be between 1 and %d", maxCourtesyQuantity))
	}
	return nil
}
