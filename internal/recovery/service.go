// Package recovery links orphan tickets (purchased or granted without a
// bound account) to a user once an account with the matching email
// exists. Linking runs opportunistically after signup or login and is
// idempotent: already-bound tickets are never touched.
package recovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/models"
)

type DBLayer interface {
	GetUnboundTicketsByEmail(ctx context.Context, email string) ([]models.Ticket, error)
	BindTicketToUser(ctx context.Context, ticketID, uid string, now time.Time) error
}

type Service struct {
	DB     DBLayer
	Logger *logger.Logger

	now func() time.Time
}

func NewService(db DBLayer, log *logger.Logger) *Service {
	return &Service{DB: db, Logger: log, now: time.Now}
}

// LinkOrphanTickets binds every unbound ticket whose purchase email
// matches the account email. Running it twice for the same account is a
// no-op the second time: bound tickets no longer match the orphan query.
func (s *Service) LinkOrphanTickets(ctx context.Context, uid, email string) (int, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if uid == "" || email == "" {
		return 0, nil
	}

	orphans, err := s.DB.GetUnboundTicketsByEmail(ctx, email)
	if err != nil {
		return 0, fmt.Errorf("orphan lookup for %s: %w", email, err)
	}
	if len(orphans) == 0 {
		return 0, nil
	}

	now := s.now()
	linked := 0
	for _, t := range orphans {
		if err := s.DB.BindTicketToUser(ctx, t.ID, uid, now); err != nil {
			s.Logger.Error("RECOVERY", fmt.Sprintf("failed to link ticket %s to %s: %v", t.ID, uid, err))
			continue
		}
		linked++
	}

	if linked > 0 {
		s.Logger.LogRecovery(email, fmt.Sprintf("linked %d orphan tickets to %s", linked, uid))
	}
	return linked, nil
}

// TryLink is the fire-and-forget variant used on the login/ticket-list
// path: recovery trouble must never break the caller's request.
func (s *Service) TryLink(ctx context.Context, uid, email string) int {
	linked, err := s.LinkOrphanTickets(ctx, uid, email)
	if err != nil {
		s.Logger.Warn("RECOVERY", fmt.Sprintf("orphan linking for %s skipped: %v", email, err))
		return 0
	}
	return linked
}
