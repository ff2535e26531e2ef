package recovery

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/models"
)

type fakeDB struct {
	tickets map[string]*models.Ticket
	bindErr map[string]error
}

func newFakeDB() *fakeDB {
	return &fakeDB{tickets: map[string]*models.Ticket{}, bindErr: map[string]error{}}
}

func (f *fakeDB) GetUnboundTicketsByEmail(_ context.Context, email string) ([]models.Ticket, error) {
	var out []models.Ticket
	for _, t := range f.tickets {
		if t.UserID == "" && strings.EqualFold(t.CustomerEmail, email) {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeDB) BindTicketToUser(_ context.Context, ticketID, uid string, now time.Time) error {
	if err := f.bindErr[ticketID]; err != nil {
		return err
	}
	t := f.tickets[ticketID]
	t.UserID = uid
	t.LinkedAt = now
	t.LinkedVia = models.LinkedViaAutoRecovery
	if t.RecoveryStatus != "" {
		t.RecoveryStatus = models.RecoveryRecovered
		t.RecoveredAt = now
		t.RecoveryLinkedTo = uid
	}
	return nil
}

func seedOrphan(db *fakeDB, id, email string) {
	db.tickets[id] = &models.Ticket{
		ID:             id,
		CustomerEmail:  email,
		RecoveryEmail:  strings.ToLower(email),
		RecoveryStatus: models.RecoveryPending,
	}
}

func TestLinkOrphanTickets(t *testing.T) {
	db := newFakeDB()
	seedOrphan(db, "t1", "ada@example.com")
	seedOrphan(db, "t2", "Ada@Example.com")
	seedOrphan(db, "t3", "other@example.com")
	s := NewService(db, logger.NewLogger())

	linked, err := s.LinkOrphanTickets(context.Background(), "uid-ada", "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, 2, linked)

	assert.Equal(t, "uid-ada", db.tickets["t1"].UserID)
	assert.Equal(t, models.RecoveryRecovered, db.tickets["t1"].RecoveryStatus)
	assert.Equal(t, "uid-ada", db.tickets["t1"].RecoveryLinkedTo)
	assert.Equal(t, models.LinkedViaAutoRecovery, db.tickets["t2"].LinkedVia)

	// The unrelated orphan stays unbound.
	assert.Empty(t, db.tickets["t3"].UserID)
}

func TestLinkOrphanTicketsIdempotent(t *testing.T) {
	db := newFakeDB()
	seedOrphan(db, "t1", "ada@example.com")
	s := NewService(db, logger.NewLogger())

	linked, err := s.LinkOrphanTickets(context.Background(), "uid-ada", "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, linked)

	linked, err = s.LinkOrphanTickets(context.Background(), "uid-ada", "ada@example.com")
	require.NoError(t, err)
	assert.Zero(t, linked)
	assert.Equal(t, "uid-ada", db.tickets["t1"].UserID)
}

func TestLinkOrphanTicketsSkipsBoundTickets(t *testing.T) {
	db := newFakeDB()
	db.tickets["t1"] = &models.Ticket{ID: "t1", CustomerEmail: "ada@example.com", UserID: "uid-original"}
	s := NewService(db, logger.NewLogger())

	linked, err := s.LinkOrphanTickets(context.Background(), "uid-other", "ada@example.com")
	require.NoError(t, err)
	assert.Zero(t, linked)
	assert.Equal(t, "uid-original", db.tickets["t1"].UserID)
}

func TestLinkOrphanTicketsPartialFailure(t *testing.T) {
	db := newFakeDB()
	seedOrphan(db, "t1", "ada@example.com")
	seedOrphan(db, "t2", "ada@example.com")
	db.bindErr["t1"] = errors.New("row locked")
	s := NewService(db, logger.NewLogger())

	linked, err := s.LinkOrphanTickets(context.Background(), "uid-ada", "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, linked)
	assert.Equal(t, "uid-ada", db.tickets["t2"].UserID)
	assert.Empty(t, db.tickets["t1"].UserID)
}

func TestLinkOrphanTicketsEmptyArgs(t *testing.T) {
	s := NewService(newFakeDB(), logger.NewLogger())

	linked, err := s.LinkOrphanTickets(context.Background(), "", "ada@example.com")
	require.NoError(t, err)
	assert.Zero(t, linked)

	linked, err = s.LinkOrphanTickets(context.Background(), "uid", "  ")
	require.NoError(t, err)
	assert.Zero(t, linked)
}

func TestTryLinkSwallowsErrors(t *testing.T) {
	db := newFakeDB()
	seedOrphan(db, "t1", "ada@example.com")
	db.bindErr["t1"] = errors.New("db down")
	s := NewService(db, logger.NewLogger())

	// Bind failures are logged per ticket, not returned.
	assert.Zero(t, s.TryLink(context.Background(), "uid-ada", "ada@example.com"))
}
