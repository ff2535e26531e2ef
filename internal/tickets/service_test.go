package tickets

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-boxoffice/internal/errs"
	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/models"
	"ms-boxoffice/internal/qr"
)

type fakeDB struct {
	tickets map[string]*models.Ticket
	events  map[string]*models.Event
	logs    []models.TicketLog
	preregs []models.Preregistration
}

func newFakeDB() *fakeDB {
	return &fakeDB{tickets: map[string]*models.Ticket{}, events: map[string]*models.Event{}}
}

func (f *fakeDB) GetTicketByID(_ context.Context, id string) (*models.Ticket, error) {
	if t, ok := f.tickets[id]; ok {
		copied := *t
		return &copied, nil
	}
	return nil, errs.E(errs.NotFound, "ticket not found")
}

func (f *fakeDB) GetTicketsByUser(_ context.Context, userID string) ([]models.Ticket, error) {
	var out []models.Ticket
	for _, t := range f.tickets {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	return out, nil
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

func (f *fakeDB) GetEventByID(_ context.Context, id string) (*models.Event, error) {
	if ev, ok := f.events[id]; ok {
		return ev, nil
	}
	return nil, errs.E(errs.NotFound, "event not found")
}

func (f *fakeDB) GetEventsByIDs(_ context.Context, ids []string) ([]models.Event, error) {
	var out []models.Event
	for _, id := range ids {
		if ev, ok := f.events[id]; ok {
			out = append(out, *ev)
		}
	}
	return out, nil
}

func (f *fakeDB) MutateTicket(_ context.Context, ticketID string, fn func(t *models.Ticket) (*models.TicketLog, error)) (*models.Ticket, error) {
	stored, ok := f.tickets[ticketID]
	if !ok {
		return nil, errs.E(errs.NotFound, "ticket not found")
	}
	working := *stored
	entry, err := fn(&working)
	if err != nil {
		return nil, err
	}
	f.tickets[ticketID] = &working
	if entry != nil {
		f.logs = append(f.logs, *entry)
	}
	copied := working
	return &copied, nil
}

func (f *fakeDB) GetTicketLogs(_ context.Context, ticketID string) ([]models.TicketLog, error) {
	var out []models.TicketLog
	for _, l := range f.logs {
		if l.TicketID == ticketID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeDB) CreatePreregistration(_ context.Context, prereg models.Preregistration) error {
	f.preregs = append(f.preregs, prereg)
	return nil
}

func (f *fakeDB) GetPreregistrationsByEvent(_ context.Context, eventID string) ([]models.Preregistration, error) {
	var out []models.Preregistration
	for _, p := range f.preregs {
		if p.EventID == eventID {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeQR struct{}

func (fakeQR) EncryptedPNG(_ qr.Payload) ([]byte, error) {
	return []byte("png-bytes"), nil
}

type fakePDF struct{ calls int }

func (f *fakePDF) Generate(_ models.Ticket, _ models.Event, _ []byte) ([]byte, error) {
	f.calls++
	return []byte("pdf-bytes"), nil
}

type fakeNotifier struct{ ready []string }

func (f *fakeNotifier) TicketReady(ticket models.Ticket, _ []byte) {
	f.ready = append(f.ready, ticket.ID)
}

type fakeLinker struct {
	linked int
	calls  int
}

func (f *fakeLinker) TryLink(_ context.Context, _, _ string) int {
	f.calls++
	return f.linked
}

func newTestService(db *fakeDB, pdf *fakePDF, notifier *fakeNotifier, linker Linker) *Service {
	return NewService(db, fakeQR{}, pdf, notifier, linker, logger.NewLogger())
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func seedTicket(db *fakeDB, id, eventID, orderID, uid string, status models.TicketStatus, price float64, issuedAt time.Time) {
	db.tickets[id] = &models.Ticket{
		ID:            id,
		QRID:          "qr_" + id,
		OrderID:       orderID,
		EventID:       eventID,
		TicketTypeID:  "tt1",
		UserID:        uid,
		CustomerName:  "Ada",
		CustomerEmail: "ada@example.com",
		Status:        status,
		Price:         price,
		Currency:      "EUR",
		IssuedAt:      issuedAt,
	}
}

func TestGetUserTicketsGroupsByEventAndOrder(t *testing.T) {
	db := newFakeDB()
	now := time.Now()

	db.events["future"] = &models.Event{ID: "future", Name: "Next Fest",
		StartDate: now.AddDate(0, 1, 0), EndDate: now.AddDate(0, 1, 2)}
	db.events["soon"] = &models.Event{ID: "soon", Name: "This Weekend",
		StartDate: now.AddDate(0, 0, 2), EndDate: now.AddDate(0, 0, 4)}
	db.events["past"] = &models.Event{ID: "past", Name: "Last Year",
		StartDate: now.AddDate(-1, 0, 0), EndDate: now.AddDate(-1, 0, 2)}

	seedTicket(db, "t1", "future", "ord1", "uid-ada", models.StatusPurchased, 50, now.Add(-2*time.Hour))
	seedTicket(db, "t2", "future", "ord1", "uid-ada", models.StatusGenerated, 50, now.Add(-2*time.Hour))
	seedTicket(db, "t3", "future", "ord2", "uid-ada", models.StatusUsed, 30, now.Add(-1*time.Hour))
	seedTicket(db, "t4", "soon", "ord3", "uid-ada", models.StatusGenerated, 20, now.Add(-3*time.Hour))
	seedTicket(db, "t5", "past", "ord4", "uid-ada", models.StatusUsed, 10, now.AddDate(-1, 0, -1))

	linker := &fakeLinker{linked: 1}
	s := newTestService(db, &fakePDF{}, &fakeNotifier{}, linker)

	overview, err := s.GetUserTickets(context.Background(), "uid-ada", "ada@example.com")
	require.NoError(t, err)

	assert.Equal(t, 1, linker.calls)
	assert.Equal(t, 1, overview.Linked)

	// Upcoming events first by soonest start, then past ones.
	require.Len(t, overview.Events, 3)
	assert.Equal(t, "soon", overview.Events[0].Event.ID)
	assert.Equal(t, "future", overview.Events[1].Event.ID)
	assert.Equal(t, "past", overview.Events[2].Event.ID)
	assert.True(t, overview.Events[0].Upcoming)
	assert.False(t, overview.Events[2].Upcoming)

	futureGroup := overview.Events[1]
	require.Len(t, futureGroup.Orders, 2)
	// Orders newest first.
	assert.Equal(t, "ord2", futureGroup.Orders[0].OrderID)
	assert.Equal(t, "ord1", futureGroup.Orders[1].OrderID)

	assert.Equal(t, 3, futureGroup.Counts.Total)
	assert.Equal(t, 1, futureGroup.Counts.Pending)
	assert.Equal(t, 1, futureGroup.Counts.Configured)
	assert.Equal(t, 1, futureGroup.Counts.Used)

	ord1 := futureGroup.Orders[1]
	assert.Len(t, ord1.Tickets, 2)
	assert.Equal(t, float64(100), ord1.Amount)
	assert.Equal(t, "EUR", ord1.Currency)
}

func TestGetUserTicketsEmailFallbackForUnboundTickets(t *testing.T) {
	db := newFakeDB()
	now := time.Now()
	db.events["ev1"] = &models.Event{ID: "ev1", Name: "Summer Festival",
		StartDate: now.AddDate(0, 0, 5), EndDate: now.AddDate(0, 0, 7)}
	seedTicket(db, "t1", "ev1", "ord1", "", models.StatusPurchased, 50, now)

	// Linker disabled: simulates linking that has not landed yet.
	s := newTestService(db, &fakePDF{}, &fakeNotifier{}, nil)

	overview, err := s.GetUserTickets(context.Background(), "uid-ada", "ada@example.com")
	require.NoError(t, err)
	require.Len(t, overview.Events, 1)
	assert.Equal(t, 1, overview.Events[0].Counts.Total)
}

func TestGetUserTicketsEmpty(t *testing.T) {
	s := newTestService(newFakeDB(), &fakePDF{}, &fakeNotifier{}, &fakeLinker{})

	overview, err := s.GetUserTickets(context.Background(), "uid-nobody", "nobody@example.com")
	require.NoError(t, err)
	assert.Empty(t, overview.Events)
}

func TestConfigureAttendee(t *testing.T) {
	db := newFakeDB()
	db.events["ev1"] = &models.Event{ID: "ev1", Name: "Summer Festival",
		StartDate: day(2026, 7, 10), EndDate: day(2026, 7, 12)}
	seedTicket(db, "t1", "ev1", "ord1", "uid-ada", models.StatusPurchased, 50, time.Now())

	pdf := &fakePDF{}
	notifier := &fakeNotifier{}
	s := newTestService(db, pdf, notifier, &fakeLinker{})

	ticket, err := s.ConfigureAttendee(context.Background(), "t1", AttendeeInput{
		Name:  "  Grace Hopper ",
		Email: "Grace@Example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, "Grace Hopper", ticket.AttendeeName)
	assert.Equal(t, "grace@example.com", ticket.AttendeeEmail)
	assert.Equal(t, models.StatusGenerated, ticket.Status)
	assert.Equal(t, []byte("png-bytes"), db.tickets["t1"].QRCode)

	assert.Equal(t, 1, pdf.calls)
	assert.Equal(t, []string{"t1"}, notifier.ready)
}

func TestConfigureAttendeeRenameBeforeUse(t *testing.T) {
	db := newFakeDB()
	db.events["ev1"] = &models.Event{ID: "ev1", Name: "Summer Festival",
		StartDate: day(2026, 7, 10), EndDate: day(2026, 7, 12)}
	seedTicket(db, "t1", "ev1", "ord1", "uid-ada", models.StatusPurchased, 50, time.Now())

	s := newTestService(db, &fakePDF{}, &fakeNotifier{}, &fakeLinker{})

	_, err := s.ConfigureAttendee(context.Background(), "t1", AttendeeInput{Name: "Grace"})
	require.NoError(t, err)

	// Reconfiguring an unused ticket is allowed.
	ticket, err := s.ConfigureAttendee(context.Background(), "t1", AttendeeInput{Name: "Margaret"})
	require.NoError(t, err)
	assert.Equal(t, "Margaret", ticket.AttendeeName)
}

func TestConfigureAttendeeRejectedAfterUse(t *testing.T) {
	db := newFakeDB()
	db.events["ev1"] = &models.Event{ID: "ev1", Name: "Summer Festival",
		StartDate: day(2026, 7, 10), EndDate: day(2026, 7, 12)}
	seedTicket(db, "t1", "ev1", "ord1", "uid-ada", models.StatusGenerated, 50, time.Now())
	db.tickets["t1"].AttendeeName = "Grace"
	db.tickets["t1"].UsedDays = models.DateList{"2026-07-10"}

	s := newTestService(db, &fakePDF{}, &fakeNotifier{}, &fakeLinker{})

	_, err := s.ConfigureAttendee(context.Background(), "t1", AttendeeInput{Name: "Margaret"})
	require.Error(t, err)
	assert.Equal(t, errs.AlreadyUsed, errs.KindOf(err))
	assert.Equal(t, "Grace", db.tickets["t1"].AttendeeName)
}

func TestConfigureAttendeeRequiresName(t *testing.T) {
	s := newTestService(newFakeDB(), &fakePDF{}, &fakeNotifier{}, &fakeLinker{})

	_, err := s.ConfigureAttendee(context.Background(), "t1", AttendeeInput{Name: "   "})
	require.Error(t, err)
	assert.Equal(t, errs.InvalidInput, errs.KindOf(err))
}

func TestOwnedBy(t *testing.T) {
	db := newFakeDB()
	db.events["ev1"] = &models.Event{ID: "ev1"}
	seedTicket(db, "t1", "ev1", "ord1", "uid-ada", models.StatusPurchased, 50, time.Now())
	s := newTestService(db, &fakePDF{}, &fakeNotifier{}, &fakeLinker{})

	owned, err := s.OwnedBy(context.Background(), "t1", "uid-ada")
	require.NoError(t, err)
	assert.True(t, owned)

	owned, err = s.OwnedBy(context.Background(), "t1", "uid-other")
	require.NoError(t, err)
	assert.False(t, owned)
}

func TestPreregister(t *testing.T) {
	db := newFakeDB()
	db.events["ev1"] = &models.Event{ID: "ev1", Name: "Summer Festival"}
	s := newTestService(db, &fakePDF{}, &fakeNotifier{}, &fakeLinker{})

	prereg, err := s.Preregister(context.Background(), PreregistrationInput{
		EventID: "ev1",
		Name:    "Ada",
		Email:   "Ada@Example.com",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, prereg.ID)
	assert.Equal(t, "ada@example.com", prereg.Email)

	listed, err := s.ListPreregistrations(context.Background(), "ev1")
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	// Unknown events are rejected up front.
	_, err = s.Preregister(context.Background(), PreregistrationInput{
		EventID: "nope", Name: "Ada", Email: "ada@example.com",
	})
	require.Error(t, err)
	assert.Equal(t, errs.NotFound, errs.KindOf(err))
}
