package db

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-boxoffice/internal/errs"
	"ms-boxoffice/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })

	ctx := context.Background()
	for _, model := range []interface{}{
		(*models.Event)(nil),
		(*models.TicketType)(nil),
		(*models.Ticket)(nil),
		(*models.TicketLog)(nil),
		(*models.Preregistration)(nil),
	} {
		_, err := bunDB.NewCreateTable().Model(model).IfNotExists().Exec(ctx)
		require.NoError(t, err)
		_, err = bunDB.NewTruncateTable().Model(model).Exec(ctx)
		require.NoError(t, err)
	}

	return &DB{Bun: bunDB}
}

func seedEvent(t *testing.T, d *DB) {
	t.Helper()
	ctx := context.Background()

	event := models.Event{
		ID:        "ev1",
		Name:      "Summer Festival",
		Slug:      "summer-festival",
		StartDate: time.Date(2026, 7, 10, 8, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 7, 12, 23, 0, 0, 0, time.UTC),
		CreatedAt: time.Now(),
	}
	_, err := d.Bun.NewInsert().Model(&event).Exec(ctx)
	require.NoError(t, err)

	tt := models.TicketType{
		ID:         "tt1",
		EventID:    "ev1",
		Name:       "Full Pass",
		AccessType: models.AccessAllDays,
		Price:      50,
		Currency:   "EUR",
	}
	_, err = d.Bun.NewInsert().Model(&tt).Exec(ctx)
	require.NoError(t, err)
}

func ticket(id, orderID string) models.Ticket {
	return models.Ticket{
		ID:             id,
		QRID:           "qr_" + id,
		OrderID:        orderID,
		EventID:        "ev1",
		TicketTypeID:   "tt1",
		CustomerName:   "Ada",
		CustomerEmail:  "ada@example.com",
		Status:         models.StatusPurchased,
		Price:          50,
		Currency:       "EUR",
		AuthorizedDays: models.DateList{"2026-07-10", "2026-07-11", "2026-07-12"},
		IssuedAt:       time.Now().UTC(),
	}
}

func TestGetEventByID(t *testing.T) {
	d := newTestDB(t)
	seedEvent(t, d)
	ctx := context.Background()

	event, err := d.GetEventByID(ctx, "ev1")
	require.NoError(t, err)
	assert.Equal(t, "Summer Festival", event.Name)

	_, err = d.GetEventByID(ctx, "missing")
	require.Error(t, err)
	assert.Equal(t, errs.NotFound, errs.KindOf(err))
}

func TestCreateTicketsBatchAndRoundtrip(t *testing.T) {
	d := newTestDB(t)
	seedEvent(t, d)
	ctx := context.Background()

	batch := []models.Ticket{ticket("t1", "ord1"), ticket("t2", "ord1")}
	require.NoError(t, d.CreateTicketsBatch(ctx, batch))

	got, err := d.GetTicketByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.DateList{"2026-07-10", "2026-07-11", "2026-07-12"}, got.AuthorizedDays)
	assert.Empty(t, got.UsedDays)

	byQR, err := d.GetTicketByQRID(ctx, "qr_t2")
	require.NoError(t, err)
	assert.Equal(t, "t2", byQR.ID)

	byOrder, err := d.GetTicketsByOrder(ctx, "ord1")
	require.NoError(t, err)
	assert.Len(t, byOrder, 2)
}

func TestCreateTicketsBatchAtomic(t *testing.T) {
	d := newTestDB(t)
	seedEvent(t, d)
	ctx := context.Background()

	require.NoError(t, d.CreateTicketsBatch(ctx, []models.Ticket{ticket("t1", "ord1")}))

	// The second batch reuses an existing primary key: nothing from the
	// batch may survive.
	bad := []models.Ticket{ticket("t2", "ord2"), ticket("t1", "ord2")}
	err := d.CreateTicketsBatch(ctx, bad)
	require.Error(t, err)

	exists, err := d.OrderExists(ctx, "ord2")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = d.GetTicketByID(ctx, "t2")
	assert.Equal(t, errs.NotFound, errs.KindOf(err))
}

func TestOrderExists(t *testing.T) {
	d := newTestDB(t)
	seedEvent(t, d)
	ctx := context.Background()

	exists, err := d.OrderExists(ctx, "ord1")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, d.CreateTicketsBatch(ctx, []models.Ticket{ticket("t1", "ord1")}))

	exists, err = d.OrderExists(ctx, "ord1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestEmailLookupsCaseInsensitive(t *testing.T) {
	d := newTestDB(t)
	seedEvent(t, d)
	ctx := context.Background()

	tk := ticket("t1", "ord1")
	tk.CustomerEmail = "Ada@Example.com"
	require.NoError(t, d.CreateTicketsBatch(ctx, []models.Ticket{tk}))

	byEmail, err := d.GetTicketsByCustomerEmail(ctx, "ADA@example.COM")
	require.NoError(t, err)
	assert.Len(t, byEmail, 1)

	unbound, err := d.GetUnboundTicketsByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Len(t, unbound, 1)
}

func TestMutateTicketAppliesAndLogs(t *testing.T) {
	d := newTestDB(t)
	seedEvent(t, d)
	ctx := context.Background()
	require.NoError(t, d.CreateTicketsBatch(ctx, []models.Ticket{ticket("t1", "ord1")}))

	now := time.Now().UTC().Truncate(time.Second)
	updated, err := d.MutateTicket(ctx, "t1", func(tk *models.Ticket) (*models.TicketLog, error) {
		tk.UsedDays = append(tk.UsedDays, "2026-07-10")
		tk.LastCheckinDay = "2026-07-10"
		tk.LastCheckinBy = "op-1"
		return &models.TicketLog{
			ID:          "log1",
			TicketID:    tk.ID,
			QRID:        tk.QRID,
			EventID:     tk.EventID,
			Action:      models.CheckinAction,
			Day:         "2026-07-10",
			PerformedBy: "op-1",
			PerformedAt: now,
		}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.DateList{"2026-07-10"}, updated.UsedDays)

	stored, err := d.GetTicketByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "op-1", stored.LastCheckinBy)

	logs, err := d.GetTicketLogs(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.CheckinAction, logs[0].Action)
}

func TestMutateTicketRejectionLeavesRowUntouched(t *testing.T) {
	d := newTestDB(t)
	seedEvent(t, d)
	ctx := context.Background()
	require.NoError(t, d.CreateTicketsBatch(ctx, []models.Ticket{ticket("t1", "ord1")}))

	_, err := d.MutateTicket(ctx, "t1", func(tk *models.Ticket) (*models.TicketLog, error) {
		tk.UsedDays = append(tk.UsedDays, "2026-07-10")
		return nil, errs.E(errs.AlreadyCheckedInToday, "nope")
	})
	require.Error(t, err)
	assert.Equal(t, errs.AlreadyCheckedInToday, errs.KindOf(err))

	stored, err := d.GetTicketByID(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, stored.UsedDays)

	logs, err := d.GetTicketLogs(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestBindTicketToUser(t *testing.T) {
	d := newTestDB(t)
	seedEvent(t, d)
	ctx := context.Background()

	tk := ticket("t1", "ord1")
	tk.RecoveryEmail = "ada@example.com"
	tk.RecoveryStatus = models.RecoveryPending
	require.NoError(t, d.CreateTicketsBatch(ctx, []models.Ticket{tk}))

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, d.BindTicketToUser(ctx, "t1", "uid-ada", now))

	stored, err := d.GetTicketByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "uid-ada", stored.UserID)
	assert.Equal(t, models.LinkedViaAutoRecovery, stored.LinkedVia)
	assert.Equal(t, models.RecoveryRecovered, stored.RecoveryStatus)
	assert.Equal(t, "uid-ada", stored.RecoveryLinkedTo)

	// Bound tickets drop out of the orphan query.
	unbound, err := d.GetUnboundTicketsByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Empty(t, unbound)
}

func TestIncrementSoldCount(t *testing.T) {
	d := newTestDB(t)
	seedEvent(t, d)
	ctx := context.Background()

	require.NoError(t, d.IncrementSoldCount(ctx, "tt1", 3))
	require.NoError(t, d.IncrementSoldCount(ctx, "tt1", 2))

	tt, err := d.GetTicketTypeByID(ctx, "tt1")
	require.NoError(t, err)
	assert.Equal(t, 5, tt.SoldCount)
}

func TestGetCourtesyTickets(t *testing.T) {
	d := newTestDB(t)
	seedEvent(t, d)
	ctx := context.Background()

	normal := ticket("t1", "ord1")
	courtesy := ticket("t2", "ord2")
	courtesy.IsCourtesy = true
	courtesy.CourtesyType = "press"
	courtesy.Price = 0
	require.NoError(t, d.CreateTicketsBatch(ctx, []models.Ticket{normal, courtesy}))

	got, err := d.GetCourtesyTickets(ctx, "ev1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "t2", got[0].ID)

	all, err := d.GetCourtesyTickets(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestPreregistrations(t *testing.T) {
	d := newTestDB(t)
	seedEvent(t, d)
	ctx := context.Background()

	require.NoError(t, d.CreatePreregistration(ctx, models.Preregistration{
		ID: "p1", EventID: "ev1", Name: "Ada", Email: "ada@example.com", CreatedAt: time.Now(),
	}))

	got, err := d.GetPreregistrationsByEvent(ctx, "ev1")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
