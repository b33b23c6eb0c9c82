package db_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"ms-verify/internal/database/migrations"
	"ms-verify/internal/models"
	"ms-verify/internal/tickets/db"
)

func setupTestDB(t *testing.T) (*db.DB, *bun.DB) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	if err := migrations.Run(context.Background(), bunDB); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	return &db.DB{Bun: bunDB}, bunDB
}

func newTicket() *models.Ticket {
	return &models.Ticket{
		OrderID:           uuid.New().String(),
		CustomerName:      "Anna Kovalenko",
		TicketType:        "Standard",
		EventDate:         "2024-12-31",
		Price:             25,
		QRToken:           uuid.New().String(),
		QRSignature:       "deadbeefcafe0123",
		VisibleToManagers: true,
		Quantity:          1,
		Status:            models.StatusValid,
	}
}

func TestTicketLookups(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	ticket := newTicket()
	require.NoError(t, store.CreateTicket(ctx, ticket))

	byToken, err := store.GetTicketByToken(ctx, ticket.QRToken)
	require.NoError(t, err)
	assert.Equal(t, ticket.OrderID, byToken.OrderID)

	byOrder, err := store.GetTicketByOrderID(ctx, ticket.OrderID)
	require.NoError(t, err)
	assert.Equal(t, ticket.QRToken, byOrder.QRToken)

	byID, err := store.GetTicketByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.OrderID, byID.OrderID)

	_, err = store.GetTicketByToken(ctx, "missing")
	assert.ErrorIs(t, err, db.ErrTicketNotFound)
	_, err = store.GetTicketByOrderID(ctx, "missing")
	assert.ErrorIs(t, err, db.ErrTicketNotFound)
}

func TestApplyScanConditionalUpdate(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	ticket := newTicket()
	require.NoError(t, store.CreateTicket(ctx, ticket))

	now := time.Now().UTC()
	won, err := store.ApplyScan(ctx, db.ScanMutation{
		TicketID:          ticket.ID,
		ExpectedScanCount: 0,
		ScanCount:         1,
		Status:            models.StatusUsed,
		FirstScanAt:       &now,
		LastScanAt:        now,
		ScannedBy:         "scanner-1",
	})
	require.NoError(t, err)
	assert.True(t, won)

	updated, err := store.GetTicketByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.ScanCount)
	assert.Equal(t, models.StatusUsed, updated.Status)
	assert.Equal(t, "scanner-1", updated.ScannedBy)
	require.NotNil(t, updated.FirstScanAt)

	// A stale expected count loses the swap and changes nothing.
	won, err = store.ApplyScan(ctx, db.ScanMutation{
		TicketID:          ticket.ID,
		ExpectedScanCount: 0,
		ScanCount:         1,
		LastScanAt:        now,
	})
	require.NoError(t, err)
	assert.False(t, won)

	unchanged, err := store.GetTicketByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, unchanged.ScanCount)
}

func TestApplyScanLeavesUnsetColumnsAlone(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	first := time.Now().UTC().Add(-2 * time.Hour)
	ticket := newTicket()
	ticket.ScanCount = 1
	ticket.Status = models.StatusUsed
	ticket.FirstScanAt = &first
	require.NoError(t, store.CreateTicket(ctx, ticket))

	// Duplicate attempt: counter moves, status and first_scan_at stay.
	won, err := store.ApplyScan(ctx, db.ScanMutation{
		TicketID:          ticket.ID,
		ExpectedScanCount: 1,
		ScanCount:         2,
		LastScanAt:        time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.True(t, won)

	updated, err := store.GetTicketByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.ScanCount)
	assert.Equal(t, models.StatusUsed, updated.Status)
	require.NotNil(t, updated.FirstScanAt)
	assert.WithinDuration(t, first, *updated.FirstScanAt, time.Second)
}

func TestCancelTicket(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	ticket := newTicket()
	require.NoError(t, store.CreateTicket(ctx, ticket))

	require.NoError(t, store.CancelTicket(ctx, ticket.OrderID))

	cancelled, err := store.GetTicketByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
	assert.Equal(t, 0, cancelled.ScanCount, "cancel must not touch scan counters")

	assert.ErrorIs(t, store.CancelTicket(ctx, "missing"), db.ErrTicketNotFound)
}

func TestListAndCountTickets(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ticket := newTicket()
		ticket.ClubID = 7
		require.NoError(t, store.CreateTicket(ctx, ticket))
	}
	other := newTicket()
	other.ClubID = 8
	other.Status = models.StatusUsed
	require.NoError(t, store.CreateTicket(ctx, other))

	byClub, err := store.ListTickets(ctx, db.TicketFilter{ClubID: 7})
	require.NoError(t, err)
	assert.Len(t, byClub, 3)

	used, err := store.CountTickets(ctx, db.TicketFilter{Status: models.StatusUsed})
	require.NoError(t, err)
	assert.Equal(t, 1, used)

	all, err := store.CountTickets(ctx, db.TicketFilter{})
	require.NoError(t, err)
	assert.Equal(t, 4, all)
}

func TestCountScansToday(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	events := []models.ScanEvent{
		{OrderID: "A", ScanResult: models.ScanResultDuplicate, ClubID: 7, ScanTime: time.Now().UTC()},
		{OrderID: "B", ScanResult: models.ScanResultInvalid, ClubID: 7, ScanTime: time.Now().UTC()},
		{OrderID: "C", ScanResult: models.ScanResultForged, ClubID: 8, ScanTime: time.Now().UTC()},
		{OrderID: "D", ScanResult: models.ScanResultDuplicate, ClubID: 7, ScanTime: time.Now().UTC().Add(-48 * time.Hour)},
	}
	for i := range events {
		_, err := bunDB.NewInsert().Model(&events[i]).Exec(ctx)
		require.NoError(t, err)
	}

	duplicates, err := store.CountScansToday(ctx, []string{models.ScanResultDuplicate}, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, duplicates, "yesterday's duplicate must not count")

	invalid, err := store.CountScansToday(ctx, []string{models.ScanResultInvalid, models.ScanResultForged}, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, invalid)
}

func TestListHistoryTickets(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	early := time.Now().UTC().Add(-3 * time.Hour)
	late := time.Now().UTC().Add(-1 * time.Hour)

	unscanned := newTicket()
	require.NoError(t, store.CreateTicket(ctx, unscanned))

	scannedEarly := newTicket()
	scannedEarly.FirstScanAt = &early
	require.NoError(t, store.CreateTicket(ctx, scannedEarly))

	scannedLate := newTicket()
	scannedLate.FirstScanAt = &late
	require.NoError(t, store.CreateTicket(ctx, scannedLate))

	history, err := store.ListHistoryTickets(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, scannedLate.OrderID, history[0].OrderID)
	assert.Equal(t, scannedEarly.OrderID, history[1].OrderID)
	assert.Equal(t, unscanned.OrderID, history[2].OrderID)
}
