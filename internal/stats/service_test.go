package stats_test

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
	"ms-verify/internal/logger"
	"ms-verify/internal/models"
	"ms-verify/internal/stats"
	ticketdb "ms-verify/internal/tickets/db"
)

func setupStats(t *testing.T) (*stats.Service, *ticketdb.DB, *bun.DB) {
	t.Helper()

	sqldb, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	require.NoError(t, migrations.Run(context.Background(), bunDB))

	store := &ticketdb.DB{Bun: bunDB}
	svc := stats.NewService(store, nil, 30*time.Second, logger.NewConsoleLogger())
	return svc, store, bunDB
}

func seedTicket(t *testing.T, store *ticketdb.DB, status string, scanCount int, firstScan *time.Time) *models.Ticket {
	t.Helper()
	ticket := &models.Ticket{
		OrderID:           uuid.New().String(),
		CustomerName:      "Guest",
		TicketType:        "Standard",
		EventDate:         "2024-12-31",
		Price:             25,
		QRToken:           uuid.New().String(),
		VisibleToManagers: true,
		Quantity:          1,
		Status:            status,
		ScanCount:         scanCount,
		FirstScanAt:       firstScan,
	}
	require.NoError(t, store.CreateTicket(context.Background(), ticket))
	return ticket
}

func TestGetStats(t *testing.T) {
	svc, store, bunDB := setupStats(t)
	defer bunDB.Close()
	ctx := context.Background()

	now := time.Now().UTC()
	seedTicket(t, store, models.StatusValid, 0, nil)
	seedTicket(t, store, models.StatusValid, 0, nil)
	seedTicket(t, store, models.StatusUsed, 1, &now)
	seedTicket(t, store, models.StatusCancelled, 0, nil)

	events := []models.ScanEvent{
		{OrderID: "A", ScanResult: models.ScanResultDuplicate, ScanTime: now},
		{OrderID: "B", ScanResult: models.ScanResultInvalid, ScanTime: now},
		{OrderID: "C", ScanResult: models.ScanResultForged, ScanTime: now},
		{OrderID: "D", ScanResult: models.ScanResultValid, ScanTime: now},
	}
	for i := range events {
		_, err := bunDB.NewInsert().Model(&events[i]).Exec(ctx)
		require.NoError(t, err)
	}

	got, err := svc.GetStats(ctx, "", 0)
	require.NoError(t, err)
	assert.Equal(t, 4, got.TotalTickets)
	assert.Equal(t, 1, got.Entered)
	assert.Equal(t, 2, got.Pending)
	assert.Equal(t, 1, got.Cancelled)
	assert.Equal(t, 1, got.DuplicateAttempts)
	assert.Equal(t, 2, got.InvalidAttempts)
}

func TestGetHistoryDisplayStatuses(t *testing.T) {
	svc, store, bunDB := setupStats(t)
	defer bunDB.Close()
	ctx := context.Background()

	now := time.Now().UTC()
	earlier := now.Add(-2 * time.Hour)

	entered := seedTicket(t, store, models.StatusUsed, 1, &now)
	duplicate := seedTicket(t, store, models.StatusUsed, 3, &earlier)
	cancelled := seedTicket(t, store, models.StatusCancelled, 0, nil)
	pending := seedTicket(t, store, models.StatusValid, 0, nil)

	history, err := svc.GetHistory(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, history.Items, 4)

	byOrder := map[string]string{}
	for _, item := range history.Items {
		byOrder[item.OrderID] = item.Status
	}
	assert.Equal(t, "entered", byOrder[entered.OrderID])
	assert.Equal(t, "duplicate", byOrder[duplicate.OrderID])
	assert.Equal(t, "cancelled", byOrder[cancelled.OrderID])
	assert.Equal(t, "pending", byOrder[pending.OrderID])

	// Scanned tickets come first, newest scan on top.
	assert.Equal(t, entered.OrderID, history.Items[0].OrderID)
	assert.Equal(t, duplicate.OrderID, history.Items[1].OrderID)

	assert.Equal(t, 4, history.Stats["bought"])
	assert.Equal(t, 2, history.Stats["entered"])
	assert.Equal(t, 2, history.Stats["pending"])
}
