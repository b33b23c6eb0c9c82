package verify_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"ms-verify/internal/audit"
	"ms-verify/internal/database/migrations"
	"ms-verify/internal/logger"
	"ms-verify/internal/models"
	"ms-verify/internal/signature"
	ticketdb "ms-verify/internal/tickets/db"
	"ms-verify/internal/verify"
)

func setupIntegration(t *testing.T) (*verify.Service, *ticketdb.DB, *bun.DB) {
	t.Helper()

	sqldb, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// One connection so concurrent verifies share the same in-memory DB.
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	require.NoError(t, migrations.Run(context.Background(), bunDB))

	store := &ticketdb.DB{Bun: bunDB}
	signer := signature.NewSigner(testSecret)
	svc := verify.NewService(store, audit.NewRecorder(bunDB), signature.NewVerifier(signer), logger.NewConsoleLogger(), 10)
	return svc, store, bunDB
}

// Two simultaneous scans of a single-entry ticket: exactly one admission,
// the other observes a duplicate.
func TestConcurrentScansAdmitOnce(t *testing.T) {
	svc, store, bunDB := setupIntegration(t)
	defer bunDB.Close()
	ctx := context.Background()

	ticket := testTicket(1)
	ticket.ID = 0
	require.NoError(t, store.CreateTicket(ctx, ticket))
	raw := signedPayload(t, ticket)

	var wg sync.WaitGroup
	results := make([]*verify.Result, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Verify(ctx, "scanner-1", raw)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	statuses := map[string]int{}
	for _, r := range results {
		statuses[r.Status]++
	}
	assert.Equal(t, 1, statuses[verify.OutcomeValid], "exactly one scan may admit")
	assert.Equal(t, 1, statuses[verify.OutcomeUsed])

	final, err := store.GetTicketByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, final.ScanCount)
	assert.Equal(t, models.StatusUsed, final.Status)

	auditRows, err := bunDB.NewSelect().Model((*models.ScanEvent)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, auditRows)
}

func TestGroupTicketLifecycle(t *testing.T) {
	svc, store, bunDB := setupIntegration(t)
	defer bunDB.Close()
	ctx := context.Background()

	ticket := testTicket(3)
	ticket.ID = 0
	require.NoError(t, store.CreateTicket(ctx, ticket))
	raw := signedPayload(t, ticket)

	for _, wantRemaining := range []int{2, 1, 0} {
		result, err := svc.Verify(ctx, "scanner-1", raw)
		require.NoError(t, err)
		assert.Equal(t, verify.OutcomeValid, result.Status)
		assert.Equal(t, wantRemaining, result.Data["remaining_entries"])
	}

	result, err := svc.Verify(ctx, "scanner-1", raw)
	require.NoError(t, err)
	assert.Equal(t, verify.OutcomeUsed, result.Status)
	assert.Equal(t, "All entries used (3/3)", result.Message)

	final, err := store.GetTicketByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUsed, final.Status)
	assert.Equal(t, 4, final.ScanCount)
	require.NotNil(t, final.FirstScanAt)
}

// After the expiry window the ticket keeps rejecting as expired, never as
// used, because its status was never flipped.
func TestExpiryAcrossScans(t *testing.T) {
	svc, store, bunDB := setupIntegration(t)
	defer bunDB.Close()
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	svc.Now = func() time.Time { return base }

	ticket := testTicket(2)
	ticket.ID = 0
	require.NoError(t, store.CreateTicket(ctx, ticket))
	raw := signedPayload(t, ticket)

	result, err := svc.Verify(ctx, "scanner-1", raw)
	require.NoError(t, err)
	require.Equal(t, verify.OutcomeValid, result.Status)

	svc.Now = func() time.Time { return base.Add(11 * time.Hour) }

	for i := 0; i < 2; i++ {
		result, err = svc.Verify(ctx, "scanner-1", raw)
		require.NoError(t, err)
		assert.Equal(t, verify.OutcomeExpired, result.Status)
	}

	final, err := store.GetTicketByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusValid, final.Status, "expiry never flips status to used")
	assert.Equal(t, 3, final.ScanCount)
}

func TestMalformedScanLeavesAuditRowWithoutTicket(t *testing.T) {
	svc, _, bunDB := setupIntegration(t)
	defer bunDB.Close()
	ctx := context.Background()

	result, err := svc.Verify(ctx, "scanner-1", "GARBAGE|1|2")
	require.NoError(t, err)
	assert.Equal(t, verify.OutcomeInvalid, result.Status)

	var events []models.ScanEvent
	require.NoError(t, bunDB.NewSelect().Model(&events).Scan(ctx))
	require.Len(t, events, 1)
	assert.Nil(t, events[0].TicketID)
	assert.Equal(t, "", events[0].OrderID)
	assert.Equal(t, models.ScanResultInvalid, events[0].ScanResult)
}
