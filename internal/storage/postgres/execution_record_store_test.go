package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-backtest-lab/internal/domain"
	"token-backtest-lab/internal/storage"
)

func TestExecutionRecordStore_InsertBulkAndGetByVenue(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewExecutionRecordStore(pool)

	records := []*domain.ExecutionRecord{
		{RecordID: "r2", VenueID: "jupiter", Side: domain.SideExit, Quantity: 2, ExpectedPrice: 1, ExecutedPrice: 0.99, LatencyMs: 450, Timestamp: 2_000},
		{RecordID: "r1", VenueID: "jupiter", Side: domain.SideEntry, Quantity: 1, ExpectedPrice: 1, ExecutedPrice: 1.01, LatencyMs: 300, FillPercentage: ptr(0.6), CongestionLevel: 0.7, Timestamp: 1_000},
		{RecordID: "r3", VenueID: "raydium", Side: domain.SideEntry, Quantity: 1, ExpectedPrice: 1, Failed: true, Timestamp: 1_500},
	}
	require.NoError(t, store.InsertBulk(ctx, records))

	got, err := store.GetByVenue(ctx, "jupiter")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "r1", got[0].RecordID)
	require.NotNil(t, got[0].FillPercentage)
	assert.InDelta(t, 0.6, *got[0].FillPercentage, 1e-9)
	assert.Nil(t, got[1].FillPercentage)

	all, err := store.GetByVenue(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.True(t, all[1].Failed)
}

func TestExecutionRecordStore_Duplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewExecutionRecordStore(pool)

	rec := &domain.ExecutionRecord{RecordID: "r1", VenueID: "jupiter", Side: domain.SideEntry}
	require.NoError(t, store.InsertBulk(ctx, []*domain.ExecutionRecord{rec}))

	err := store.InsertBulk(ctx, []*domain.ExecutionRecord{
		{RecordID: "r2", VenueID: "jupiter", Side: domain.SideEntry},
		rec,
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	got, err := store.GetByVenue(ctx, "jupiter")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
