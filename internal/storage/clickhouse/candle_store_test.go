package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-backtest-lab/internal/domain"
	"token-backtest-lab/internal/storage"
)

const testMint = domain.Mint("So11111111111111111111111111111111111111112")

func testCandle(ts int64, price float64) domain.Candle {
	return domain.Candle{Timestamp: ts, Open: price, High: price * 1.02, Low: price * 0.98, Close: price, Volume: 5}
}

func TestCandleStore_InsertBulk(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCandleStore(conn)
	ctx := context.Background()

	err := store.InsertBulk(ctx, testMint, 60, nil)
	assert.NoError(t, err)

	err = store.InsertBulk(ctx, testMint, 60, []domain.Candle{testCandle(120, 3), testCandle(0, 1), testCandle(60, 2)})
	require.NoError(t, err)

	got, err := store.GetByMint(ctx, testMint, 60)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(0), got[0].Timestamp)
	assert.Equal(t, int64(120), got[2].Timestamp)
	assert.Equal(t, 1.02, got[0].High)
}

func TestCandleStore_InsertBulk_DuplicateKey(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCandleStore(conn)
	ctx := context.Background()

	require.NoError(t, store.InsertBulk(ctx, testMint, 60, []domain.Candle{testCandle(0, 1)}))

	err := store.InsertBulk(ctx, testMint, 60, []domain.Candle{testCandle(60, 1), testCandle(0, 1)})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	err = store.InsertBulk(ctx, testMint, 60, []domain.Candle{testCandle(60, 1), testCandle(60, 1)})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	// A different interval is a different series.
	assert.NoError(t, store.InsertBulk(ctx, testMint, 1, []domain.Candle{testCandle(0, 1)}))
}

func TestCandleStore_GetByTimeRange(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCandleStore(conn)
	ctx := context.Background()

	var candles []domain.Candle
	for i := int64(0); i < 10; i++ {
		candles = append(candles, testCandle(i, 1+float64(i)/10))
	}
	require.NoError(t, store.InsertBulk(ctx, testMint, 1, candles))

	got, err := store.GetByTimeRange(ctx, testMint, 1, 2, 6, 0)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, int64(2), got[0].Timestamp)
	assert.Equal(t, int64(5), got[3].Timestamp)

	limited, err := store.GetByTimeRange(ctx, testMint, 1, 0, 10, 3)
	require.NoError(t, err)
	assert.Len(t, limited, 3)
}
