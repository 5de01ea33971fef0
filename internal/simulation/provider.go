package simulation

import (
	"context"
	"fmt"
	"time"

	"token-backtest-lab/internal/domain"
	"token-backtest-lab/internal/exit"
	"token-backtest-lab/internal/observability"
	"token-backtest-lab/internal/storage"
)

// StoreProvider serves sub-candles for conflict resolution from a CandleStore.
type StoreProvider struct {
	store    storage.CandleStore
	metrics  *observability.Metrics
	database string // metrics label
}

// NewStoreProvider creates a provider over store. database labels query metrics.
func NewStoreProvider(store storage.CandleStore, metrics *observability.Metrics, database string) *StoreProvider {
	if database == "" {
		database = "memory"
	}
	return &StoreProvider{store: store, metrics: metrics, database: database}
}

var _ exit.CandleProvider = (*StoreProvider)(nil)

// FetchCandles returns candles of req.Mint at req.Interval in [StartTime, EndTime).
func (p *StoreProvider) FetchCandles(ctx context.Context, req exit.FetchRequest) ([]domain.Candle, error) {
	d, err := time.ParseDuration(req.Interval)
	if err != nil || d < time.Second {
		return nil, fmt.Errorf("unsupported sub-candle interval %q", req.Interval)
	}

	start := time.Now()
	candles, err := p.store.GetByTimeRange(ctx, req.Mint, int64(d/time.Second), req.StartTime, req.EndTime, req.Limit)
	p.metrics.RecordDBQuery(p.database, "candles_by_range", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("load sub-candles: %w", err)
	}
	return candles, nil
}
