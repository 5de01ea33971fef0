package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"token-backtest-lab/internal/domain"
	"token-backtest-lab/internal/lookup"
	"token-backtest-lab/internal/storage"
)

// CandleStore is an in-memory implementation of storage.CandleStore.
type CandleStore struct {
	mu   sync.RWMutex
	data map[string]map[int64]domain.Candle // series key -> timestamp -> candle
}

// NewCandleStore creates a new in-memory candle store.
func NewCandleStore() *CandleStore {
	return &CandleStore{
		data: make(map[string]map[int64]domain.Candle),
	}
}

// seriesKey generates a unique key for a (mint, interval) series.
func seriesKey(mint domain.Mint, interval int64) string {
	return fmt.Sprintf("%s|%d", mint, interval)
}

// InsertBulk adds candles for one series. Fails entire batch on duplicate.
func (s *CandleStore) InsertBulk(_ context.Context, mint domain.Mint, interval int64, candles []domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	if mint == "" || interval <= 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := seriesKey(mint, interval)
	existing := s.data[key]

	batch := make(map[int64]struct{}, len(candles))
	for _, c := range candles {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
		}
		if _, exists := existing[c.Timestamp]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batch[c.Timestamp]; exists {
			return storage.ErrDuplicateKey
		}
		batch[c.Timestamp] = struct{}{}
	}

	if existing == nil {
		existing = make(map[int64]domain.Candle, len(candles))
		s.data[key] = existing
	}
	for _, c := range candles {
		existing[c.Timestamp] = c
	}
	return nil
}

// GetByMint retrieves all candles of a series, ordered by timestamp ASC.
func (s *CandleStore) GetByMint(_ context.Context, mint domain.Mint, interval int64) ([]domain.Candle, error) {
	return s.sorted(mint, interval), nil
}

// GetByTimeRange retrieves candles within [start, end), ordered by timestamp ASC.
func (s *CandleStore) GetByTimeRange(_ context.Context, mint domain.Mint, interval int64, start, end int64, limit int) ([]domain.Candle, error) {
	result := lookup.Window(s.sorted(mint, interval), start, end)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// sorted returns a copy of the series ordered by timestamp.
func (s *CandleStore) sorted(mint domain.Mint, interval int64) []domain.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.data[seriesKey(mint, interval)]
	result := make([]domain.Candle, 0, len(series))
	for _, c := range series {
		result = append(result, c)
	}
	sortCandles(result)
	return result
}

func sortCandles(candles []domain.Candle) {
	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Timestamp < candles[j].Timestamp
	})
}

var _ storage.CandleStore = (*CandleStore)(nil)
