package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"token-backtest-lab/internal/domain"
	"token-backtest-lab/internal/storage"
)

// StrategyAggregateStore is an in-memory implementation of storage.StrategyAggregateStore.
type StrategyAggregateStore struct {
	mu   sync.RWMutex
	data map[string]*domain.StrategyAggregate // keyed by composite key
}

// NewStrategyAggregateStore creates a new in-memory strategy aggregate store.
func NewStrategyAggregateStore() *StrategyAggregateStore {
	return &StrategyAggregateStore{
		data: make(map[string]*domain.StrategyAggregate),
	}
}

// aggregateKey generates a unique key for an aggregate.
func aggregateKey(runID, strategyID, venueID string) string {
	return fmt.Sprintf("%s|%s|%s", runID, strategyID, venueID)
}

func validAggregate(a *domain.StrategyAggregate) bool {
	return a != nil && a.RunID != "" && a.StrategyID != "" && a.VenueID != ""
}

// Insert adds a new aggregate. Returns ErrDuplicateKey if key exists.
func (s *StrategyAggregateStore) Insert(_ context.Context, a *domain.StrategyAggregate) error {
	if !validAggregate(a) {
		return storage.ErrInvalidInput
	}

	key := aggregateKey(a.RunID, a.StrategyID, a.VenueID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[key] = copyAggregate(a)
	return nil
}

// InsertBulk adds multiple aggregates atomically. Fails entire batch on any duplicate.
func (s *StrategyAggregateStore) InsertBulk(_ context.Context, aggregates []*domain.StrategyAggregate) error {
	if len(aggregates) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[string]struct{}, len(aggregates))

	for _, a := range aggregates {
		if !validAggregate(a) {
			return storage.ErrInvalidInput
		}
		key := aggregateKey(a.RunID, a.StrategyID, a.VenueID)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, a := range aggregates {
		s.data[aggregateKey(a.RunID, a.StrategyID, a.VenueID)] = copyAggregate(a)
	}

	return nil
}

// GetByKey retrieves an aggregate by its composite key. Returns ErrNotFound if not exists.
func (s *StrategyAggregateStore) GetByKey(_ context.Context, runID, strategyID, venueID string) (*domain.StrategyAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.data[aggregateKey(runID, strategyID, venueID)]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyAggregate(a), nil
}

// GetByRun retrieves all aggregates of a run, ordered by strategy then venue.
func (s *StrategyAggregateStore) GetByRun(_ context.Context, runID string) ([]*domain.StrategyAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.StrategyAggregate
	for _, a := range s.data {
		if a.RunID == runID {
			result = append(result, copyAggregate(a))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].StrategyID != result[j].StrategyID {
			return result[i].StrategyID < result[j].StrategyID
		}
		return result[i].VenueID < result[j].VenueID
	})

	return result, nil
}

func copyAggregate(a *domain.StrategyAggregate) *domain.StrategyAggregate {
	out := *a
	if a.MeanTailCapture != nil {
		tc := *a.MeanTailCapture
		out.MeanTailCapture = &tc
	}
	return &out
}

var _ storage.StrategyAggregateStore = (*StrategyAggregateStore)(nil)
