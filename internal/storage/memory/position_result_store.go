package memory

import (
	"context"
	"sort"
	"sync"

	"token-backtest-lab/internal/domain"
	"token-backtest-lab/internal/storage"
)

// PositionResultStore is an in-memory implementation of storage.PositionResultStore.
type PositionResultStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PositionResult // keyed by run_id|position_id
}

// NewPositionResultStore creates a new in-memory position result store.
func NewPositionResultStore() *PositionResultStore {
	return &PositionResultStore{
		data: make(map[string]*domain.PositionResult),
	}
}

func resultKey(runID, positionID string) string {
	return runID + "|" + positionID
}

func validResult(r *domain.PositionResult) bool {
	return r != nil && r.RunID != "" && r.PositionID != ""
}

// Insert adds a new result. Returns ErrDuplicateKey if key exists.
func (s *PositionResultStore) Insert(_ context.Context, r *domain.PositionResult) error {
	if !validResult(r) {
		return storage.ErrInvalidInput
	}

	key := resultKey(r.RunID, r.PositionID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[key] = copyResult(r)
	return nil
}

// InsertBulk adds multiple results atomically. Fails entire batch on any duplicate.
func (s *PositionResultStore) InsertBulk(_ context.Context, results []*domain.PositionResult) error {
	if len(results) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(results))
	for _, r := range results {
		if !validResult(r) {
			return storage.ErrInvalidInput
		}
		key := resultKey(r.RunID, r.PositionID)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, r := range results {
		s.data[resultKey(r.RunID, r.PositionID)] = copyResult(r)
	}
	return nil
}

// GetByID retrieves a result by run and position ID. Returns ErrNotFound if not exists.
func (s *PositionResultStore) GetByID(_ context.Context, runID, positionID string) (*domain.PositionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[resultKey(runID, positionID)]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyResult(r), nil
}

// GetByRun retrieves all results of a run, ordered by entry time ASC.
func (s *PositionResultStore) GetByRun(_ context.Context, runID string) ([]*domain.PositionResult, error) {
	return s.filter(func(r *domain.PositionResult) bool {
		return r.RunID == runID
	}), nil
}

// GetByStrategyVenue retrieves all results of a run for a strategy/venue combination.
func (s *PositionResultStore) GetByStrategyVenue(_ context.Context, runID, strategyID, venueID string) ([]*domain.PositionResult, error) {
	return s.filter(func(r *domain.PositionResult) bool {
		return r.RunID == runID && r.StrategyID == strategyID && r.VenueID == venueID
	}), nil
}

func (s *PositionResultStore) filter(match func(*domain.PositionResult) bool) []*domain.PositionResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PositionResult
	for _, r := range s.data {
		if match(r) {
			result = append(result, copyResult(r))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].EntryTsMs != result[j].EntryTsMs {
			return result[i].EntryTsMs < result[j].EntryTsMs
		}
		return result[i].PositionID < result[j].PositionID
	})
	return result
}

func copyResult(r *domain.PositionResult) *domain.PositionResult {
	out := *r
	if r.TailCapture != nil {
		tc := *r.TailCapture
		out.TailCapture = &tc
	}
	return &out
}

var _ storage.PositionResultStore = (*PositionResultStore)(nil)
