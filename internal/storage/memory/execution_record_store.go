package memory

import (
	"context"
	"sort"
	"sync"

	"token-backtest-lab/internal/domain"
	"token-backtest-lab/internal/storage"
)

// ExecutionRecordStore is an in-memory implementation of storage.ExecutionRecordStore.
type ExecutionRecordStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ExecutionRecord // keyed by record_id
}

// NewExecutionRecordStore creates a new in-memory execution record store.
func NewExecutionRecordStore() *ExecutionRecordStore {
	return &ExecutionRecordStore{
		data: make(map[string]*domain.ExecutionRecord),
	}
}

// InsertBulk adds multiple records atomically. Fails entire batch on duplicate record_id.
func (s *ExecutionRecordStore) InsertBulk(_ context.Context, records []*domain.ExecutionRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r == nil || r.RecordID == "" || r.VenueID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[r.RecordID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[r.RecordID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[r.RecordID] = struct{}{}
	}

	for _, r := range records {
		s.data[r.RecordID] = copyRecord(r)
	}
	return nil
}

// GetByVenue retrieves all records of a venue, ordered by timestamp ASC.
func (s *ExecutionRecordStore) GetByVenue(_ context.Context, venueID string) ([]*domain.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ExecutionRecord
	for _, r := range s.data {
		if venueID == "" || r.VenueID == venueID {
			result = append(result, copyRecord(r))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Timestamp != result[j].Timestamp {
			return result[i].Timestamp < result[j].Timestamp
		}
		return result[i].RecordID < result[j].RecordID
	})
	return result, nil
}

func copyRecord(r *domain.ExecutionRecord) *domain.ExecutionRecord {
	out := *r
	if r.FillPercentage != nil {
		fp := *r.FillPercentage
		out.FillPercentage = &fp
	}
	return &out
}

var _ storage.ExecutionRecordStore = (*ExecutionRecordStore)(nil)
