package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"token-backtest-lab/internal/domain"
	"token-backtest-lab/internal/storage"
)

// ExecutionRecordStore implements storage.ExecutionRecordStore using PostgreSQL.
type ExecutionRecordStore struct {
	pool *Pool
}

// NewExecutionRecordStore creates a new ExecutionRecordStore.
func NewExecutionRecordStore(pool *Pool) *ExecutionRecordStore {
	return &ExecutionRecordStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ExecutionRecordStore = (*ExecutionRecordStore)(nil)

var executionRecordColumns = []string{
	"record_id", "venue_id", "side", "quantity", "expected_price", "executed_price",
	"latency_ms", "failed", "fill_percentage", "congestion_level", "timestamp_ms",
}

// InsertBulk adds multiple records atomically using COPY. Fails entire batch
// on duplicate record_id.
func (s *ExecutionRecordStore) InsertBulk(ctx context.Context, records []*domain.ExecutionRecord) error {
	if len(records) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(records))
	for _, r := range records {
		if r == nil || r.RecordID == "" || r.VenueID == "" {
			return storage.ErrInvalidInput
		}
		rows = append(rows, []any{
			r.RecordID, r.VenueID, r.Side, r.Quantity, r.ExpectedPrice, r.ExecutedPrice,
			r.LatencyMs, r.Failed, r.FillPercentage, r.CongestionLevel, r.Timestamp,
		})
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.CopyFrom(ctx, pgx.Identifier{"execution_records"}, executionRecordColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return storeError("copy execution records", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByVenue retrieves all records of a venue, ordered by timestamp ASC.
// An empty venueID returns every record.
func (s *ExecutionRecordStore) GetByVenue(ctx context.Context, venueID string) ([]*domain.ExecutionRecord, error) {
	query := `
		SELECT
			record_id, venue_id, side, quantity, expected_price, executed_price,
			latency_ms, failed, fill_percentage, congestion_level, timestamp_ms
		FROM execution_records
		WHERE $1 = '' OR venue_id = $1
		ORDER BY timestamp_ms ASC, record_id ASC
	`

	rows, err := s.pool.Query(ctx, query, venueID)
	if err != nil {
		return nil, fmt.Errorf("get execution records by venue: %w", err)
	}
	defer rows.Close()

	var records []*domain.ExecutionRecord
	for rows.Next() {
		var r domain.ExecutionRecord
		err := rows.Scan(
			&r.RecordID, &r.VenueID, &r.Side, &r.Quantity, &r.ExpectedPrice, &r.ExecutedPrice,
			&r.LatencyMs, &r.Failed, &r.FillPercentage, &r.CongestionLevel, &r.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan execution record row: %w", err)
		}
		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate execution record rows: %w", err)
	}

	return records, nil
}
