package clickhouse

import (
	"context"
	"fmt"

	"token-backtest-lab/internal/domain"
	"token-backtest-lab/internal/storage"
)

// StrategyAggregateStore implements storage.StrategyAggregateStore using ClickHouse.
type StrategyAggregateStore struct {
	conn *Conn
}

// NewStrategyAggregateStore creates a new StrategyAggregateStore.
func NewStrategyAggregateStore(conn *Conn) *StrategyAggregateStore {
	return &StrategyAggregateStore{conn: conn}
}

// Compile-time interface check.
var _ storage.StrategyAggregateStore = (*StrategyAggregateStore)(nil)

const aggregateColumns = `
	run_id, strategy_id, venue_id,
	total_positions, skipped, total_tokens, wins, losses, win_rate, stop_out_rate,
	return_mean_bps, return_median_bps, return_p10_bps, return_p25_bps, return_p75_bps, return_p90_bps,
	return_min_bps, return_max_bps, return_stddev_bps,
	max_drawdown_bps, max_consecutive_losses,
	mean_adverse_excursion_bps, mean_tail_capture
`

// Insert adds a new aggregate. Returns ErrDuplicateKey if key exists.
func (s *StrategyAggregateStore) Insert(ctx context.Context, a *domain.StrategyAggregate) error {
	return s.InsertBulk(ctx, []*domain.StrategyAggregate{a})
}

// InsertBulk adds multiple aggregates atomically. Fails entire batch on any duplicate.
func (s *StrategyAggregateStore) InsertBulk(ctx context.Context, aggregates []*domain.StrategyAggregate) error {
	if len(aggregates) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	seen := make(map[string]struct{})
	for _, a := range aggregates {
		if a == nil || a.RunID == "" || a.StrategyID == "" || a.VenueID == "" {
			return storage.ErrInvalidInput
		}
		key := a.RunID + "|" + a.StrategyID + "|" + a.VenueID
		if _, exists := seen[key]; exists {
			return storage.ErrDuplicateKey
		}
		seen[key] = struct{}{}
	}

	// Check for duplicates against existing DB rows
	// (ReplacingMergeTree would replace, but we want append-only semantics)
	for _, a := range aggregates {
		exists, err := s.exists(ctx, a.RunID, a.StrategyID, a.VenueID)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO strategy_aggregates ("+aggregateColumns+")")
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, a := range aggregates {
		err = batch.Append(
			a.RunID, a.StrategyID, a.VenueID,
			int64(a.TotalPositions), int64(a.Skipped), int64(a.TotalTokens), int64(a.Wins), int64(a.Losses),
			a.WinRate, a.StopOutRate,
			a.ReturnMeanBps, a.ReturnMedianBps, a.ReturnP10Bps, a.ReturnP25Bps, a.ReturnP75Bps, a.ReturnP90Bps,
			a.ReturnMinBps, a.ReturnMaxBps, a.ReturnStddevBps,
			a.MaxDrawdownBps, int64(a.MaxConsecutiveLosses),
			a.MeanAdverseExcursionBps, a.MeanTailCapture,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByKey retrieves an aggregate by its composite key.
func (s *StrategyAggregateStore) GetByKey(ctx context.Context, runID, strategyID, venueID string) (*domain.StrategyAggregate, error) {
	query := "SELECT " + aggregateColumns + `
		FROM strategy_aggregates FINAL
		WHERE run_id = ? AND strategy_id = ? AND venue_id = ?
		LIMIT 1
	`

	rows, err := s.conn.Query(ctx, query, runID, strategyID, venueID)
	if err != nil {
		return nil, fmt.Errorf("query aggregate by key: %w", err)
	}
	defer rows.Close()

	aggregates, err := scanStrategyAggregates(rows)
	if err != nil {
		return nil, err
	}
	if len(aggregates) == 0 {
		return nil, storage.ErrNotFound
	}
	return aggregates[0], nil
}

// GetByRun retrieves all aggregates of a run.
func (s *StrategyAggregateStore) GetByRun(ctx context.Context, runID string) ([]*domain.StrategyAggregate, error) {
	query := "SELECT " + aggregateColumns + `
		FROM strategy_aggregates FINAL
		WHERE run_id = ?
		ORDER BY strategy_id ASC, venue_id ASC
	`

	rows, err := s.conn.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query by run: %w", err)
	}
	defer rows.Close()

	return scanStrategyAggregates(rows)
}

// exists checks if an aggregate with the given key exists.
func (s *StrategyAggregateStore) exists(ctx context.Context, runID, strategyID, venueID string) (bool, error) {
	query := `
		SELECT count(*) FROM strategy_aggregates FINAL
		WHERE run_id = ? AND strategy_id = ? AND venue_id = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, runID, strategyID, venueID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanStrategyAggregates scans multiple rows into a slice.
func scanStrategyAggregates(rows chRows) ([]*domain.StrategyAggregate, error) {
	var aggregates []*domain.StrategyAggregate

	for rows.Next() {
		var (
			a                                    domain.StrategyAggregate
			total, skipped, tokens, wins, losses int64
			maxConsecutiveLosses                 int64
		)
		err := rows.Scan(
			&a.RunID, &a.StrategyID, &a.VenueID,
			&total, &skipped, &tokens, &wins, &losses,
			&a.WinRate, &a.StopOutRate,
			&a.ReturnMeanBps, &a.ReturnMedianBps, &a.ReturnP10Bps, &a.ReturnP25Bps, &a.ReturnP75Bps, &a.ReturnP90Bps,
			&a.ReturnMinBps, &a.ReturnMaxBps, &a.ReturnStddevBps,
			&a.MaxDrawdownBps, &maxConsecutiveLosses,
			&a.MeanAdverseExcursionBps, &a.MeanTailCapture,
		)
		if err != nil {
			return nil, fmt.Errorf("scan aggregate row: %w", err)
		}
		a.TotalPositions = int(total)
		a.Skipped = int(skipped)
		a.TotalTokens = int(tokens)
		a.Wins = int(wins)
		a.Losses = int(losses)
		a.MaxConsecutiveLosses = int(maxConsecutiveLosses)
		aggregates = append(aggregates, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aggregate rows: %w", err)
	}

	return aggregates, nil
}
