package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"token-backtest-lab/internal/domain"
	"token-backtest-lab/internal/storage"
)

// PositionResultStore implements storage.PositionResultStore using PostgreSQL.
type PositionResultStore struct {
	pool *Pool
}

// NewPositionResultStore creates a new PositionResultStore.
func NewPositionResultStore(pool *Pool) *PositionResultStore {
	return &PositionResultStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PositionResultStore = (*PositionResultStore)(nil)

const insertPositionResult = `
	INSERT INTO position_results (
		run_id, position_id, mint, strategy_id, venue_id,
		entry_ts_ms, entry_px, exit_ts_ms, exit_px, exit_reason,
		realized_return_bps, gross_return_bps, total_cost, stop_out,
		max_adverse_excursion_bps, time_exposed_ms, tail_capture,
		peak_price, fill_count, failed_fills, partial_fills, resolution_count,
		entry_notional
	) VALUES (
		$1, $2, $3, $4, $5,
		$6, $7, $8, $9, $10,
		$11, $12, $13, $14,
		$15, $16, $17,
		$18, $19, $20, $21, $22,
		$23
	)
`

const selectPositionResult = `
	SELECT
		run_id, position_id, mint, strategy_id, venue_id,
		entry_ts_ms, entry_px, exit_ts_ms, exit_px, exit_reason,
		realized_return_bps, gross_return_bps, total_cost, stop_out,
		max_adverse_excursion_bps, time_exposed_ms, tail_capture,
		peak_price, fill_count, failed_fills, partial_fills, resolution_count,
		entry_notional
	FROM position_results
`

func positionResultArgs(r *domain.PositionResult) []any {
	return []any{
		r.RunID, r.PositionID, string(r.Mint), r.StrategyID, r.VenueID,
		r.EntryTsMs, r.EntryPx, r.ExitTsMs, r.ExitPx, r.ExitReason,
		r.RealizedReturnBps, r.GrossReturnBps, r.TotalCost, r.StopOut,
		r.MaxAdverseExcursionBps, r.TimeExposedMs, r.TailCapture,
		r.PeakPrice, r.FillCount, r.FailedFills, r.PartialFills, r.ResolutionCount,
		r.EntryNotional,
	}
}

// Insert adds a new result. Returns ErrDuplicateKey if (run_id, position_id) exists.
func (s *PositionResultStore) Insert(ctx context.Context, r *domain.PositionResult) error {
	if r == nil || r.RunID == "" || r.PositionID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, insertPositionResult, positionResultArgs(r)...)
	if err != nil {
		return storeError("insert position result", err)
	}
	return nil
}

// InsertBulk adds multiple results atomically. Fails entire batch on any duplicate.
func (s *PositionResultStore) InsertBulk(ctx context.Context, results []*domain.PositionResult) error {
	if len(results) == 0 {
		return nil
	}
	for _, r := range results {
		if r == nil || r.RunID == "" || r.PositionID == "" {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, r := range results {
		if _, err := tx.Exec(ctx, insertPositionResult, positionResultArgs(r)...); err != nil {
			return storeError("insert position result in bulk", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetByID retrieves a result by run and position ID. Returns ErrNotFound if not exists.
func (s *PositionResultStore) GetByID(ctx context.Context, runID, positionID string) (*domain.PositionResult, error) {
	row := s.pool.QueryRow(ctx, selectPositionResult+" WHERE run_id = $1 AND position_id = $2", runID, positionID)
	r, err := scanPositionResult(row)
	if err != nil {
		return nil, storeError("get position result by id", err)
	}
	return r, nil
}

// GetByRun retrieves all results of a run, ordered by entry time ASC.
func (s *PositionResultStore) GetByRun(ctx context.Context, runID string) ([]*domain.PositionResult, error) {
	query := selectPositionResult + `
		WHERE run_id = $1
		ORDER BY entry_ts_ms ASC, position_id ASC
	`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get position results by run: %w", err)
	}
	defer rows.Close()

	return scanPositionResults(rows)
}

// GetByStrategyVenue retrieves all results of a run for a strategy/venue combination.
func (s *PositionResultStore) GetByStrategyVenue(ctx context.Context, runID, strategyID, venueID string) ([]*domain.PositionResult, error) {
	query := selectPositionResult + `
		WHERE run_id = $1 AND strategy_id = $2 AND venue_id = $3
		ORDER BY entry_ts_ms ASC, position_id ASC
	`

	rows, err := s.pool.Query(ctx, query, runID, strategyID, venueID)
	if err != nil {
		return nil, fmt.Errorf("get position results by strategy/venue: %w", err)
	}
	defer rows.Close()

	return scanPositionResults(rows)
}

// scanPositionResult scans a single row into a PositionResult.
func scanPositionResult(row pgx.Row) (*domain.PositionResult, error) {
	var (
		r    domain.PositionResult
		mint string
	)

	err := row.Scan(
		&r.RunID, &r.PositionID, &mint, &r.StrategyID, &r.VenueID,
		&r.EntryTsMs, &r.EntryPx, &r.ExitTsMs, &r.ExitPx, &r.ExitReason,
		&r.RealizedReturnBps, &r.GrossReturnBps, &r.TotalCost, &r.StopOut,
		&r.MaxAdverseExcursionBps, &r.TimeExposedMs, &r.TailCapture,
		&r.PeakPrice, &r.FillCount, &r.FailedFills, &r.PartialFills, &r.ResolutionCount,
		&r.EntryNotional,
	)
	if err != nil {
		return nil, err
	}
	r.Mint = domain.Mint(mint)

	return &r, nil
}

// scanPositionResults scans multiple rows into a slice of PositionResult.
func scanPositionResults(rows pgx.Rows) ([]*domain.PositionResult, error) {
	var results []*domain.PositionResult

	for rows.Next() {
		r, err := scanPositionResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position result row: %w", err)
		}
		results = append(results, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate position result rows: %w", err)
	}

	return results, nil
}
