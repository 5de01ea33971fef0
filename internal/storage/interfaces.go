package storage

import (
	"context"

	"token-backtest-lab/internal/domain"
)

// CandleStore provides access to candles storage.
type CandleStore interface {
	// InsertBulk adds candles for one mint and interval. Fails entire batch on
	// duplicate (mint, interval, timestamp).
	InsertBulk(ctx context.Context, mint domain.Mint, interval int64, candles []domain.Candle) error

	// GetByMint retrieves all candles of a series, ordered by timestamp ASC.
	GetByMint(ctx context.Context, mint domain.Mint, interval int64) ([]domain.Candle, error)

	// GetByTimeRange retrieves candles with timestamp in [start, end), ordered by
	// timestamp ASC. A limit <= 0 means no limit.
	GetByTimeRange(ctx context.Context, mint domain.Mint, interval int64, start, end int64, limit int) ([]domain.Candle, error)
}

// PositionResultStore provides access to position_results storage.
type PositionResultStore interface {
	// Insert adds a new result. Returns ErrDuplicateKey if (run_id, position_id) exists.
	Insert(ctx context.Context, r *domain.PositionResult) error

	// InsertBulk adds multiple results atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, results []*domain.PositionResult) error

	// GetByID retrieves a result by run and position ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, runID, positionID string) (*domain.PositionResult, error)

	// GetByRun retrieves all results of a run, ordered by entry time ASC.
	GetByRun(ctx context.Context, runID string) ([]*domain.PositionResult, error)

	// GetByStrategyVenue retrieves all results of a run for a strategy/venue combination.
	GetByStrategyVenue(ctx context.Context, runID, strategyID, venueID string) ([]*domain.PositionResult, error)
}

// ExecutionRecordStore provides access to execution_records storage.
type ExecutionRecordStore interface {
	// InsertBulk adds multiple records atomically. Fails entire batch on duplicate record_id.
	InsertBulk(ctx context.Context, records []*domain.ExecutionRecord) error

	// GetByVenue retrieves all records of a venue, ordered by timestamp ASC.
	// An empty venueID returns every record.
	GetByVenue(ctx context.Context, venueID string) ([]*domain.ExecutionRecord, error)
}

// StrategyAggregateStore provides access to strategy_aggregates storage.
type StrategyAggregateStore interface {
	// Insert adds a new aggregate. Returns ErrDuplicateKey if key exists.
	Insert(ctx context.Context, a *domain.StrategyAggregate) error

	// InsertBulk adds multiple aggregates atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, aggregates []*domain.StrategyAggregate) error

	// GetByKey retrieves an aggregate by its composite key.
	GetByKey(ctx context.Context, runID, strategyID, venueID string) (*domain.StrategyAggregate, error)

	// GetByRun retrieves all aggregates of a run.
	GetByRun(ctx context.Context, runID string) ([]*domain.StrategyAggregate, error)
}
