package main

import (
	"context"
	"fmt"

	"token-backtest-lab/internal/config"
	"token-backtest-lab/internal/storage"
	chstore "token-backtest-lab/internal/storage/clickhouse"
	"token-backtest-lab/internal/storage/memory"
	pgstore "token-backtest-lab/internal/storage/postgres"
)

// stores bundles the storage backends of one command.
type stores struct {
	candles    storage.CandleStore
	results    storage.PositionResultStore
	records    storage.ExecutionRecordStore
	aggregates storage.StrategyAggregateStore

	database string // metrics label for candle queries
	closers  []func()
}

// openStores connects the configured backends. Candles and aggregates live
// in ClickHouse, position results and execution records in PostgreSQL.
func openStores(ctx context.Context, cfg config.StorageConfig) (*stores, error) {
	if cfg.UseMemory {
		return &stores{
			candles:    memory.NewCandleStore(),
			results:    memory.NewPositionResultStore(),
			records:    memory.NewExecutionRecordStore(),
			aggregates: memory.NewStrategyAggregateStore(),
			database:   "memory",
		}, nil
	}

	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("postgres_dsn is required when not using memory storage (position results, execution records)")
	}
	if cfg.ClickhouseDSN == "" {
		return nil, fmt.Errorf("clickhouse_dsn is required when not using memory storage (candles, aggregates)")
	}

	s := &stores{database: "clickhouse"}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	s.closers = append(s.closers, pool.Close)
	s.results = pgstore.NewPositionResultStore(pool)
	s.records = pgstore.NewExecutionRecordStore(pool)

	conn, err := chstore.NewConn(ctx, cfg.ClickhouseDSN)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	s.closers = append(s.closers, func() { _ = conn.Close() })
	s.candles = chstore.NewCandleStore(conn)
	s.aggregates = chstore.NewStrategyAggregateStore(conn)

	return s, nil
}

// Close releases connections in reverse order of opening.
func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}
