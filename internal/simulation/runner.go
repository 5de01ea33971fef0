package simulation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"token-backtest-lab/internal/domain"
	"token-backtest-lab/internal/execution"
	"token-backtest-lab/internal/idhash"
	"token-backtest-lab/internal/observability"
	"token-backtest-lab/internal/storage"
	"token-backtest-lab/internal/strategy"
)

// Runner errors
var (
	ErrUnknownVenue    = errors.New("unknown venue")
	ErrInvalidPosition = errors.New("invalid position spec")
)

// Runner resolves a PositionSpec against configured strategies and venues,
// loads its candles and runs it through the Executor.
type Runner struct {
	candles    storage.CandleStore
	results    storage.PositionResultStore
	executor   *Executor
	strategies *strategy.Registry
	venues     map[string]domain.Venue
	seed       uint64
	database   string
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Candles    storage.CandleStore
	Results    storage.PositionResultStore // nil disables persistence
	Executor   *Executor                   // nil = NewExecutor with defaults
	Strategies *strategy.Registry
	Venues     map[string]domain.Venue // predefined venues are used for missing IDs
	Seed       uint64                  // run seed; per-position seeds derive from it
	Database   string                  // metrics label for candle queries
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// NewRunner creates a simulation runner.
func NewRunner(opts RunnerOptions) *Runner {
	r := &Runner{
		candles:    opts.Candles,
		results:    opts.Results,
		executor:   opts.Executor,
		strategies: opts.Strategies,
		venues:     opts.Venues,
		seed:       opts.Seed,
		database:   opts.Database,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.executor == nil {
		r.executor = NewExecutor(ExecutorOptions{Metrics: r.metrics, Logger: r.logger})
	}
	if r.database == "" {
		r.database = "memory"
	}
	return r
}

// Venue returns the configured venue, falling back to the predefined scenarios.
func (r *Runner) Venue(id string) (domain.Venue, error) {
	if v, ok := r.venues[id]; ok {
		return v, nil
	}
	if v, ok := domain.PredefinedVenue(id); ok {
		return v, nil
	}
	return domain.Venue{}, fmt.Errorf("%w: %s", ErrUnknownVenue, id)
}

// PositionID returns the deterministic ID of spec.
func PositionID(spec domain.PositionSpec) string {
	return idhash.ComputePositionID(spec.Mint.String(), spec.StrategyID, spec.VenueID, spec.EntryTimestamp)
}

// Run simulates one position and persists its result under runID.
// Steps:
//  1. Validate spec and resolve strategy and venue
//  2. Load candles from entry onward
//  3. Derive position ID and seed
//  4. Simulate
//  5. Persist PositionResult
func (r *Runner) Run(ctx context.Context, runID string, spec domain.PositionSpec) (*domain.PositionResult, error) {
	// 1. Validate and resolve
	if err := spec.Mint.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPosition, err)
	}
	if spec.IntervalSeconds <= 0 {
		return nil, fmt.Errorf("%w: interval must be positive", ErrInvalidPosition)
	}
	strat, err := r.strategies.Get(spec.StrategyID)
	if err != nil {
		return nil, err
	}
	venue, err := r.Venue(spec.VenueID)
	if err != nil {
		return nil, err
	}

	// 2. Load candles
	candles, err := r.loadCandles(ctx, spec, strat)
	if err != nil {
		return nil, err
	}

	// 3. Identity and randomness
	positionID := PositionID(spec)
	rng := execution.NewRand(idhash.DerivePositionSeed(r.seed, positionID))

	// 4. Simulate
	result, err := r.executor.Simulate(ctx, Input{
		PositionID:      positionID,
		Mint:            spec.Mint,
		Strategy:        strat,
		Venue:           venue,
		Candles:         candles,
		IntervalSeconds: spec.IntervalSeconds,
		EntryPrice:      spec.EntryPrice,
		EntryTimestamp:  spec.EntryTimestamp,
		Notional:        spec.Notional,
		CongestionLevel: spec.CongestionLevel,
		Indicators:      spec.Indicators,
		Rand:            rng,
	})
	if err != nil {
		return nil, fmt.Errorf("simulate %s: %w", positionID, err)
	}
	result.RunID = runID

	// 5. Persist
	if r.results != nil {
		if err := r.results.Insert(ctx, result); err != nil {
			return nil, fmt.Errorf("persist %s: %w", positionID, err)
		}
	}

	r.logger.Debug("position simulated",
		zap.String("run_id", runID),
		zap.String("position_id", positionID),
		zap.String("exit_reason", result.ExitReason),
		zap.Float64("realized_bps", result.RealizedReturnBps))

	return result, nil
}

// Rejected builds the result of a position the risk breaker refused.
func Rejected(runID string, spec domain.PositionSpec) *domain.PositionResult {
	ts := spec.EntryTimestamp * 1000
	return &domain.PositionResult{
		RunID:      runID,
		PositionID: PositionID(spec),
		Mint:       spec.Mint,
		StrategyID: spec.StrategyID,
		VenueID:    spec.VenueID,
		EntryTsMs:  ts,
		EntryPx:    spec.EntryPrice,
		ExitTsMs:   ts,
		ExitPx:     spec.EntryPrice,
		ExitReason: domain.ExitReasonRiskRejected,
	}
}

// Persist stores a result produced outside Run, e.g. a risk rejection.
func (r *Runner) Persist(ctx context.Context, result *domain.PositionResult) error {
	if r.results == nil {
		return nil
	}
	return r.results.Insert(ctx, result)
}

func (r *Runner) loadCandles(ctx context.Context, spec domain.PositionSpec, strat *strategy.Strategy) ([]domain.Candle, error) {
	limit := 0
	if hold := strat.Config.MaxHoldCandles; hold != nil {
		limit = *hold
	}

	start := time.Now()
	candles, err := r.candles.GetByTimeRange(ctx, spec.Mint, spec.IntervalSeconds, spec.EntryTimestamp, math.MaxInt64, limit)
	r.metrics.RecordDBQuery(r.database, "candles_from_entry", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("load candles for %s: %w", spec.Mint, err)
	}
	return candles, nil
}
