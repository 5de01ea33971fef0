// Package orchestrator runs batches of positions through the simulation runner.
// It coordinates: risk gating → simulation → metrics aggregation
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"token-backtest-lab/internal/domain"
	"token-backtest-lab/internal/metrics"
	"token-backtest-lab/internal/observability"
	"token-backtest-lab/internal/risk"
	"token-backtest-lab/internal/simulation"
	"token-backtest-lab/internal/storage"
)

// DefaultWorkers is the worker count used when Options.Workers is unset.
const DefaultWorkers = 4

// Orchestrator coordinates one backtest run over a batch of positions.
//
// Without a ledger positions are independent and simulated in parallel.
// With a ledger every position is gated by the shared risk budget, so
// positions are processed one by one in entry order.
type Orchestrator struct {
	runner     *simulation.Runner
	aggregator *metrics.Aggregator
	ledger     *risk.Ledger
	workers    int
	newRunID   func() string
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// Options for creating Orchestrator.
type Options struct {
	Runner     *simulation.Runner
	Aggregator *metrics.Aggregator // nil skips aggregation
	Ledger     *risk.Ledger        // nil = independent positions

	Workers  int           // parallel mode only; <= 0 uses DefaultWorkers
	NewRunID func() string // nil = random UUID

	Metrics *observability.Metrics
	Logger  *zap.Logger
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		runner:     opts.Runner,
		aggregator: opts.Aggregator,
		ledger:     opts.Ledger,
		workers:    opts.Workers,
		newRunID:   opts.NewRunID,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
	}
	if o.workers <= 0 {
		o.workers = DefaultWorkers
	}
	if o.newRunID == nil {
		o.newRunID = func() string { return uuid.NewString() }
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

// RunResult contains results from orchestrator execution.
type RunResult struct {
	RunID      string
	Positions  int
	Simulated  int // entered positions
	NoEntry    int
	Rejected   int                      // refused by the risk breaker
	Results    []*domain.PositionResult // input order; nil where a position errored
	Aggregates []*domain.StrategyAggregate
	Errors     []string
}

// Run simulates every position under a fresh run ID.
// Per-position failures are collected in RunResult.Errors; only context
// cancellation aborts the run.
func (o *Orchestrator) Run(ctx context.Context, specs []domain.PositionSpec) (*RunResult, error) {
	started := time.Now()
	result := &RunResult{
		RunID:     o.newRunID(),
		Positions: len(specs),
		Results:   make([]*domain.PositionResult, len(specs)),
	}
	log := o.logger.With(zap.String("run_id", result.RunID))

	mode := "parallel"
	if o.ledger != nil {
		mode = "shared_risk"
	}
	log.Info("run started", zap.Int("positions", len(specs)), zap.String("mode", mode))

	var err error
	if o.ledger != nil {
		err = o.runSharedRisk(ctx, specs, result)
	} else {
		err = o.runParallel(ctx, specs, result)
	}
	if err != nil {
		o.metrics.RecordRun("failed", time.Since(started).Seconds())
		return nil, err
	}

	for _, r := range result.Results {
		if r == nil {
			continue
		}
		switch r.ExitReason {
		case domain.ExitReasonNoEntry:
			result.NoEntry++
		case domain.ExitReasonRiskRejected:
			result.Rejected++
			// Simulated positions are recorded by the executor.
			o.metrics.RecordPosition(r.StrategyID, r.ExitReason, false, 0)
		default:
			result.Simulated++
		}
	}

	if o.aggregator != nil {
		aggs, err := o.aggregator.ComputeRun(ctx, result.RunID)
		switch {
		case errors.Is(err, metrics.ErrNoResults):
		case err != nil:
			result.Errors = append(result.Errors, fmt.Sprintf("aggregate: %v", err))
		default:
			result.Aggregates = aggs
		}
	}

	o.metrics.RecordRun("completed", time.Since(started).Seconds())
	log.Info("run completed",
		zap.Int("simulated", result.Simulated),
		zap.Int("no_entry", result.NoEntry),
		zap.Int("rejected", result.Rejected),
		zap.Int("aggregates", len(result.Aggregates)),
		zap.Int("errors", len(result.Errors)),
		zap.Duration("elapsed", time.Since(started)))

	return result, nil
}

// runParallel simulates independent positions with a bounded worker count.
func (o *Orchestrator) runParallel(ctx context.Context, specs []domain.PositionSpec, result *RunResult) error {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)

	for i, spec := range specs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := o.runner.Run(gctx, result.RunID, spec)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				result.Errors = append(result.Errors, positionError(spec, err))
				return nil
			}
			result.Results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("parallel run: %w", err)
	}
	sort.Strings(result.Errors)
	return nil
}

// pendingClose is an entered position whose outcome the ledger has not seen yet.
type pendingClose struct {
	at     time.Time
	amount float64
	pnl    float64
}

// runSharedRisk processes positions in entry order. Before each entry the
// ledger receives every close that happened at or before it, so the
// breaker sees the state a live account would have had.
func (o *Orchestrator) runSharedRisk(ctx context.Context, specs []domain.PositionSpec, result *RunResult) error {
	order := make([]int, len(specs))
	ids := make([]string, len(specs))
	for i := range specs {
		order[i] = i
		ids[i] = simulation.PositionID(specs[i])
	}
	sort.SliceStable(order, func(a, b int) bool {
		sa, sb := specs[order[a]], specs[order[b]]
		if sa.EntryTimestamp != sb.EntryTimestamp {
			return sa.EntryTimestamp < sb.EntryTimestamp
		}
		return ids[order[a]] < ids[order[b]]
	})

	var pending []pendingClose
	for _, i := range order {
		if err := ctx.Err(); err != nil {
			return err
		}
		spec := specs[i]
		entry := time.Unix(spec.EntryTimestamp, 0).UTC()
		pending = o.applyCloses(pending, entry)

		d := o.ledger.Reserve(spec.StrategyID, spec.Notional, entry)
		o.metrics.RecordRiskDecision(d.HitLimit)
		if !d.Allowed {
			r := simulation.Rejected(result.RunID, spec)
			if err := o.runner.Persist(ctx, r); err != nil {
				result.Errors = append(result.Errors, positionError(spec, err))
				continue
			}
			o.logger.Debug("position rejected",
				zap.String("position_id", r.PositionID),
				zap.String("limit", d.HitLimit),
				zap.String("reason", d.Reason))
			result.Results[i] = r
			continue
		}

		r, err := o.runner.Run(ctx, result.RunID, spec)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			o.ledger.Release(spec.Notional, entry)
			result.Errors = append(result.Errors, positionError(spec, err))
			continue
		}
		result.Results[i] = r

		if !r.Entered() {
			o.ledger.Release(spec.Notional, entry)
			continue
		}
		// A partial entry fill holds less than was reserved; realized bps
		// are relative to the filled notional.
		filled := math.Min(r.EntryNotional, spec.Notional)
		if unfilled := spec.Notional - filled; unfilled > 0 {
			o.ledger.Release(unfilled, entry)
		}
		pending = append(pending, pendingClose{
			at:     time.UnixMilli(r.ExitTsMs).UTC(),
			amount: filled,
			pnl:    filled * r.RealizedReturnBps / 10000,
		})
	}

	// Settle what is still open so the ledger reflects the whole run.
	o.applyCloses(pending, time.Time{})
	return nil
}

// applyCloses feeds the ledger every pending close at or before now, in exit
// order, and returns the rest. A zero now settles everything.
func (o *Orchestrator) applyCloses(pending []pendingClose, now time.Time) []pendingClose {
	sort.SliceStable(pending, func(a, b int) bool {
		return pending[a].at.Before(pending[b].at)
	})
	n := 0
	for n < len(pending) && (now.IsZero() || !pending[n].at.After(now)) {
		o.ledger.Close(pending[n].amount, pending[n].pnl, pending[n].at)
		n++
	}
	return pending[n:]
}

func positionError(spec domain.PositionSpec, err error) string {
	if errors.Is(err, storage.ErrDuplicateKey) {
		return fmt.Sprintf("position %s: already simulated in this run", simulation.PositionID(spec))
	}
	return fmt.Sprintf("simulate %s/%s/%s@%d: %v", spec.Mint, spec.StrategyID, spec.VenueID, spec.EntryTimestamp, err)
}
