package simulation

import (
	"context"
	"errors"
	"math"

	"go.uber.org/zap"

	"token-backtest-lab/internal/domain"
	"token-backtest-lab/internal/execution"
	"token-backtest-lab/internal/exit"
	"token-backtest-lab/internal/lookup"
	"token-backtest-lab/internal/observability"
	"token-backtest-lab/internal/strategy"
)

// Executor errors
var (
	ErrMissingRand     = errors.New("execution requires a seeded random source")
	ErrMissingStrategy = errors.New("execution requires a strategy")
	ErrInvalidEntry    = errors.New("entry price must be positive")
)

// ExecutorOptions contains configuration for creating an Executor.
type ExecutorOptions struct {
	Resolver exit.ConflictResolver // nil = SequentialResolver without a provider
	Signals  exit.SignalEvaluator  // nil = exit.ThresholdEvaluator
	Priority domain.Priority       // fee priority for every fill
	Metrics  *observability.Metrics
	Logger   *zap.Logger
}

// Executor walks a candle series for one position at a time and produces
// its realized result. It holds no per-position state and is safe for
// concurrent use.
type Executor struct {
	resolver exit.ConflictResolver
	signals  exit.SignalEvaluator
	priority domain.Priority
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewExecutor creates an executor.
func NewExecutor(opts ExecutorOptions) *Executor {
	e := &Executor{
		resolver: opts.Resolver,
		signals:  opts.Signals,
		priority: opts.Priority,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.resolver == nil {
		e.resolver = exit.NewSequentialResolver(exit.ResolverOptions{Logger: e.logger})
	}
	if e.signals == nil {
		e.signals = exit.ThresholdEvaluator{}
	}
	if e.priority == "" {
		e.priority = domain.PriorityMedium
	}
	return e
}

// Input is one position to simulate.
type Input struct {
	PositionID      string
	Mint            domain.Mint
	Strategy        *strategy.Strategy
	Venue           domain.Venue
	Candles         []domain.Candle // ascending; candles before EntryTimestamp are ignored
	IntervalSeconds int64
	EntryPrice      float64 // signal price
	EntryTimestamp  int64   // signal time, Unix seconds
	Notional        float64 // quote units; <= 0 means 1
	CongestionLevel float64 // 0..1 for failure sampling

	// Indicators holds optional snapshots keyed by candle timestamp.
	Indicators map[int64]domain.IndicatorSnapshot

	Rand execution.Rand
}

// Simulate runs one position to completion.
// Missing candles or a failed entry fill yield a no_entry result, not an error.
func (e *Executor) Simulate(ctx context.Context, in Input) (*domain.PositionResult, error) {
	if in.Rand == nil {
		return nil, ErrMissingRand
	}
	if in.Strategy == nil {
		return nil, ErrMissingStrategy
	}
	if in.EntryPrice <= 0 {
		return nil, ErrInvalidEntry
	}

	candles := lookup.From(in.Candles, in.EntryTimestamp)
	if len(candles) == 0 {
		e.logger.Debug("no candles after entry",
			zap.String("position_id", in.PositionID),
			zap.Int64("entry_ts", in.EntryTimestamp))
		return e.finish(noEntry(in)), nil
	}

	w := newWalk(e, in)
	if !w.enter() {
		return e.finish(noEntry(in)), nil
	}

	for i, c := range candles {
		w.step(ctx, i, c, i == len(candles)-1)
		if w.pos.Closed() {
			break
		}
	}

	return e.finish(w.result()), nil
}

func (e *Executor) finish(r *domain.PositionResult) *domain.PositionResult {
	e.metrics.RecordPosition(r.StrategyID, r.ExitReason, r.Entered(), r.RealizedReturnBps)
	return r
}

func noEntry(in Input) *domain.PositionResult {
	return &domain.PositionResult{
		PositionID: in.PositionID,
		Mint:       in.Mint,
		StrategyID: in.Strategy.ID(),
		VenueID:    in.Venue.VenueID,
		EntryTsMs:  in.EntryTimestamp * 1000,
		EntryPx:    in.EntryPrice,
		ExitTsMs:   in.EntryTimestamp * 1000,
		ExitPx:     in.EntryPrice,
		ExitReason: domain.ExitReasonNoEntry,
	}
}

// walk is the mutable state of one position's candle walk.
type walk struct {
	e   *Executor
	in  Input
	cfg domain.StrategyConfig

	notional float64
	pos      *domain.Position
	entryTs  int64 // ms, after latency

	stop    exit.StopLossState
	rolling *exit.TrailingStopState
	prevTs  *int64

	// accounting
	proceeds   float64 // sum of filled size * exit price
	filledSize float64
	gross      float64 // sum of filled size * (px/entry - 1)
	cost       float64
	minLow     float64
	peak       float64
	exitTs     int64
	reason     string
	fills      int
	failed     int
	partials   int
	conflicts  int
}

func newWalk(e *Executor, in Input) *walk {
	notional := in.Notional
	if notional <= 0 {
		notional = 1
	}
	return &walk{
		e:        e,
		in:       in,
		cfg:      in.Strategy.Config,
		notional: notional,
	}
}

// enter samples the entry fill. A failed entry leaves the position unopened.
func (w *walk) enter() bool {
	res := execution.Apply(execution.TradeIntent{
		Side:            domain.SideEntry,
		Quantity:        w.notional,
		ExpectedPrice:   w.in.EntryPrice,
		CongestionLevel: w.in.CongestionLevel,
	}, w.in.Venue.Execution, w.in.Rand)

	if res.Failed {
		w.e.metrics.RecordFill(domain.SideEntry, observability.FillStatusFailed)
		w.e.logger.Debug("entry fill failed", zap.String("position_id", w.in.PositionID))
		return false
	}
	if res.PartialFill {
		w.notional *= *res.FillPercentage
		w.e.metrics.RecordFill(domain.SideEntry, observability.FillStatusPartial)
	} else {
		w.e.metrics.RecordFill(domain.SideEntry, observability.FillStatusFilled)
	}

	w.entryTs = w.in.EntryTimestamp*1000 + int64(res.LatencyMs)
	w.pos = domain.NewPosition(res.ExecutedPrice, w.in.EntryTimestamp)
	w.cost = execution.ApplyCostModel(execution.CostTrade{
		Value:           w.notional,
		Priority:        w.e.priority,
		CongestionLevel: w.in.CongestionLevel,
	}, w.in.Venue.Cost)

	w.stop = exit.InitStopLossState(w.pos.EntryPrice, w.cfg.StopLoss)
	if w.cfg.StopLoss.RollingEnabled() {
		rs := exit.InitTrailingStopState(w.pos.EntryPrice, w.cfg.StopLoss)
		w.rolling = &rs
	}
	w.minLow = w.pos.EntryPrice
	w.peak = w.pos.EntryPrice
	return true
}

// step evaluates one candle in fixed priority order: signal, stop vs next
// target, remaining targets, trailing update, timeout/final.
func (w *walk) step(ctx context.Context, i int, c domain.Candle, last bool) {
	if c.Low < w.minLow {
		w.minLow = c.Low
	}
	if c.High > w.peak {
		w.peak = c.High
	}
	defer func() {
		ts := c.Timestamp
		w.prevTs = &ts
	}()

	// 1. exit signal
	if w.cfg.ExitSignal != nil {
		var prev domain.IndicatorSnapshot
		if w.prevTs != nil {
			prev = w.in.Indicators[*w.prevTs]
		}
		sig, err := exit.CheckExitSignal(c, w.in.Indicators[c.Timestamp], prev, w.cfg.ExitSignal, w.e.signals)
		if err != nil {
			w.e.logger.Warn("signal evaluation failed",
				zap.String("position_id", w.in.PositionID),
				zap.Int64("candle_ts", c.Timestamp),
				zap.Error(err))
		} else if sig != nil && w.fill(c, sig, -1, false) && w.pos.Closed() {
			return
		}
	}

	// 2. stop vs next unfired target
	stopPrice, trailingKind := w.effectiveStop()
	stopped := false
	tried := -1
	if next := w.in.Strategy.NextTarget(w.pos.TargetHit); next >= 0 {
		tried = next
		target := w.cfg.Targets[next]
		res := w.e.resolver.Resolve(ctx, exit.Conflict{
			Mint:            w.in.Mint,
			Candle:          c,
			IntervalSeconds: w.in.IntervalSeconds,
			StopPrice:       stopPrice,
			TargetPrice:     w.pos.EntryPrice * target.Multiplier,
		})
		if res.Outcome != exit.OutcomeNeither {
			w.e.metrics.RecordResolution(string(res.Method), string(res.Outcome), res.FallbackCause)
		}
		if res.Method == exit.MethodSubCandle || res.Method == exit.MethodFallback {
			w.conflicts++
		}

		switch res.Outcome {
		case exit.OutcomeStopLoss:
			stopped = true
			if w.fill(c, w.stopExit(c, stopPrice, trailingKind, &res), -1, false) && w.pos.Closed() {
				return
			}
		case exit.OutcomeTarget:
			if tx := exit.CheckProfitTarget(c, w.pos.EntryPrice, target, next); tx != nil {
				w.fill(c, tx, next, false)
				if w.pos.Closed() {
					return
				}
			}
		}
	} else if sl := exit.CheckStopLoss(c, w.pos.EntryPrice, stopPrice); sl != nil {
		stopped = true
		if w.fill(c, w.stopExit(c, stopPrice, trailingKind, nil), -1, false) && w.pos.Closed() {
			return
		}
	}

	// 3. remaining unfired targets, unless the stop came first
	for _, idx := range w.in.Strategy.TargetOrder() {
		if stopped || idx == tried || w.pos.TargetHit(idx) {
			continue
		}
		if tx := exit.CheckProfitTarget(c, w.pos.EntryPrice, w.cfg.Targets[idx], idx); tx != nil {
			w.fill(c, tx, idx, false)
			if w.pos.Closed() {
				return
			}
		}
	}

	// 4. trailing updates apply from the next candle
	w.stop = exit.UpdateStopLossState(w.stop, c, w.pos.EntryPrice, w.cfg.StopLoss)
	if w.rolling != nil {
		rs := exit.UpdateTrailingStopState(*w.rolling, c, w.cfg.StopLoss)
		w.rolling = &rs
	}

	// 5. forced exits
	held := i + 1
	if w.cfg.MaxHoldCandles != nil && held >= *w.cfg.MaxHoldCandles {
		w.fill(c, exit.CreateTimeoutExit(c, w.pos.RemainingSize, held), -1, true)
		return
	}
	if last {
		w.fill(c, exit.CreateFinalExit(c, w.pos.RemainingSize), -1, true)
	}
}

// effectiveStop returns the active stop price and, when it is a trailing
// stop, the model that set it.
func (w *walk) effectiveStop() (float64, string) {
	price := w.stop.StopLossPrice
	model := ""
	if w.stop.TrailingActive {
		model = exit.TrailingModelBreakEven
	}
	if w.rolling != nil {
		switch {
		case model == "":
			price = w.rolling.CurrentStop
			if len(w.rolling.WindowLows) > 0 {
				model = exit.TrailingModelRolling
			}
		case w.rolling.CurrentStop > price:
			price = w.rolling.CurrentStop
			model = exit.TrailingModelRolling
		}
	}
	return price, model
}

func (w *walk) stopExit(c domain.Candle, price float64, trailingModel string, res *exit.Resolution) exit.Exit {
	sl := exit.CheckStopLoss(c, w.pos.EntryPrice, price)
	if sl == nil {
		// resolver decided stop on a candle whose low is above it
		sl = &exit.StopLossExit{Fill: exit.Fill{Price: price, Size: 1.0}, StopPrice: price}
	}
	if trailingModel == "" {
		sl.Resolution = res
		return sl
	}
	return &exit.TrailingStopExit{
		Fill:      sl.Fill,
		StopPrice: price,
		PeakPrice: w.stop.PeakPrice,
		Model:     trailingModel,
	}
}

// fill samples execution for ex and applies it to the position.
// Forced fills never fail and always close the requested size.
// Returns false if nothing was filled.
func (w *walk) fill(c domain.Candle, ex exit.Exit, targetIdx int, forced bool) bool {
	req := ex.Requested()
	size := math.Min(req.Size, w.pos.RemainingSize)
	if size <= 0 {
		return false
	}

	res := execution.Apply(execution.TradeIntent{
		Side:            domain.SideExit,
		Quantity:        size * w.notional,
		ExpectedPrice:   req.Price,
		CongestionLevel: w.in.CongestionLevel,
	}, w.in.Venue.Execution, w.in.Rand)

	px := res.ExecutedPrice
	filled := size
	switch {
	case res.Failed && !forced:
		w.failed++
		w.e.metrics.RecordFill(domain.SideExit, observability.FillStatusFailed)
		w.e.logger.Debug("exit fill failed",
			zap.String("position_id", w.in.PositionID),
			zap.String("kind", string(ex.Kind())),
			zap.Int64("candle_ts", c.Timestamp))
		return false
	case res.Failed:
		px = req.Price * (1 - res.Slippage)
		w.e.metrics.RecordFill(domain.SideExit, observability.FillStatusFilled)
	case res.PartialFill && !forced:
		filled = size * *res.FillPercentage
		w.partials++
		w.e.metrics.RecordFill(domain.SideExit, observability.FillStatusPartial)
	default:
		w.e.metrics.RecordFill(domain.SideExit, observability.FillStatusFilled)
	}

	filled = w.pos.Drain(filled)
	if targetIdx >= 0 {
		w.pos.MarkTarget(targetIdx)
	}

	w.fills++
	w.filledSize += filled
	w.proceeds += filled * px
	w.gross += filled * (px/w.pos.EntryPrice - 1)
	w.cost += execution.ApplyCostModel(execution.CostTrade{
		Value:           filled * w.notional * px / w.pos.EntryPrice,
		Priority:        w.e.priority,
		CongestionLevel: w.in.CongestionLevel,
	}, w.in.Venue.Cost)
	w.exitTs = c.TimestampMs() + int64(res.LatencyMs)
	w.reason = string(ex.Kind())
	return true
}

func (w *walk) result() *domain.PositionResult {
	exitPx := w.pos.EntryPrice
	if w.filledSize > 0 {
		exitPx = w.proceeds / w.filledSize
	}

	exposed := w.exitTs - w.entryTs
	if exposed < 0 {
		exposed = 0
	}

	mae := (w.minLow/w.pos.EntryPrice - 1) * 10000
	if mae > 0 {
		mae = 0
	}

	var tail *float64
	if w.peak > w.pos.EntryPrice {
		tc := (exitPx - w.pos.EntryPrice) / (w.peak - w.pos.EntryPrice)
		tail = &tc
	}

	return &domain.PositionResult{
		PositionID: w.in.PositionID,
		Mint:       w.in.Mint,
		StrategyID: w.in.Strategy.ID(),
		VenueID:    w.in.Venue.VenueID,

		EntryTsMs:     w.entryTs,
		EntryPx:       w.pos.EntryPrice,
		EntryNotional: w.notional,

		ExitTsMs:   w.exitTs,
		ExitPx:     exitPx,
		ExitReason: w.reason,

		RealizedReturnBps:      (w.gross - w.cost/w.notional) * 10000,
		GrossReturnBps:         w.gross * 10000,
		TotalCost:              w.cost,
		StopOut:                w.reason == domain.ExitReasonStopLoss || w.reason == domain.ExitReasonTrailingStop,
		MaxAdverseExcursionBps: mae,
		TimeExposedMs:          exposed,
		TailCapture:            tail,

		PeakPrice:       w.peak,
		FillCount:       w.fills,
		FailedFills:     w.failed,
		PartialFills:    w.partials,
		ResolutionCount: w.conflicts,
	}
}
