package exit

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"token-backtest-lab/internal/domain"
)

// Outcome is which side of a stop/target pair won a candle.
type Outcome string

// Resolution outcomes
const (
	OutcomeStopLoss Outcome = "stop_loss"
	OutcomeTarget   Outcome = "target"
	OutcomeNeither  Outcome = "neither"
)

// Method tags how an Outcome was decided.
type Method string

// Resolution methods
const (
	MethodNone        Method = "none"
	MethodCrossCandle Method = "cross_candle"
	MethodSubCandle   Method = "sub_candle"
	MethodFallback    Method = "fallback"
)

// Fallback causes, reported in Resolution.FallbackCause.
const (
	FallbackNoProvider    = "no_provider"
	FallbackBeyondHorizon = "beyond_horizon"
	FallbackProviderError = "provider_error"
	FallbackEmpty         = "empty"
	FallbackNoBreach      = "no_breach"
)

// Resolution is the outcome of a stop/target conflict check.
type Resolution struct {
	Outcome        Outcome
	Method         Method
	SubCandlesUsed int    // 1-based index of the deciding sub-candle, sub_candle only
	FallbackCause  string // fallback only
}

// Conflict is one candle checked against a stop price and a target price.
type Conflict struct {
	Mint            domain.Mint // series the candle belongs to, passed through to the provider
	Candle          domain.Candle
	IntervalSeconds int64 // candle duration; bounds the sub-candle window
	StopPrice       float64
	TargetPrice     float64
}

// FetchRequest asks a CandleProvider for candles in [StartTime, EndTime).
// Times are unix seconds.
type FetchRequest struct {
	Mint      domain.Mint
	StartTime int64
	EndTime   int64
	Interval  string
	Limit     int
}

// CandleProvider supplies finer-grained candles. Implementations may fail.
type CandleProvider interface {
	FetchCandles(ctx context.Context, req FetchRequest) ([]domain.Candle, error)
}

// ConflictResolver decides stop vs target for a candle.
type ConflictResolver interface {
	Resolve(ctx context.Context, c Conflict) Resolution
}

// Resolver defaults
const (
	DefaultRefinementHorizon = 90 * 24 * time.Hour
	DefaultSubCandleLimit    = 5000
	DefaultSubCandleInterval = domain.CandleInterval1Sec
	DefaultFetchTimeout      = 5 * time.Second
)

// ResolverOptions configures a SequentialResolver.
type ResolverOptions struct {
	Provider CandleProvider // nil disables refinement

	// SubCandleInterval is the refinement interval in seconds.
	SubCandleInterval int64
	// Horizon is how far back sub-candles are assumed available.
	Horizon time.Duration
	// Limit caps the number of sub-candles requested.
	Limit int
	// FetchTimeout bounds a single provider call.
	FetchTimeout time.Duration
	// Now is the clock the horizon is measured against.
	Now func() time.Time

	Logger *zap.Logger
}

// SequentialResolver resolves same-candle conflicts by scanning sub-candles
// in chronological order, falling back to an open/close heuristic.
type SequentialResolver struct {
	provider     CandleProvider
	subInterval  int64
	horizon      time.Duration
	limit        int
	fetchTimeout time.Duration
	now          func() time.Time
	logger       *zap.Logger
}

// NewSequentialResolver creates a resolver, applying defaults for unset options.
func NewSequentialResolver(opts ResolverOptions) *SequentialResolver {
	r := &SequentialResolver{
		provider:     opts.Provider,
		subInterval:  opts.SubCandleInterval,
		horizon:      opts.Horizon,
		limit:        opts.Limit,
		fetchTimeout: opts.FetchTimeout,
		now:          opts.Now,
		logger:       opts.Logger,
	}
	if r.subInterval <= 0 {
		r.subInterval = DefaultSubCandleInterval
	}
	if r.horizon <= 0 {
		r.horizon = DefaultRefinementHorizon
	}
	if r.limit <= 0 {
		r.limit = DefaultSubCandleLimit
	}
	if r.fetchTimeout <= 0 {
		r.fetchTimeout = DefaultFetchTimeout
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	return r
}

// Resolve decides which of stop and target the candle hit first.
func (r *SequentialResolver) Resolve(ctx context.Context, c Conflict) Resolution {
	stopHit := c.Candle.Low <= c.StopPrice
	targetHit := c.Candle.High >= c.TargetPrice

	switch {
	case stopHit && !targetHit:
		return Resolution{Outcome: OutcomeStopLoss, Method: MethodCrossCandle}
	case targetHit && !stopHit:
		return Resolution{Outcome: OutcomeTarget, Method: MethodCrossCandle}
	case !stopHit && !targetHit:
		return Resolution{Outcome: OutcomeNeither, Method: MethodNone}
	}

	if r.provider == nil {
		return r.fallback(c, FallbackNoProvider)
	}

	candleTime := time.Unix(c.Candle.Timestamp, 0)
	if candleTime.Before(r.now().Add(-r.horizon)) {
		return r.fallback(c, FallbackBeyondHorizon)
	}

	subs, err := r.fetch(ctx, c)
	if err != nil {
		r.logger.Warn("sub-candle fetch failed",
			zap.Int64("candle_ts", c.Candle.Timestamp),
			zap.Error(err))
		return r.fallback(c, FallbackProviderError)
	}
	if len(subs) == 0 {
		return r.fallback(c, FallbackEmpty)
	}

	if res, ok := FirstTouch(subs, c.StopPrice, c.TargetPrice); ok {
		return res
	}
	return r.fallback(c, FallbackNoBreach)
}

func (r *SequentialResolver) fetch(ctx context.Context, c Conflict) ([]domain.Candle, error) {
	interval := c.IntervalSeconds
	if interval <= 0 {
		interval = domain.CandleInterval1Min
	}
	start := c.Candle.Timestamp
	end := start + interval

	fetchCtx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()

	subs, err := r.provider.FetchCandles(fetchCtx, FetchRequest{
		Mint:      c.Mint,
		StartTime: start,
		EndTime:   end,
		Interval:  domain.IntervalName(r.subInterval),
		Limit:     r.limit,
	})
	if err != nil {
		return nil, err
	}

	// Keep only the candle's own window, in chronological order.
	window := make([]domain.Candle, 0, len(subs))
	for _, s := range subs {
		if s.Timestamp >= start && s.Timestamp < end {
			window = append(window, s)
		}
	}
	sort.SliceStable(window, func(i, j int) bool {
		return window[i].Timestamp < window[j].Timestamp
	})
	if len(window) > r.limit {
		window = window[:r.limit]
	}
	return window, nil
}

func (r *SequentialResolver) fallback(c Conflict, cause string) Resolution {
	r.logger.Debug("conflict resolved by fallback",
		zap.Int64("candle_ts", c.Candle.Timestamp),
		zap.String("cause", cause))
	return Resolution{
		Outcome:       FallbackOutcome(c.Candle.Open, c.Candle.Close, c.StopPrice, c.TargetPrice),
		Method:        MethodFallback,
		FallbackCause: cause,
	}
}

// FirstTouch scans chronologically ordered sub-candles and returns the first
// side breached, checking stop before target within each sub-candle.
// ok is false if no sub-candle breaches either side.
func FirstTouch(subs []domain.Candle, stopPrice, targetPrice float64) (Resolution, bool) {
	for i, s := range subs {
		if s.Low <= stopPrice {
			return Resolution{Outcome: OutcomeStopLoss, Method: MethodSubCandle, SubCandlesUsed: i + 1}, true
		}
		if s.High >= targetPrice {
			return Resolution{Outcome: OutcomeTarget, Method: MethodSubCandle, SubCandlesUsed: i + 1}, true
		}
	}
	return Resolution{}, false
}

// FallbackOutcome decides an ambiguous candle from its open and close alone.
// Ties and true ambiguity resolve to stop_loss.
func FallbackOutcome(open, close, stopPrice, targetPrice float64) Outcome {
	if open <= stopPrice || close <= stopPrice {
		return OutcomeStopLoss
	}
	if open >= targetPrice || close >= targetPrice {
		return OutcomeTarget
	}
	return OutcomeStopLoss
}

var _ ConflictResolver = (*SequentialResolver)(nil)
