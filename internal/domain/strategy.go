package domain

// StrategyConfig represents the exit policy applied to each position.
type StrategyConfig struct {
	StrategyID     string         // strategy identifier
	Targets        []ProfitTarget // profit targets, percentages sum to <= 1
	StopLoss       StopLossConfig // stop-loss settings
	ExitSignal     *SignalGroup   // optional indicator exit
	MaxHoldCandles *int           // optional forced timeout in candles
}

// ProfitTarget closes a fraction of the original position at entry*Multiplier.
type ProfitTarget struct {
	Multiplier        float64 // e.g. 2.0 = 2x entry
	PercentOfPosition float64 // fraction of original size (0..1]
}

// StopLossConfig describes the stop models of a strategy.
type StopLossConfig struct {
	Initial float64 // negative fraction, e.g. -0.3 = 30% below entry

	// Trailing is the break-even activation threshold as a fraction above entry.
	// Nil means 'none': the break-even ratchet never activates.
	Trailing *float64

	// TrailingPercent enables the rolling window tracker: stop = windowLow*(1-TrailingPercent).
	TrailingPercent *float64

	// WindowSize is the rolling window capacity in candles (default 20).
	WindowSize int

	// Ratchet forbids the rolling stop from moving down.
	Ratchet bool
}

// RollingEnabled reports whether the rolling window tracker is configured.
func (c StopLossConfig) RollingEnabled() bool {
	return c.TrailingPercent != nil
}

// DefaultTrailingWindowSize is used when StopLossConfig.WindowSize is unset.
const DefaultTrailingWindowSize = 20

// EffectiveWindowSize returns WindowSize or the default.
func (c StopLossConfig) EffectiveWindowSize() int {
	if c.WindowSize <= 0 {
		return DefaultTrailingWindowSize
	}
	return c.WindowSize
}

// SignalGroup is a set of indicator conditions evaluated against a snapshot.
type SignalGroup struct {
	Name       string            // label used in exit descriptions
	Mode       string            // "all" | "any"
	Conditions []SignalCondition // compared against the current snapshot
}

// SignalCondition compares one indicator against a value.
type SignalCondition struct {
	Indicator string  // snapshot key
	Operator  string  // ">", ">=", "<", "<=", "crosses_above", "crosses_below"
	Value     float64 // threshold
}

// Signal group modes
const (
	SignalModeAll = "all"
	SignalModeAny = "any"
)

// IndicatorSnapshot holds indicator values for one candle.
type IndicatorSnapshot map[string]float64

// StrategyAggregate represents per-strategy aggregate metrics.
// Corresponds to strategy_aggregates table.
type StrategyAggregate struct {
	RunID      string // backtest run
	StrategyID string // strategy identifier
	VenueID    string // execution venue / scenario

	// Counts
	TotalPositions int
	Skipped        int // no_entry results
	TotalTokens    int // unique mint count
	Wins           int
	Losses         int
	WinRate        float64 // wins / entered positions
	StopOutRate    float64 // stop-outs / entered positions

	// Realized return distribution (bps)
	ReturnMeanBps   float64
	ReturnMedianBps float64
	ReturnP10Bps    float64
	ReturnP25Bps    float64
	ReturnP75Bps    float64
	ReturnP90Bps    float64
	ReturnMinBps    float64
	ReturnMaxBps    float64
	ReturnStddevBps float64

	// Drawdown
	MaxDrawdownBps       float64 // worst peak-to-trough of cumulative return
	MaxConsecutiveLosses int

	// Excursion
	MeanAdverseExcursionBps float64
	MeanTailCapture         *float64 // nil when no position had a favourable peak
}
