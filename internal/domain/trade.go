package domain

// PositionResult is the consolidated outcome of one simulated position.
// Corresponds to position_results table in PostgreSQL.
type PositionResult struct {
	RunID      string // backtest run that produced the result
	PositionID string // deterministic hash
	Mint       Mint   // token mint
	StrategyID string // strategy identifier
	VenueID    string // execution venue / scenario

	// Entry
	EntryTsMs int64   // realized entry time (ms), after latency
	EntryPx   float64 // realized entry price, after slippage
	// EntryNotional is the quote value actually filled at entry. It is below
	// the requested notional after a partial entry fill.
	EntryNotional float64

	// Exit
	ExitTsMs   int64   // time of the fill that closed the position (ms)
	ExitPx     float64 // size-weighted realized exit price
	ExitReason string  // reason of the closing fill

	// Outcome
	RealizedReturnBps      float64  // net of costs
	GrossReturnBps         float64  // before costs
	TotalCost              float64  // fees in quote units
	StopOut                bool     // closed by a stop
	MaxAdverseExcursionBps float64  // worst low vs entry, <= 0
	TimeExposedMs          int64    // ExitTsMs - EntryTsMs
	TailCapture            *float64 // share of the peak move captured, nil without a peak

	// Execution metadata
	PeakPrice       float64 // highest high while open
	FillCount       int     // exit fills, partials included
	FailedFills     int     // exit attempts that did not fill
	PartialFills    int     // exit fills below requested size
	ResolutionCount int     // same-candle stop/target conflicts resolved
}

// Entered reports whether the position was opened.
func (r *PositionResult) Entered() bool {
	return r.ExitReason != ExitReasonNoEntry && r.ExitReason != ExitReasonRiskRejected
}

// Exit reason codes
const (
	ExitReasonTarget       = "target"
	ExitReasonStopLoss     = "stop_loss"
	ExitReasonTrailingStop = "trailing_stop"
	ExitReasonSignal       = "signal"
	ExitReasonTimeout      = "timeout"
	ExitReasonFinal        = "final"
	ExitReasonNoEntry      = "no_entry"
	ExitReasonRiskRejected = "risk_rejected"
)

// Trade sides
const (
	SideEntry = "entry"
	SideExit  = "exit"
)

// ExecutionRecord is one historical live fill used for calibration.
// Corresponds to execution_records table in PostgreSQL.
type ExecutionRecord struct {
	RecordID        string   // unique id
	VenueID         string   // venue the fill happened on
	Side            string   // "entry" | "exit"
	Quantity        float64  // requested size
	ExpectedPrice   float64  // quote at decision time
	ExecutedPrice   float64  // realized price, 0 if failed
	LatencyMs       float64  // submit to confirm
	Failed          bool     // no fill
	FillPercentage  *float64 // realized/requested, nil = full
	CongestionLevel float64  // 0..1 at submit time
	Timestamp       int64    // Unix ms
}
