// Package exit decides when, at what price and why an open position closes.
//
// Detection functions are pure: given the same candle and parameters they
// return the same Exit. Each Exit variant carries only the fields meaningful
// for its kind; a nil variant means "no exit on this candle".
package exit

import "token-backtest-lab/internal/domain"

// Kind tags an Exit variant.
type Kind string

// Exit kinds. Values double as domain exit reasons.
const (
	KindTarget       Kind = domain.ExitReasonTarget
	KindStopLoss     Kind = domain.ExitReasonStopLoss
	KindTrailingStop Kind = domain.ExitReasonTrailingStop
	KindSignal       Kind = domain.ExitReasonSignal
	KindTimeout      Kind = domain.ExitReasonTimeout
	KindFinal        Kind = domain.ExitReasonFinal
)

// Fill is the idealized order an exit requests.
type Fill struct {
	Price       float64 // idealized exit price
	Size        float64 // fraction of original position
	Description string  // human-readable trigger
}

// Exit is a decided exit of one kind.
type Exit interface {
	Kind() Kind
	Requested() Fill
}

// TargetExit closes PercentOfPosition at a profit target.
type TargetExit struct {
	Fill
	TargetIndex int
	Multiplier  float64
}

// StopLossExit closes the full position at the stop price.
type StopLossExit struct {
	Fill
	StopPrice  float64
	Resolution *Resolution // set when decided by conflict resolution
}

// TrailingStopExit closes the position at a trailing stop.
type TrailingStopExit struct {
	Fill
	StopPrice float64
	PeakPrice float64
	Model     string // "break_even" | "rolling"
}

// SignalExit closes the position on an indicator signal.
type SignalExit struct {
	Fill
	Signal string
}

// TimeoutExit force-closes after the max hold.
type TimeoutExit struct {
	Fill
	CandlesHeld int
}

// FinalExit force-closes at the end of the series.
type FinalExit struct {
	Fill
}

// Trailing stop models
const (
	TrailingModelBreakEven = "break_even"
	TrailingModelRolling   = "rolling"
)

func (e *TargetExit) Kind() Kind       { return KindTarget }
func (e *StopLossExit) Kind() Kind     { return KindStopLoss }
func (e *TrailingStopExit) Kind() Kind { return KindTrailingStop }
func (e *SignalExit) Kind() Kind       { return KindSignal }
func (e *TimeoutExit) Kind() Kind      { return KindTimeout }
func (e *FinalExit) Kind() Kind        { return KindFinal }

func (e *TargetExit) Requested() Fill       { return e.Fill }
func (e *StopLossExit) Requested() Fill     { return e.Fill }
func (e *TrailingStopExit) Requested() Fill { return e.Fill }
func (e *SignalExit) Requested() Fill       { return e.Fill }
func (e *TimeoutExit) Requested() Fill      { return e.Fill }
func (e *FinalExit) Requested() Fill        { return e.Fill }

// Ensure variants implement Exit
var (
	_ Exit = (*TargetExit)(nil)
	_ Exit = (*StopLossExit)(nil)
	_ Exit = (*TrailingStopExit)(nil)
	_ Exit = (*SignalExit)(nil)
	_ Exit = (*TimeoutExit)(nil)
	_ Exit = (*FinalExit)(nil)
)
