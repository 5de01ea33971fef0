package exit

import "token-backtest-lab/internal/domain"

// StopLossState is the break-even stop model state.
// Values are replaced, never mutated, by UpdateStopLossState.
type StopLossState struct {
	StopLossPrice  float64
	TrailingActive bool
	PeakPrice      float64
}

// InitStopLossState places the initial stop at entry*(1+initial).
func InitStopLossState(entryPrice float64, cfg domain.StopLossConfig) StopLossState {
	return StopLossState{
		StopLossPrice: entryPrice * (1 + cfg.Initial),
		PeakPrice:     entryPrice,
	}
}

// UpdateStopLossState tracks the peak and, once the activation threshold is
// reached, moves the stop to entry. Activation is one-shot.
func UpdateStopLossState(s StopLossState, c domain.Candle, entryPrice float64, cfg domain.StopLossConfig) StopLossState {
	next := s
	if c.High > next.PeakPrice {
		next.PeakPrice = c.High
	}
	if !next.TrailingActive && CheckTrailingStopActivation(c, entryPrice, cfg.Trailing) {
		next.TrailingActive = true
		if entryPrice > next.StopLossPrice {
			next.StopLossPrice = entryPrice
		}
	}
	return next
}
