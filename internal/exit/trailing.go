package exit

import (
	"fmt"

	"token-backtest-lab/internal/domain"
)

// TrailingStopState is the rolling-window stop model state.
// Values are replaced, never mutated, by UpdateTrailingStopState.
type TrailingStopState struct {
	WindowLows       []float64 // oldest first, at most WindowSize entries
	WindowSize       int
	CurrentStop      float64
	PeakPrice        float64
	WindowStartIndex int // candle index of WindowLows[0]
}

// InitTrailingStopState seeds an empty window with the stop at entry*(1+initial).
func InitTrailingStopState(entryPrice float64, cfg domain.StopLossConfig) TrailingStopState {
	size := cfg.EffectiveWindowSize()
	return TrailingStopState{
		WindowLows:  make([]float64, 0, size),
		WindowSize:  size,
		CurrentStop: entryPrice * (1 + cfg.Initial),
		PeakPrice:   entryPrice,
	}
}

// UpdateTrailingStopState appends the candle low, evicts beyond capacity and
// recomputes stop = min(window)*(1-trailingPercent).
//
// Without cfg.Ratchet the stop follows the window minimum and can move down
// when a higher low ages out of the window.
func UpdateTrailingStopState(s TrailingStopState, c domain.Candle, cfg domain.StopLossConfig) TrailingStopState {
	if cfg.TrailingPercent == nil {
		return s
	}

	lows := make([]float64, 0, s.WindowSize)
	lows = append(lows, s.WindowLows...)
	lows = append(lows, c.Low)
	start := s.WindowStartIndex
	if over := len(lows) - s.WindowSize; over > 0 {
		lows = lows[over:]
		start += over
	}

	stop := minLow(lows) * (1 - *cfg.TrailingPercent)
	if cfg.Ratchet && stop < s.CurrentStop {
		stop = s.CurrentStop
	}

	peak := s.PeakPrice
	if c.High > peak {
		peak = c.High
	}

	return TrailingStopState{
		WindowLows:       lows,
		WindowSize:       s.WindowSize,
		CurrentStop:      stop,
		PeakPrice:        peak,
		WindowStartIndex: start,
	}
}

// WindowLow returns the minimum low in the window, or 0 if empty.
func (s TrailingStopState) WindowLow() float64 {
	if len(s.WindowLows) == 0 {
		return 0
	}
	return minLow(s.WindowLows)
}

func minLow(lows []float64) float64 {
	low := lows[0]
	for _, l := range lows[1:] {
		if l < low {
			low = l
		}
	}
	return low
}

// CheckRollingStop exits the full remaining position at the state's stop iff
// the candle low reaches it.
func CheckRollingStop(c domain.Candle, s TrailingStopState, remainingSize float64) *TrailingStopExit {
	if c.Low > s.CurrentStop {
		return nil
	}
	return &TrailingStopExit{
		Fill: Fill{
			Price:       s.CurrentStop,
			Size:        remainingSize,
			Description: fmt.Sprintf("rolling trailing stop %.10g hit", s.CurrentStop),
		},
		StopPrice: s.CurrentStop,
		PeakPrice: s.PeakPrice,
		Model:     TrailingModelRolling,
	}
}
