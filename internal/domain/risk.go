package domain

import "time"

// RiskState is the rolling portfolio risk state.
// Mutated by the caller after each realized outcome; never by the breaker.
type RiskState struct {
	CurrentDrawdown   float64 // fraction below peak equity
	DailyLoss         float64 // realized loss today, positive magnitude
	ConsecutiveLosses int
	CurrentExposure   float64 // open notional
	TradesToday       int
	PeakPnl           float64
	CurrentPnl        float64

	// RecentTrades holds entry times per strategy for throttle windows.
	RecentTrades map[string][]time.Time

	// Day is the UTC day DailyLoss and TradesToday refer to.
	Day time.Time
}

// Clone returns a deep copy of the state.
func (s RiskState) Clone() RiskState {
	out := s
	if s.RecentTrades != nil {
		out.RecentTrades = make(map[string][]time.Time, len(s.RecentTrades))
		for k, v := range s.RecentTrades {
			out.RecentTrades[k] = append([]time.Time(nil), v...)
		}
	}
	return out
}

// RiskLimits are the circuit breaker thresholds, immutable per run.
type RiskLimits struct {
	MaxDrawdown          float64 // fraction, e.g. 0.2
	MaxLossPerDay        float64 // quote units
	MaxConsecutiveLosses int
	MaxPositionSize      float64        // quote units per trade
	MaxTotalExposure     *float64       // optional open notional cap
	TradeThrottle        *TradeThrottle // optional per-strategy rate limit
}

// TradeThrottle caps trades per strategy within a sliding window.
type TradeThrottle struct {
	MaxTrades     int
	WindowMinutes int
}

// Hit limit identifiers reported by the breaker.
const (
	LimitMaxDrawdown          = "maxDrawdown"
	LimitMaxLossPerDay        = "maxLossPerDay"
	LimitMaxConsecutiveLosses = "maxConsecutiveLosses"
	LimitMaxExposure          = "maxExposure"
	LimitTradeThrottle        = "tradeThrottle"
)

// RiskDecision is the breaker verdict for one attempted trade.
type RiskDecision struct {
	Allowed  bool
	Reason   string
	HitLimit string
}
