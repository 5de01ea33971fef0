// Package risk gates new trades against portfolio loss and exposure limits.
package risk

import (
	"fmt"
	"time"

	"token-backtest-lab/internal/domain"
)

// CheckRiskConstraints decides whether a trade of tradeAmount for strategyID
// may open at now. Limits are checked in fixed priority order and the first
// breach wins: drawdown, daily loss, consecutive losses, exposure, throttle.
//
// Zero-valued limits are disabled. The state is never modified.
func CheckRiskConstraints(state domain.RiskState, limits domain.RiskLimits, strategyID string, tradeAmount float64, now time.Time) domain.RiskDecision {
	if limits.MaxDrawdown > 0 && state.CurrentDrawdown >= limits.MaxDrawdown {
		return reject(domain.LimitMaxDrawdown,
			fmt.Sprintf("drawdown %.4f reached max %.4f", state.CurrentDrawdown, limits.MaxDrawdown))
	}

	if limits.MaxLossPerDay > 0 && state.DailyLoss >= limits.MaxLossPerDay {
		return reject(domain.LimitMaxLossPerDay,
			fmt.Sprintf("daily loss %.4f reached max %.4f", state.DailyLoss, limits.MaxLossPerDay))
	}

	if limits.MaxConsecutiveLosses > 0 && state.ConsecutiveLosses >= limits.MaxConsecutiveLosses {
		return reject(domain.LimitMaxConsecutiveLosses,
			fmt.Sprintf("%d consecutive losses reached max %d", state.ConsecutiveLosses, limits.MaxConsecutiveLosses))
	}

	if limits.MaxPositionSize > 0 && tradeAmount > limits.MaxPositionSize {
		return reject(domain.LimitMaxExposure,
			fmt.Sprintf("trade amount %.4f exceeds max position size %.4f", tradeAmount, limits.MaxPositionSize))
	}
	if limits.MaxTotalExposure != nil && state.CurrentExposure+tradeAmount > *limits.MaxTotalExposure {
		return reject(domain.LimitMaxExposure,
			fmt.Sprintf("exposure %.4f + %.4f exceeds max %.4f", state.CurrentExposure, tradeAmount, *limits.MaxTotalExposure))
	}

	if th := limits.TradeThrottle; th != nil && th.MaxTrades > 0 {
		n := TradesInWindow(state.RecentTrades[strategyID], now, throttleWindow(th))
		if n >= th.MaxTrades {
			return reject(domain.LimitTradeThrottle,
				fmt.Sprintf("%d trades for %s in last %d min, max %d", n, strategyID, th.WindowMinutes, th.MaxTrades))
		}
	}

	return domain.RiskDecision{Allowed: true}
}

// TradesInWindow counts trade times in (now-window, now].
func TradesInWindow(times []time.Time, now time.Time, window time.Duration) int {
	cutoff := now.Add(-window)
	n := 0
	for _, t := range times {
		if t.After(cutoff) && !t.After(now) {
			n++
		}
	}
	return n
}

func throttleWindow(th *domain.TradeThrottle) time.Duration {
	return time.Duration(th.WindowMinutes) * time.Minute
}

func reject(limit, reason string) domain.RiskDecision {
	return domain.RiskDecision{Allowed: false, Reason: reason, HitLimit: limit}
}
