package risk

import (
	"sync"
	"time"

	"token-backtest-lab/internal/domain"
)

// Ledger owns a shared RiskState and serializes every check and update.
type Ledger struct {
	mu      sync.Mutex
	limits  domain.RiskLimits
	capital float64
	state   domain.RiskState
}

// NewLedger creates a ledger. capital is the starting equity drawdown is
// measured against; with capital <= 0 drawdown is in quote units.
func NewLedger(limits domain.RiskLimits, capital float64) *Ledger {
	return &Ledger{
		limits:  limits,
		capital: capital,
		state:   domain.RiskState{RecentTrades: make(map[string][]time.Time)},
	}
}

// Check runs the breaker against the current state without reserving.
func (l *Ledger) Check(strategyID string, amount float64, now time.Time) domain.RiskDecision {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rollDay(now)
	return CheckRiskConstraints(l.state, l.limits, strategyID, amount, now)
}

// Reserve checks the breaker and, if allowed, opens the trade in one step.
func (l *Ledger) Reserve(strategyID string, amount float64, now time.Time) domain.RiskDecision {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rollDay(now)
	d := CheckRiskConstraints(l.state, l.limits, strategyID, amount, now)
	if !d.Allowed {
		return d
	}
	l.open(strategyID, amount, now)
	return d
}

// Open records an entry of amount for strategyID at now.
func (l *Ledger) Open(strategyID string, amount float64, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rollDay(now)
	l.open(strategyID, amount, now)
}

// Close releases amount of exposure and applies a realized pnl at now.
// A negative pnl is a loss. A break-even close leaves the loss streak as is.
func (l *Ledger) Close(amount, pnl float64, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rollDay(now)

	l.release(amount)

	l.state.CurrentPnl += pnl
	if l.state.CurrentPnl > l.state.PeakPnl {
		l.state.PeakPnl = l.state.CurrentPnl
	}
	l.state.CurrentDrawdown = l.drawdown()

	switch {
	case pnl < 0:
		l.state.DailyLoss += -pnl
		l.state.ConsecutiveLosses++
	case pnl > 0:
		l.state.ConsecutiveLosses = 0
	}
}

// Release drops amount of exposure without a realized outcome, for reserved
// positions that never filled.
func (l *Ledger) Release(amount float64, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rollDay(now)
	l.release(amount)
}

// Snapshot returns a copy of the current state.
func (l *Ledger) Snapshot() domain.RiskState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Clone()
}

func (l *Ledger) open(strategyID string, amount float64, now time.Time) {
	l.state.CurrentExposure += amount
	l.state.TradesToday++
	l.state.RecentTrades[strategyID] = append(l.pruned(strategyID, now), now)
}

func (l *Ledger) release(amount float64) {
	l.state.CurrentExposure -= amount
	if l.state.CurrentExposure < 0 {
		l.state.CurrentExposure = 0
	}
}

// pruned drops trade times that can no longer count toward the throttle.
func (l *Ledger) pruned(strategyID string, now time.Time) []time.Time {
	times := l.state.RecentTrades[strategyID]
	if l.limits.TradeThrottle == nil {
		return times[:0]
	}
	cutoff := now.Add(-throttleWindow(l.limits.TradeThrottle))
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

func (l *Ledger) drawdown() float64 {
	dd := l.state.PeakPnl - l.state.CurrentPnl
	if l.capital <= 0 {
		return dd
	}
	return dd / (l.capital + l.state.PeakPnl)
}

// rollDay resets daily counters when now falls on a later UTC day.
func (l *Ledger) rollDay(now time.Time) {
	day := now.UTC().Truncate(24 * time.Hour)
	if l.state.Day.IsZero() {
		l.state.Day = day
		return
	}
	if day.After(l.state.Day) {
		l.state.Day = day
		l.state.DailyLoss = 0
		l.state.TradesToday = 0
	}
}
