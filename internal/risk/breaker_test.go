package risk

import (
	"testing"
	"time"

	"token-backtest-lab/internal/domain"
)

func floatPtr(v float64) *float64 { return &v }

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func testLimits() domain.RiskLimits {
	return domain.RiskLimits{
		MaxDrawdown:          0.2,
		MaxLossPerDay:        100,
		MaxConsecutiveLosses: 3,
		MaxPositionSize:      50,
		MaxTotalExposure:     floatPtr(200),
		TradeThrottle:        &domain.TradeThrottle{MaxTrades: 2, WindowMinutes: 60},
	}
}

func TestCheckRiskConstraints_Allowed(t *testing.T) {
	d := CheckRiskConstraints(domain.RiskState{}, testLimits(), "s1", 10, testNow)
	if !d.Allowed {
		t.Fatalf("expected allowed, got %+v", d)
	}
	if d.HitLimit != "" || d.Reason != "" {
		t.Errorf("allowed decision carries limit: %+v", d)
	}
}

func TestCheckRiskConstraints_EachLimit(t *testing.T) {
	tests := []struct {
		name   string
		state  domain.RiskState
		amount float64
		want   string
	}{
		{"drawdown", domain.RiskState{CurrentDrawdown: 0.2}, 10, domain.LimitMaxDrawdown},
		{"daily loss", domain.RiskState{DailyLoss: 100}, 10, domain.LimitMaxLossPerDay},
		{"consecutive losses", domain.RiskState{ConsecutiveLosses: 3}, 10, domain.LimitMaxConsecutiveLosses},
		{"position size", domain.RiskState{}, 51, domain.LimitMaxExposure},
		{"total exposure", domain.RiskState{CurrentExposure: 180}, 30, domain.LimitMaxExposure},
		{"throttle", domain.RiskState{RecentTrades: map[string][]time.Time{
			"s1": {testNow.Add(-10 * time.Minute), testNow.Add(-5 * time.Minute)},
		}}, 10, domain.LimitTradeThrottle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := CheckRiskConstraints(tt.state, testLimits(), "s1", tt.amount, testNow)
			if d.Allowed {
				t.Fatal("expected rejection")
			}
			if d.HitLimit != tt.want {
				t.Errorf("expected %s, got %s", tt.want, d.HitLimit)
			}
			if d.Reason == "" {
				t.Error("expected reason")
			}
		})
	}
}

func TestCheckRiskConstraints_PriorityOrder(t *testing.T) {
	all := domain.RiskState{
		CurrentDrawdown:   0.5,
		DailyLoss:         500,
		ConsecutiveLosses: 10,
		CurrentExposure:   500,
		RecentTrades:      map[string][]time.Time{"s1": {testNow, testNow}},
	}

	steps := []struct {
		clear func(*domain.RiskState)
		want  string
	}{
		{func(*domain.RiskState) {}, domain.LimitMaxDrawdown},
		{func(s *domain.RiskState) { s.CurrentDrawdown = 0 }, domain.LimitMaxLossPerDay},
		{func(s *domain.RiskState) { s.DailyLoss = 0 }, domain.LimitMaxConsecutiveLosses},
		{func(s *domain.RiskState) { s.ConsecutiveLosses = 0 }, domain.LimitMaxExposure},
		{func(s *domain.RiskState) { s.CurrentExposure = 0 }, domain.LimitTradeThrottle},
	}

	state := all.Clone()
	for _, step := range steps {
		step.clear(&state)
		d := CheckRiskConstraints(state, testLimits(), "s1", 10, testNow)
		if d.HitLimit != step.want {
			t.Fatalf("expected %s, got %s", step.want, d.HitLimit)
		}
	}
}

func TestCheckRiskConstraints_ThrottleIgnoresOldAndOtherStrategies(t *testing.T) {
	state := domain.RiskState{RecentTrades: map[string][]time.Time{
		"s1": {testNow.Add(-2 * time.Hour), testNow.Add(-90 * time.Minute)},
		"s2": {testNow, testNow, testNow},
	}}
	d := CheckRiskConstraints(state, testLimits(), "s1", 10, testNow)
	if !d.Allowed {
		t.Errorf("expected allowed, got %+v", d)
	}
}

func TestCheckRiskConstraints_DoesNotMutateState(t *testing.T) {
	state := domain.RiskState{
		CurrentExposure: 10,
		RecentTrades:    map[string][]time.Time{"s1": {testNow}},
	}
	before := state.Clone()

	_ = CheckRiskConstraints(state, testLimits(), "s1", 10, testNow)

	if state.CurrentExposure != before.CurrentExposure || len(state.RecentTrades["s1"]) != 1 {
		t.Errorf("state mutated: %+v", state)
	}
}

func TestCheckRiskConstraints_ZeroLimitsDisabled(t *testing.T) {
	state := domain.RiskState{CurrentDrawdown: 1, DailyLoss: 1e9, ConsecutiveLosses: 100}
	d := CheckRiskConstraints(state, domain.RiskLimits{}, "s1", 1e9, testNow)
	if !d.Allowed {
		t.Errorf("expected allowed with no limits, got %+v", d)
	}
}
