package execution

import (
	"math"
	"testing"

	"token-backtest-lab/internal/domain"
)

func TestApplyCostModel(t *testing.T) {
	model := domain.CostModel{
		BaseFee:     0.001,
		PriorityFee: &domain.PriorityFeeModel{Base: 0.002, Max: 0.01},
		TradingFee:  0.0025,
	}

	tests := []struct {
		name     string
		priority domain.Priority
		want     float64
	}{
		{"low pays base", domain.PriorityLow, 0.001 + 0.002 + 0.25},
		{"medium pays base", domain.PriorityMedium, 0.001 + 0.002 + 0.25},
		{"empty pays base", "", 0.001 + 0.002 + 0.25},
		{"high pays max", domain.PriorityHigh, 0.001 + 0.01 + 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ApplyCostModel(CostTrade{Value: 100, Priority: tt.priority}, model)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestApplyCostModel_NoPriorityFee(t *testing.T) {
	model := domain.CostModel{BaseFee: 0.5, TradingFee: 0.01}
	got := ApplyCostModel(CostTrade{Value: 10, Priority: domain.PriorityHigh}, model)
	if math.Abs(got-0.6) > 1e-12 {
		t.Errorf("expected 0.6, got %v", got)
	}
}
