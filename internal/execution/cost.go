package execution

import (
	"math"

	"github.com/shopspring/decimal"

	"token-backtest-lab/internal/domain"
)

// CostTrade is the input to ApplyCostModel.
type CostTrade struct {
	Value           float64         // trade value in quote units
	Priority        domain.Priority // empty is treated as medium
	CongestionLevel float64         // not priced by the flat fee model
}

// ApplyCostModel returns baseFee + priority fee + value*tradingFee.
// High priority pays PriorityFee.Max; every other level pays PriorityFee.Base.
func ApplyCostModel(trade CostTrade, model domain.CostModel) float64 {
	total := decFromFloat(model.BaseFee)

	if model.PriorityFee != nil {
		if trade.Priority == domain.PriorityHigh {
			total = total.Add(decFromFloat(model.PriorityFee.Max))
		} else {
			total = total.Add(decFromFloat(model.PriorityFee.Base))
		}
	}

	total = total.Add(decFromFloat(trade.Value).Mul(decFromFloat(model.TradingFee)))

	f, _ := total.Float64()
	return f
}

func decFromFloat(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}
