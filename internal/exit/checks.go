package exit

import (
	"fmt"

	"token-backtest-lab/internal/domain"
)

// CheckStopLoss exits the full position at stopPrice iff the candle low reaches it.
func CheckStopLoss(c domain.Candle, entryPrice, stopPrice float64) *StopLossExit {
	if c.Low > stopPrice {
		return nil
	}
	return &StopLossExit{
		Fill: Fill{
			Price:       stopPrice,
			Size:        1.0,
			Description: fmt.Sprintf("stop loss %.10g hit (%s from entry)", stopPrice, pctFrom(entryPrice, stopPrice)),
		},
		StopPrice: stopPrice,
	}
}

// CheckProfitTarget exits target.PercentOfPosition at entry*multiplier
// iff the candle high reaches it.
func CheckProfitTarget(c domain.Candle, entryPrice float64, target domain.ProfitTarget, index int) *TargetExit {
	price := entryPrice * target.Multiplier
	if c.High < price {
		return nil
	}
	return &TargetExit{
		Fill: Fill{
			Price:       price,
			Size:        target.PercentOfPosition,
			Description: fmt.Sprintf("target %d hit at %.4gx", index+1, target.Multiplier),
		},
		TargetIndex: index,
		Multiplier:  target.Multiplier,
	}
}

// CheckTrailingStopActivation reports whether the candle high reached
// entry*(1+threshold). A nil threshold means trailing is disabled.
func CheckTrailingStopActivation(c domain.Candle, entryPrice float64, threshold *float64) bool {
	if threshold == nil {
		return false
	}
	return c.High >= entryPrice*(1+*threshold)
}

// CreateFinalExit closes whatever remains at the candle close (series end).
func CreateFinalExit(c domain.Candle, remainingSize float64) *FinalExit {
	return &FinalExit{
		Fill: Fill{
			Price:       c.Close,
			Size:        remainingSize,
			Description: "end of candle series",
		},
	}
}

// CreateTimeoutExit closes whatever remains at the candle close (max hold reached).
func CreateTimeoutExit(c domain.Candle, remainingSize float64, candlesHeld int) *TimeoutExit {
	return &TimeoutExit{
		Fill: Fill{
			Price:       c.Close,
			Size:        remainingSize,
			Description: fmt.Sprintf("max hold of %d candles reached", candlesHeld),
		},
		CandlesHeld: candlesHeld,
	}
}

func pctFrom(entry, price float64) string {
	if entry == 0 {
		return "n/a"
	}
	return fmt.Sprintf("%+.2f%%", (price/entry-1)*100)
}
