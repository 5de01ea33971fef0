package strategy

import (
	"fmt"
	"sort"
	"strings"

	"token-backtest-lab/internal/domain"
)

// Strategy is a validated exit policy ready for simulation.
type Strategy struct {
	Config domain.StrategyConfig

	// targetOrder lists target indexes by ascending multiplier.
	targetOrder []int
}

// ID returns the strategy identifier.
func (s *Strategy) ID() string {
	return s.Config.StrategyID
}

// TargetOrder returns target indexes from lowest to highest multiplier.
// Ties keep configuration order.
func (s *Strategy) TargetOrder() []int {
	return s.targetOrder
}

// NextTarget returns the lowest unfired target index, or -1 when all fired.
func (s *Strategy) NextTarget(hit func(int) bool) int {
	for _, idx := range s.targetOrder {
		if !hit(idx) {
			return idx
		}
	}
	return -1
}

// Describe returns a compact parameter summary for logs.
func (s *Strategy) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s stop=%.0f%%", s.Config.StrategyID, s.Config.StopLoss.Initial*100)
	for _, idx := range s.targetOrder {
		t := s.Config.Targets[idx]
		fmt.Fprintf(&b, " tp%.2gx@%.0f%%", t.Multiplier, t.PercentOfPosition*100)
	}
	if s.Config.StopLoss.Trailing != nil {
		fmt.Fprintf(&b, " be@+%.0f%%", *s.Config.StopLoss.Trailing*100)
	}
	if s.Config.StopLoss.TrailingPercent != nil {
		fmt.Fprintf(&b, " roll%.0f%%/%d", *s.Config.StopLoss.TrailingPercent*100, s.Config.StopLoss.EffectiveWindowSize())
	}
	if s.Config.MaxHoldCandles != nil {
		fmt.Fprintf(&b, " hold<=%d", *s.Config.MaxHoldCandles)
	}
	return b.String()
}

func orderTargets(targets []domain.ProfitTarget) []int {
	order := make([]int, len(targets))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return targets[order[a]].Multiplier < targets[order[b]].Multiplier
	})
	return order
}
