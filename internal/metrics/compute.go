package metrics

import (
	"math"
	"sort"

	"token-backtest-lab/internal/domain"
)

// computeFromResults calculates all metrics from a slice of position results.
// Results must be pre-filtered by (strategy_id, venue_id).
// Entered results are sorted by EntryTsMs ASC, PositionID ASC before computing
// order-dependent metrics (MaxDrawdown, MaxConsecutiveLosses).
func computeFromResults(results []*domain.PositionResult) *domain.StrategyAggregate {
	agg := &domain.StrategyAggregate{TotalPositions: len(results)}

	entered := make([]*domain.PositionResult, 0, len(results))
	for _, r := range results {
		if r.Entered() {
			entered = append(entered, r)
		} else {
			agg.Skipped++
		}
	}

	n := len(entered)
	if n == 0 {
		return agg
	}

	// Sort deterministically by EntryTsMs ASC, PositionID ASC
	sort.Slice(entered, func(i, j int) bool {
		if entered[i].EntryTsMs != entered[j].EntryTsMs {
			return entered[i].EntryTsMs < entered[j].EntryTsMs
		}
		return entered[i].PositionID < entered[j].PositionID
	})

	returns := make([]float64, n)
	stopOuts := 0
	maeSum := 0.0
	tailSum := 0.0
	tailCount := 0
	for i, r := range entered {
		returns[i] = r.RealizedReturnBps
		if r.RealizedReturnBps > 0 {
			agg.Wins++
		} else {
			agg.Losses++
		}
		if r.StopOut {
			stopOuts++
		}
		maeSum += r.MaxAdverseExcursionBps
		if r.TailCapture != nil {
			tailSum += *r.TailCapture
			tailCount++
		}
	}

	sorted := make([]float64, n)
	copy(sorted, returns)
	sort.Float64s(sorted)

	mean := Mean(returns)

	agg.TotalTokens = countTokens(entered)
	agg.WinRate = computeRate(agg.Wins, n)
	agg.StopOutRate = computeRate(stopOuts, n)

	agg.ReturnMeanBps = mean
	agg.ReturnMedianBps = Percentile(sorted, 0.50)
	agg.ReturnP10Bps = Percentile(sorted, 0.10)
	agg.ReturnP25Bps = Percentile(sorted, 0.25)
	agg.ReturnP75Bps = Percentile(sorted, 0.75)
	agg.ReturnP90Bps = Percentile(sorted, 0.90)
	agg.ReturnMinBps = sorted[0]
	agg.ReturnMaxBps = sorted[n-1]
	agg.ReturnStddevBps = Stddev(returns, mean)

	agg.MaxDrawdownBps = computeMaxDrawdown(returns)
	agg.MaxConsecutiveLosses = computeMaxConsecutiveLosses(returns)

	agg.MeanAdverseExcursionBps = maeSum / float64(n)
	if tailCount > 0 {
		mt := tailSum / float64(tailCount)
		agg.MeanTailCapture = &mt
	}

	return agg
}

// countTokens returns the number of distinct mints.
func countTokens(results []*domain.PositionResult) int {
	mints := make(map[domain.Mint]struct{}, len(results))
	for _, r := range results {
		mints[r.Mint] = struct{}{}
	}
	return len(mints)
}

// computeRate calculates count / total.
func computeRate(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(count) / float64(total)
}

// Mean calculates the arithmetic mean.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Stddev calculates sample standard deviation (n-1 denominator).
func Stddev(values []float64, mean float64) float64 {
	n := len(values)
	if n < 2 {
		return 0 // Need at least 2 samples for sample stddev
	}
	sumSq := 0.0
	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// Percentile uses linear interpolation.
// sorted must be pre-sorted ASC.
// p is percentile (0.10 = 10th percentile).
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	// Index for percentile (0-based, continuous)
	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// computeMaxDrawdown calculates worst peak-to-trough on cumulative returns.
// Returns must be in chronological order.
func computeMaxDrawdown(returns []float64) float64 {
	cumulative := 0.0
	peak := 0.0
	maxDrawdown := 0.0

	for _, r := range returns {
		cumulative += r
		if cumulative > peak {
			peak = cumulative
		}
		if dd := peak - cumulative; dd > maxDrawdown {
			maxDrawdown = dd
		}
	}
	return maxDrawdown
}

// computeMaxConsecutiveLosses finds longest streak of return <= 0.
// Returns must be in chronological order.
func computeMaxConsecutiveLosses(returns []float64) int {
	maxStreak := 0
	currentStreak := 0

	for _, r := range returns {
		if r <= 0 {
			currentStreak++
			if currentStreak > maxStreak {
				maxStreak = currentStreak
			}
		} else {
			currentStreak = 0
		}
	}
	return maxStreak
}
