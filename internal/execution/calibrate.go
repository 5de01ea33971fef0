package execution

import (
	"errors"
	"math"
	"sort"

	"token-backtest-lab/internal/domain"
	"token-backtest-lab/internal/metrics"
)

// ErrNoExecutionRecords is returned when no records match the venue.
var ErrNoExecutionRecords = errors.New("no execution records to calibrate from")

// congestedLevel splits records into congested and uncongested groups
// when fitting the failure congestion multiplier.
const congestedLevel = 0.5

// Calibrate fits an execution model for venueID from live execution records.
// An empty venueID uses every record. The fit is deterministic in the records.
//
//   - latency p50/p90/p99 are interpolated percentiles of filled records;
//     jitter is their sample stddev
//   - slippage base is the median |executed-expected|/expected, max its p99,
//     volume impact the least-squares slope against quantity (>= 0)
//   - failure rate is the uncongested failure share, scaled by the
//     congested/uncongested ratio; nil if nothing ever failed
//   - partial fills are fitted from records with FillPercentage < 1; nil if none
func Calibrate(records []domain.ExecutionRecord, venueID string) (domain.ExecutionModel, error) {
	var venueRecs []domain.ExecutionRecord
	for _, r := range records {
		if venueID == "" || r.VenueID == venueID {
			venueRecs = append(venueRecs, r)
		}
	}
	if len(venueRecs) == 0 {
		return domain.ExecutionModel{}, ErrNoExecutionRecords
	}

	// Stable input order regardless of how the records were loaded.
	sort.SliceStable(venueRecs, func(i, j int) bool {
		if venueRecs[i].Timestamp != venueRecs[j].Timestamp {
			return venueRecs[i].Timestamp < venueRecs[j].Timestamp
		}
		return venueRecs[i].RecordID < venueRecs[j].RecordID
	})

	var filled []domain.ExecutionRecord
	for _, r := range venueRecs {
		if !r.Failed {
			filled = append(filled, r)
		}
	}

	return domain.ExecutionModel{
		Latency:      fitLatency(filled),
		Slippage:     fitSlippage(filled),
		Failures:     fitFailures(venueRecs),
		PartialFills: fitPartialFills(filled),
	}, nil
}

func fitLatency(filled []domain.ExecutionRecord) domain.LatencyModel {
	if len(filled) == 0 {
		return domain.LatencyModel{}
	}
	lat := make([]float64, len(filled))
	for i, r := range filled {
		lat[i] = r.LatencyMs
	}
	mean := metrics.Mean(lat)
	sort.Float64s(lat)
	return domain.LatencyModel{
		P50:    metrics.Percentile(lat, 0.50),
		P90:    metrics.Percentile(lat, 0.90),
		P99:    metrics.Percentile(lat, 0.99),
		Jitter: metrics.Stddev(lat, mean),
	}
}

func fitSlippage(filled []domain.ExecutionRecord) domain.SlippageModel {
	var qty, slip []float64
	for _, r := range filled {
		if r.ExpectedPrice <= 0 {
			continue
		}
		qty = append(qty, r.Quantity)
		slip = append(slip, math.Abs(r.ExecutedPrice-r.ExpectedPrice)/r.ExpectedPrice)
	}
	if len(slip) == 0 {
		return domain.SlippageModel{}
	}

	impact := slope(qty, slip)
	if impact < 0 {
		impact = 0
	}

	sorted := make([]float64, len(slip))
	copy(sorted, slip)
	sort.Float64s(sorted)

	base := metrics.Percentile(sorted, 0.50)
	capped := metrics.Percentile(sorted, 0.99)
	if capped < base {
		capped = base
	}
	return domain.SlippageModel{Base: base, VolumeImpact: impact, Max: capped}
}

// slope returns the least-squares slope of y on x, 0 if x has no variance.
func slope(x, y []float64) float64 {
	mx, my := metrics.Mean(x), metrics.Mean(y)
	var cov, varX float64
	for i := range x {
		dx := x[i] - mx
		cov += dx * (y[i] - my)
		varX += dx * dx
	}
	if varX == 0 {
		return 0
	}
	return cov / varX
}

func fitFailures(recs []domain.ExecutionRecord) *domain.FailureModel {
	var total, failed, calm, calmFailed, busy, busyFailed int
	for _, r := range recs {
		total++
		if r.CongestionLevel >= congestedLevel {
			busy++
		} else {
			calm++
		}
		if !r.Failed {
			continue
		}
		failed++
		if r.CongestionLevel >= congestedLevel {
			busyFailed++
		} else {
			calmFailed++
		}
	}
	if failed == 0 {
		return nil
	}

	m := &domain.FailureModel{
		BaseRate:             float64(failed) / float64(total),
		CongestionMultiplier: 1,
	}
	if calm > 0 && busy > 0 && calmFailed > 0 {
		calmRate := float64(calmFailed) / float64(calm)
		busyRate := float64(busyFailed) / float64(busy)
		m.BaseRate = calmRate
		m.CongestionMultiplier = busyRate / calmRate
	}
	return m
}

func fitPartialFills(filled []domain.ExecutionRecord) *domain.PartialFillModel {
	if len(filled) == 0 {
		return nil
	}
	var partial []float64
	for _, r := range filled {
		if r.FillPercentage != nil && *r.FillPercentage < 1 {
			partial = append(partial, *r.FillPercentage)
		}
	}
	if len(partial) == 0 {
		return nil
	}
	sort.Float64s(partial)
	return &domain.PartialFillModel{
		Probability: float64(len(partial)) / float64(len(filled)),
		FillRange:   domain.FillRange{Min: partial[0], Max: partial[len(partial)-1]},
	}
}
