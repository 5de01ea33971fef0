// Package execution turns idealized fills into realistic ones and prices them.
//
// All sampling draws from an injected Rand; nothing here reads the clock or
// OS entropy, so identical seeds and inputs give identical results.
package execution

import (
	"math/rand/v2"

	"token-backtest-lab/internal/domain"
)

// Rand is the seeded random source consumed by Apply.
type Rand interface {
	// Float64 returns a value in [0, 1).
	Float64() float64
}

// NewRand returns a PCG-backed Rand for seed.
func NewRand(seed uint64) Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// TradeIntent is an idealized fill about to be executed.
type TradeIntent struct {
	Side            string   // domain.SideEntry | domain.SideExit
	Quantity        float64  // requested size, drives volume impact
	ExpectedPrice   float64  // idealized price
	MarketVolume24h *float64 // not used by the linear slippage model
	CongestionLevel float64  // 0..1, scales failure rate
}

// Result is the realized outcome of a TradeIntent.
type Result struct {
	ExecutedPrice  float64  // 0 when Failed
	LatencyMs      float64  // sampled latency bucket
	Slippage       float64  // applied slippage fraction
	Failed         bool     // no fill
	PartialFill    bool     // filled less than requested
	FillPercentage *float64 // set iff PartialFill
}

// Latency buckets
const (
	latencyP50Cut = 0.5
	latencyP90Cut = 0.9
)

// Apply samples latency, slippage, failure and partial fill for intent.
//
// Draw order is fixed: latency, then failure (only with a failure model),
// then partial fill (only if not failed and with a partial-fill model), then
// fill percentage (only if partial).
func Apply(intent TradeIntent, model domain.ExecutionModel, rng Rand) Result {
	res := Result{LatencyMs: SampleLatency(model.Latency, rng.Float64())}

	res.Slippage = Slippage(model.Slippage, intent.Quantity)

	if model.Failures != nil {
		rate := FailureRate(*model.Failures, intent.CongestionLevel)
		if rng.Float64() < rate {
			res.Failed = true
			return res
		}
	}

	if intent.Side == domain.SideEntry {
		res.ExecutedPrice = intent.ExpectedPrice * (1 + res.Slippage)
	} else {
		res.ExecutedPrice = intent.ExpectedPrice * (1 - res.Slippage)
	}

	if pf := model.PartialFills; pf != nil && rng.Float64() < pf.Probability {
		fill := pf.FillRange.Min + rng.Float64()*(pf.FillRange.Max-pf.FillRange.Min)
		res.PartialFill = true
		res.FillPercentage = &fill
	}

	return res
}

// SampleLatency maps a uniform draw onto the p50/p90/p99 buckets.
func SampleLatency(m domain.LatencyModel, r float64) float64 {
	switch {
	case r < latencyP50Cut:
		return m.P50
	case r < latencyP90Cut:
		return m.P90
	default:
		return m.P99
	}
}

// Slippage returns min(base + quantity*volumeImpact, max).
func Slippage(m domain.SlippageModel, quantity float64) float64 {
	s := m.Base + quantity*m.VolumeImpact
	if s > m.Max {
		s = m.Max
	}
	return s
}

// FailureRate returns baseRate * (1 + (multiplier-1)*congestion), congestion clamped to [0, 1].
func FailureRate(m domain.FailureModel, congestion float64) float64 {
	if congestion < 0 {
		congestion = 0
	}
	if congestion > 1 {
		congestion = 1
	}
	return m.BaseRate * (1 + (m.CongestionMultiplier-1)*congestion)
}
