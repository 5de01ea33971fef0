package domain

// ExecutionModel describes how idealized fills degrade at a venue.
// Read-only during simulation.
type ExecutionModel struct {
	Latency      LatencyModel
	Slippage     SlippageModel
	Failures     *FailureModel     // nil = fills never fail
	PartialFills *PartialFillModel // nil = fills are always complete
}

// LatencyModel holds latency percentiles in milliseconds.
type LatencyModel struct {
	P50    float64
	P90    float64
	P99    float64
	Jitter float64 // sample stddev, informational
}

// SlippageModel: slippage = min(Base + quantity*VolumeImpact, Max), as fractions.
type SlippageModel struct {
	Base         float64
	VolumeImpact float64
	Max          float64
}

// FailureModel: rate = BaseRate * (1 + (CongestionMultiplier-1)*congestion).
type FailureModel struct {
	BaseRate             float64
	CongestionMultiplier float64
}

// PartialFillModel draws a fill percentage in FillRange with Probability.
type PartialFillModel struct {
	Probability float64
	FillRange   FillRange
}

// FillRange bounds a sampled fill percentage (fractions of requested size).
type FillRange struct {
	Min float64
	Max float64
}

// CostModel describes per-trade fees at a venue.
type CostModel struct {
	BaseFee               float64           // fixed fee per trade (quote units)
	PriorityFee           *PriorityFeeModel // nil = no priority fee
	TradingFee            float64           // fraction of trade value
	EffectiveCostPerTrade float64           // informational all-in estimate
}

// PriorityFeeModel holds the normal and high-priority fee levels.
type PriorityFeeModel struct {
	Base float64
	Max  float64
}

// Priority selects the priority fee level of a trade.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// IsValid checks if the priority is a valid value.
func (p Priority) IsValid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// Venue bundles the execution and cost models of one venue or scenario.
type Venue struct {
	VenueID   string
	Execution ExecutionModel
	Cost      CostModel
}

// Venue ID constants for the predefined scenarios.
const (
	VenueOptimistic  = "optimistic"
	VenueRealistic   = "realistic"
	VenuePessimistic = "pessimistic"
	VenueDegraded    = "degraded"
)

// Predefined venue scenarios.
var (
	VenueConfigOptimistic = Venue{
		VenueID: VenueOptimistic,
		Execution: ExecutionModel{
			Latency:  LatencyModel{P50: 100, P90: 200, P99: 400},
			Slippage: SlippageModel{Base: 0.0025, VolumeImpact: 0, Max: 0.01},
		},
		Cost: CostModel{BaseFee: 0.000005, TradingFee: 0.0025},
	}

	VenueConfigRealistic = Venue{
		VenueID: VenueRealistic,
		Execution: ExecutionModel{
			Latency:      LatencyModel{P50: 500, P90: 1200, P99: 3000},
			Slippage:     SlippageModel{Base: 0.01, VolumeImpact: 0.001, Max: 0.05},
			Failures:     &FailureModel{BaseRate: 0.02, CongestionMultiplier: 3},
			PartialFills: &PartialFillModel{Probability: 0.05, FillRange: FillRange{Min: 0.5, Max: 0.95}},
		},
		Cost: CostModel{BaseFee: 0.00001, PriorityFee: &PriorityFeeModel{Base: 0.0001, Max: 0.001}, TradingFee: 0.0025},
	}

	VenueConfigPessimistic = Venue{
		VenueID: VenuePessimistic,
		Execution: ExecutionModel{
			Latency:      LatencyModel{P50: 2000, P90: 5000, P99: 10000},
			Slippage:     SlippageModel{Base: 0.025, VolumeImpact: 0.0025, Max: 0.1},
			Failures:     &FailureModel{BaseRate: 0.05, CongestionMultiplier: 4},
			PartialFills: &PartialFillModel{Probability: 0.15, FillRange: FillRange{Min: 0.3, Max: 0.9}},
		},
		Cost: CostModel{BaseFee: 0.0001, PriorityFee: &PriorityFeeModel{Base: 0.001, Max: 0.01}, TradingFee: 0.003},
	}

	VenueConfigDegraded = Venue{
		VenueID: VenueDegraded,
		Execution: ExecutionModel{
			Latency:      LatencyModel{P50: 5000, P90: 15000, P99: 30000},
			Slippage:     SlippageModel{Base: 0.05, VolumeImpact: 0.005, Max: 0.2},
			Failures:     &FailureModel{BaseRate: 0.15, CongestionMultiplier: 5},
			PartialFills: &PartialFillModel{Probability: 0.3, FillRange: FillRange{Min: 0.2, Max: 0.8}},
		},
		Cost: CostModel{BaseFee: 0.001, PriorityFee: &PriorityFeeModel{Base: 0.01, Max: 0.05}, TradingFee: 0.005},
	}
)

// PredefinedVenue returns a predefined venue by ID.
func PredefinedVenue(id string) (Venue, bool) {
	switch id {
	case VenueOptimistic:
		return VenueConfigOptimistic, true
	case VenueRealistic:
		return VenueConfigRealistic, true
	case VenuePessimistic:
		return VenueConfigPessimistic, true
	case VenueDegraded:
		return VenueConfigDegraded, true
	default:
		return Venue{}, false
	}
}
