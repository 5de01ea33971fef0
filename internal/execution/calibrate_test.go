package execution

import (
	"errors"
	"math"
	"testing"

	"token-backtest-lab/internal/domain"
)

func fp(v float64) *float64 { return &v }

func calibrationRecords() []domain.ExecutionRecord {
	return []domain.ExecutionRecord{
		{RecordID: "r1", VenueID: "v", Quantity: 1, ExpectedPrice: 100, ExecutedPrice: 101, LatencyMs: 100, Timestamp: 1},
		{RecordID: "r2", VenueID: "v", Quantity: 2, ExpectedPrice: 100, ExecutedPrice: 98, LatencyMs: 200, Timestamp: 2},
		{RecordID: "r3", VenueID: "v", Quantity: 3, ExpectedPrice: 100, ExecutedPrice: 103, LatencyMs: 300, Timestamp: 3, FillPercentage: fp(0.6)},
		{RecordID: "r4", VenueID: "v", Quantity: 4, ExpectedPrice: 100, ExecutedPrice: 96, LatencyMs: 400, Timestamp: 4, FillPercentage: fp(0.8)},
		{RecordID: "r5", VenueID: "v", Quantity: 1, ExpectedPrice: 100, Failed: true, CongestionLevel: 0.1, Timestamp: 5},
		{RecordID: "r6", VenueID: "v", Quantity: 1, ExpectedPrice: 100, Failed: true, CongestionLevel: 0.9, Timestamp: 6},
		{RecordID: "r7", VenueID: "v", Quantity: 1, ExpectedPrice: 100, ExecutedPrice: 100, LatencyMs: 500, CongestionLevel: 0.9, Timestamp: 7},
		{RecordID: "x1", VenueID: "other", Quantity: 1, ExpectedPrice: 100, ExecutedPrice: 150, LatencyMs: 9999, Timestamp: 1},
	}
}

func TestCalibrate_NoRecords(t *testing.T) {
	_, err := Calibrate(calibrationRecords(), "missing")
	if !errors.Is(err, ErrNoExecutionRecords) {
		t.Errorf("expected ErrNoExecutionRecords, got %v", err)
	}
}

func TestCalibrate_FitsVenue(t *testing.T) {
	m, err := Calibrate(calibrationRecords(), "v")
	if err != nil {
		t.Fatalf("Calibrate failed: %v", err)
	}

	// filled latencies: 100..500
	if m.Latency.P50 != 300 {
		t.Errorf("expected p50 300, got %v", m.Latency.P50)
	}
	if math.Abs(m.Latency.P90-460) > 1e-9 {
		t.Errorf("expected p90 460, got %v", m.Latency.P90)
	}
	if m.Latency.P99 > 500 || m.Latency.P99 < m.Latency.P90 {
		t.Errorf("p99 out of range: %v", m.Latency.P99)
	}

	// slippage: 0.01, 0.02, 0.03, 0.04, 0.00
	if math.Abs(m.Slippage.Base-0.02) > 1e-12 {
		t.Errorf("expected base 0.02, got %v", m.Slippage.Base)
	}
	if m.Slippage.Max < m.Slippage.Base {
		t.Errorf("max %v below base %v", m.Slippage.Max, m.Slippage.Base)
	}
	if m.Slippage.VolumeImpact <= 0 {
		t.Errorf("expected positive volume impact, got %v", m.Slippage.VolumeImpact)
	}

	// failures: calm 1/5, busy 1/2
	if m.Failures == nil {
		t.Fatal("expected failure model")
	}
	if math.Abs(m.Failures.BaseRate-0.2) > 1e-12 {
		t.Errorf("expected base rate 0.2, got %v", m.Failures.BaseRate)
	}
	if math.Abs(m.Failures.CongestionMultiplier-2.5) > 1e-12 {
		t.Errorf("expected multiplier 2.5, got %v", m.Failures.CongestionMultiplier)
	}

	if m.PartialFills == nil {
		t.Fatal("expected partial fill model")
	}
	if math.Abs(m.PartialFills.Probability-0.4) > 1e-12 {
		t.Errorf("expected probability 0.4, got %v", m.PartialFills.Probability)
	}
	if m.PartialFills.FillRange.Min != 0.6 || m.PartialFills.FillRange.Max != 0.8 {
		t.Errorf("unexpected fill range %+v", m.PartialFills.FillRange)
	}
}

func TestCalibrate_Deterministic(t *testing.T) {
	recs := calibrationRecords()
	a, err := Calibrate(recs, "v")
	if err != nil {
		t.Fatalf("Calibrate failed: %v", err)
	}

	// reversed input order must not change the fit
	rev := make([]domain.ExecutionRecord, len(recs))
	for i, r := range recs {
		rev[len(recs)-1-i] = r
	}
	b, err := Calibrate(rev, "v")
	if err != nil {
		t.Fatalf("Calibrate failed: %v", err)
	}

	if a.Latency != b.Latency || a.Slippage != b.Slippage {
		t.Errorf("fits differ: %+v vs %+v", a, b)
	}
	if *a.Failures != *b.Failures || *a.PartialFills != *b.PartialFills {
		t.Errorf("fits differ: %+v vs %+v", a, b)
	}
}

func TestCalibrate_NoFailuresNoPartials(t *testing.T) {
	recs := []domain.ExecutionRecord{
		{RecordID: "a", Quantity: 1, ExpectedPrice: 10, ExecutedPrice: 10.1, LatencyMs: 50},
		{RecordID: "b", Quantity: 1, ExpectedPrice: 10, ExecutedPrice: 10.2, LatencyMs: 60},
	}
	m, err := Calibrate(recs, "")
	if err != nil {
		t.Fatalf("Calibrate failed: %v", err)
	}
	if m.Failures != nil {
		t.Errorf("expected nil failure model, got %+v", m.Failures)
	}
	if m.PartialFills != nil {
		t.Errorf("expected nil partial fill model, got %+v", m.PartialFills)
	}
	if m.Slippage.VolumeImpact != 0 {
		t.Errorf("expected zero impact without quantity variance, got %v", m.Slippage.VolumeImpact)
	}
}
