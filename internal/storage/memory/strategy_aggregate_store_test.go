package memory

import (
	"context"
	"errors"
	"testing"

	"token-backtest-lab/internal/domain"
	"token-backtest-lab/internal/storage"
)

func TestStrategyAggregateStore_InsertAndGet(t *testing.T) {
	store := NewStrategyAggregateStore()
	ctx := context.Background()

	tc := 0.4
	agg := &domain.StrategyAggregate{
		RunID:           "run1",
		StrategyID:      "tp_2x",
		VenueID:         domain.VenueRealistic,
		TotalPositions:  100,
		Wins:            60,
		Losses:          40,
		WinRate:         0.6,
		ReturnMedianBps: 500,
		MeanTailCapture: &tc,
	}

	if err := store.Insert(ctx, agg); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByKey(ctx, "run1", "tp_2x", domain.VenueRealistic)
	if err != nil {
		t.Fatalf("GetByKey failed: %v", err)
	}

	if got.WinRate != 0.6 {
		t.Errorf("WinRate mismatch: got %f, want %f", got.WinRate, 0.6)
	}
	if got.MeanTailCapture == nil || *got.MeanTailCapture != 0.4 {
		t.Errorf("MeanTailCapture mismatch: got %v", got.MeanTailCapture)
	}

	// Stored copy is detached from the caller's value.
	tc = 0.9
	got, _ = store.GetByKey(ctx, "run1", "tp_2x", domain.VenueRealistic)
	if *got.MeanTailCapture != 0.4 {
		t.Errorf("stored aggregate aliased caller pointer: got %f", *got.MeanTailCapture)
	}
}

func TestStrategyAggregateStore_DuplicateKey(t *testing.T) {
	store := NewStrategyAggregateStore()
	ctx := context.Background()

	agg := &domain.StrategyAggregate{RunID: "run1", StrategyID: "s1", VenueID: domain.VenueRealistic}

	if err := store.Insert(ctx, agg); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.Insert(ctx, agg)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	// Same strategy and venue under another run is a different key.
	other := &domain.StrategyAggregate{RunID: "run2", StrategyID: "s1", VenueID: domain.VenueRealistic}
	if err := store.Insert(ctx, other); err != nil {
		t.Errorf("Insert for second run failed: %v", err)
	}
}

func TestStrategyAggregateStore_InvalidInput(t *testing.T) {
	store := NewStrategyAggregateStore()
	ctx := context.Background()

	err := store.Insert(ctx, &domain.StrategyAggregate{StrategyID: "s1", VenueID: "v"})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestStrategyAggregateStore_InsertBulkAtomic(t *testing.T) {
	store := NewStrategyAggregateStore()
	ctx := context.Background()

	batch := []*domain.StrategyAggregate{
		{RunID: "run1", StrategyID: "s1", VenueID: "a"},
		{RunID: "run1", StrategyID: "s1", VenueID: "b"},
		{RunID: "run1", StrategyID: "s1", VenueID: "a"},
	}

	err := store.InsertBulk(ctx, batch)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("Expected ErrDuplicateKey, got %v", err)
	}

	all, _ := store.GetByRun(ctx, "run1")
	if len(all) != 0 {
		t.Errorf("Expected no aggregates after failed batch, got %d", len(all))
	}
}

func TestStrategyAggregateStore_GetByRunOrdering(t *testing.T) {
	store := NewStrategyAggregateStore()
	ctx := context.Background()

	err := store.InsertBulk(ctx, []*domain.StrategyAggregate{
		{RunID: "run1", StrategyID: "s2", VenueID: "a"},
		{RunID: "run1", StrategyID: "s1", VenueID: "b"},
		{RunID: "run1", StrategyID: "s1", VenueID: "a"},
		{RunID: "run2", StrategyID: "s1", VenueID: "a"},
	})
	if err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.GetByRun(ctx, "run1")
	if err != nil {
		t.Fatalf("GetByRun failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 aggregates, got %d", len(got))
	}

	want := []string{"s1|a", "s1|b", "s2|a"}
	for i, a := range got {
		if key := a.StrategyID + "|" + a.VenueID; key != want[i] {
			t.Errorf("aggregate[%d] = %s, want %s", i, key, want[i])
		}
	}
}
