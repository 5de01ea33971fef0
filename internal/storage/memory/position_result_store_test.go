package memory

import (
	"context"
	"errors"
	"testing"

	"token-backtest-lab/internal/domain"
	"token-backtest-lab/internal/storage"
)

func TestPositionResultStore_InsertAndGet(t *testing.T) {
	store := NewPositionResultStore()
	ctx := context.Background()

	tc := 0.5
	r := &domain.PositionResult{
		RunID:             "run1",
		PositionID:        "pos1",
		Mint:              testMint,
		StrategyID:        "s1",
		VenueID:           domain.VenueRealistic,
		EntryTsMs:         1000,
		ExitReason:        domain.ExitReasonTarget,
		RealizedReturnBps: 120,
		TailCapture:       &tc,
	}

	if err := store.Insert(ctx, r); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByID(ctx, "run1", "pos1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.RealizedReturnBps != 120 {
		t.Errorf("RealizedReturnBps mismatch: got %f, want 120", got.RealizedReturnBps)
	}
	if got.TailCapture == nil || *got.TailCapture != 0.5 {
		t.Errorf("TailCapture mismatch: got %v", got.TailCapture)
	}

	if err := store.Insert(ctx, r); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestPositionResultStore_NotFound(t *testing.T) {
	store := NewPositionResultStore()

	_, err := store.GetByID(context.Background(), "run1", "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestPositionResultStore_Queries(t *testing.T) {
	store := NewPositionResultStore()
	ctx := context.Background()

	err := store.InsertBulk(ctx, []*domain.PositionResult{
		{RunID: "run1", PositionID: "c", StrategyID: "s1", VenueID: "a", EntryTsMs: 3000},
		{RunID: "run1", PositionID: "a", StrategyID: "s1", VenueID: "a", EntryTsMs: 1000},
		{RunID: "run1", PositionID: "b", StrategyID: "s2", VenueID: "a", EntryTsMs: 2000},
		{RunID: "run2", PositionID: "a", StrategyID: "s1", VenueID: "a", EntryTsMs: 1000},
	})
	if err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	run, _ := store.GetByRun(ctx, "run1")
	if len(run) != 3 {
		t.Fatalf("Expected 3 results in run1, got %d", len(run))
	}
	if run[0].PositionID != "a" || run[1].PositionID != "b" || run[2].PositionID != "c" {
		t.Errorf("results not ordered by entry time: %s %s %s", run[0].PositionID, run[1].PositionID, run[2].PositionID)
	}

	sv, _ := store.GetByStrategyVenue(ctx, "run1", "s1", "a")
	if len(sv) != 2 {
		t.Errorf("Expected 2 results for s1/a, got %d", len(sv))
	}
}

func TestPositionResultStore_InsertBulkDuplicateInBatch(t *testing.T) {
	store := NewPositionResultStore()
	ctx := context.Background()

	err := store.InsertBulk(ctx, []*domain.PositionResult{
		{RunID: "run1", PositionID: "a"},
		{RunID: "run1", PositionID: "a"},
	})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("Expected ErrDuplicateKey, got %v", err)
	}

	run, _ := store.GetByRun(ctx, "run1")
	if len(run) != 0 {
		t.Errorf("Expected empty store after failed batch, got %d", len(run))
	}
}
