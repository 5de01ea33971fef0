package lookup

import (
	"testing"

	"token-backtest-lab/internal/domain"
)

func series() []domain.Candle {
	return []domain.Candle{
		{Timestamp: 60, Open: 1.0, Close: 1.1},
		{Timestamp: 120, Open: 1.1, Close: 1.2},
		{Timestamp: 180, Open: 1.2, Close: 1.3},
	}
}

func TestFrom(t *testing.T) {
	tests := []struct {
		ts   int64
		want int
	}{
		{0, 3}, {60, 3}, {61, 2}, {180, 1}, {181, 0},
	}
	for _, tt := range tests {
		if got := len(From(series(), tt.ts)); got != tt.want {
			t.Errorf("From(%d): expected %d candles, got %d", tt.ts, tt.want, got)
		}
	}
}

func TestWindow(t *testing.T) {
	w := Window(series(), 60, 180)
	if len(w) != 2 || w[0].Timestamp != 60 || w[1].Timestamp != 120 {
		t.Errorf("expected [60 120], got %v", w)
	}
	if got := Window(series(), 200, 100); len(got) != 0 {
		t.Errorf("expected empty window for inverted range, got %v", got)
	}
}
