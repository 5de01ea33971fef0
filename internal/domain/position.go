package domain

// Position holds the mutable per-trade context of an open position.
// Created at entry, drained by partial exits, discarded once RemainingSize is 0.
type Position struct {
	EntryPrice     float64          // realized entry price
	EntryTimestamp int64            // entry time, Unix seconds
	RemainingSize  float64          // fraction of original size still open (0..1)
	TargetsHit     map[int]struct{} // indexes of fired profit targets
}

// NewPosition opens a full-size position.
func NewPosition(entryPrice float64, entryTimestamp int64) *Position {
	return &Position{
		EntryPrice:     entryPrice,
		EntryTimestamp: entryTimestamp,
		RemainingSize:  1.0,
		TargetsHit:     make(map[int]struct{}),
	}
}

// sizeEpsilon absorbs float residue when draining fractional sizes.
const sizeEpsilon = 1e-12

// Drain removes size from the position and returns the amount actually removed.
func (p *Position) Drain(size float64) float64 {
	if size <= 0 {
		return 0
	}
	if size > p.RemainingSize {
		size = p.RemainingSize
	}
	p.RemainingSize -= size
	if p.RemainingSize < sizeEpsilon {
		p.RemainingSize = 0
	}
	return size
}

// Closed reports whether nothing remains open.
func (p *Position) Closed() bool {
	return p.RemainingSize <= 0
}

// TargetHit reports whether target idx already fired.
func (p *Position) TargetHit(idx int) bool {
	_, ok := p.TargetsHit[idx]
	return ok
}

// MarkTarget records that target idx fired.
func (p *Position) MarkTarget(idx int) {
	p.TargetsHit[idx] = struct{}{}
}

// PositionSpec identifies one position to simulate.
type PositionSpec struct {
	Mint            Mint    // token mint
	StrategyID      string  // key into configured strategies
	VenueID         string  // key into configured venues
	EntryPrice      float64 // signal price at entry
	EntryTimestamp  int64   // signal time, Unix seconds
	IntervalSeconds int64   // candle interval of the series
	Notional        float64 // position value in quote units
	CongestionLevel float64 // 0..1 network congestion at entry

	// Indicators holds optional exit-signal snapshots keyed by candle timestamp.
	Indicators map[int64]IndicatorSnapshot
}
