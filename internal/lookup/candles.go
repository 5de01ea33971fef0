// Package lookup has binary-search helpers over ascending candle series.
package lookup

import (
	"sort"

	"token-backtest-lab/internal/domain"
)

// From returns the suffix of candles starting at or after ts.
// candles must be sorted ascending; the result shares the backing array.
func From(candles []domain.Candle, ts int64) []domain.Candle {
	i := sort.Search(len(candles), func(i int) bool {
		return candles[i].Timestamp >= ts
	})
	return candles[i:]
}

// Window returns candles with start <= Timestamp < end.
// candles must be sorted ascending; the result shares the backing array.
func Window(candles []domain.Candle, start, end int64) []domain.Candle {
	lo := sort.Search(len(candles), func(i int) bool {
		return candles[i].Timestamp >= start
	})
	hi := sort.Search(len(candles), func(i int) bool {
		return candles[i].Timestamp >= end
	})
	if hi < lo {
		hi = lo
	}
	return candles[lo:hi]
}
