package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidCandle is returned when a candle violates the OHLC invariant.
var ErrInvalidCandle = errors.New("invalid candle")

// Candle represents one OHLCV bar for a fixed interval.
// Corresponds to candles table in ClickHouse.
type Candle struct {
	Timestamp int64   // interval open, Unix seconds
	Open      float64 // first trade price
	High      float64 // highest trade price
	Low       float64 // lowest trade price
	Close     float64 // last trade price
	Volume    float64 // traded volume in interval
}

// TimestampMs returns the candle open time in milliseconds.
func (c Candle) TimestampMs() int64 {
	return c.Timestamp * 1000
}

// Validate checks that high >= max(open, close), low <= min(open, close)
// and that no field is negative. Candles are never repaired here.
func (c Candle) Validate() error {
	if c.Open < 0 || c.High < 0 || c.Low < 0 || c.Close < 0 || c.Volume < 0 {
		return fmt.Errorf("%w: negative field at ts=%d", ErrInvalidCandle, c.Timestamp)
	}
	if c.High < max(c.Open, c.Close) {
		return fmt.Errorf("%w: high %.10g below open/close at ts=%d", ErrInvalidCandle, c.High, c.Timestamp)
	}
	if c.Low > min(c.Open, c.Close) {
		return fmt.Errorf("%w: low %.10g above open/close at ts=%d", ErrInvalidCandle, c.Low, c.Timestamp)
	}
	return nil
}

// ValidateSeries checks every candle and that timestamps strictly ascend.
func ValidateSeries(candles []Candle) error {
	for i, c := range candles {
		if err := c.Validate(); err != nil {
			return err
		}
		if i > 0 && c.Timestamp <= candles[i-1].Timestamp {
			return fmt.Errorf("%w: timestamp %d not after %d", ErrInvalidCandle, c.Timestamp, candles[i-1].Timestamp)
		}
	}
	return nil
}

// Supported candle intervals (in seconds)
const (
	CandleInterval1Sec  = 1
	CandleInterval1Min  = 60
	CandleInterval5Min  = 300
	CandleInterval1Hour = 3600
)

// IntervalName returns the provider interval label for a length in seconds.
func IntervalName(seconds int64) string {
	switch {
	case seconds <= 0:
		return ""
	case seconds%3600 == 0:
		return fmt.Sprintf("%dh", seconds/3600)
	case seconds%60 == 0:
		return fmt.Sprintf("%dm", seconds/60)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
