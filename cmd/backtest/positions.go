package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"token-backtest-lab/internal/config"
	"token-backtest-lab/internal/domain"
	"token-backtest-lab/internal/storage"
)

// positionsFile is the input of the run command.
type positionsFile struct {
	Positions []positionEntry `yaml:"positions"`
	Candles   []candleSeries  `yaml:"candles"` // optional series loaded before the run
}

type positionEntry struct {
	Mint            string                       `yaml:"mint"`
	Strategy        string                       `yaml:"strategy"`
	Venue           string                       `yaml:"venue"`
	EntryPrice      float64                      `yaml:"entry_price"`
	EntryTimestamp  int64                        `yaml:"entry_timestamp"`
	IntervalSeconds int64                        `yaml:"interval_seconds"` // 0 = backtest.candle_interval
	Notional        float64                      `yaml:"notional"`         // 0 = backtest.notional
	Congestion      float64                      `yaml:"congestion"`
	Indicators      map[int64]map[string]float64 `yaml:"indicators"`
}

type candleSeries struct {
	Mint            string      `yaml:"mint"`
	IntervalSeconds int64       `yaml:"interval_seconds"`
	Bars            [][]float64 `yaml:"bars"` // [ts, open, high, low, close, volume]
}

// readPositionsFile parses path as YAML. JSON is valid YAML and works too.
func readPositionsFile(path string) (*positionsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read positions file: %w", err)
	}
	var f positionsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse positions file: %w", err)
	}
	if len(f.Positions) == 0 {
		return nil, fmt.Errorf("positions file %s has no positions", path)
	}
	return &f, nil
}

// specs converts entries into position specs, applying backtest defaults.
func (f *positionsFile) specs(b config.BacktestConfig) ([]domain.PositionSpec, error) {
	out := make([]domain.PositionSpec, 0, len(f.Positions))
	for i, p := range f.Positions {
		if p.Congestion < 0 || p.Congestion > 1 {
			return nil, fmt.Errorf("position %d: congestion must be in [0, 1], got %f", i, p.Congestion)
		}
		spec := domain.PositionSpec{
			Mint:            domain.Mint(p.Mint),
			StrategyID:      p.Strategy,
			VenueID:         p.Venue,
			EntryPrice:      p.EntryPrice,
			EntryTimestamp:  p.EntryTimestamp,
			IntervalSeconds: p.IntervalSeconds,
			Notional:        p.Notional,
			CongestionLevel: p.Congestion,
		}
		if spec.IntervalSeconds == 0 {
			spec.IntervalSeconds = b.IntervalSeconds()
		}
		if spec.Notional == 0 {
			spec.Notional = b.Notional
		}
		if len(p.Indicators) > 0 {
			spec.Indicators = make(map[int64]domain.IndicatorSnapshot, len(p.Indicators))
			for ts, snap := range p.Indicators {
				spec.Indicators[ts] = domain.IndicatorSnapshot(snap)
			}
		}
		out = append(out, spec)
	}
	return out, nil
}

// loadCandles inserts the file's candle series. Series already present in
// the store are skipped.
func (f *positionsFile) loadCandles(ctx context.Context, store storage.CandleStore, log *zap.Logger) error {
	for _, series := range f.Candles {
		candles := make([]domain.Candle, 0, len(series.Bars))
		for i, bar := range series.Bars {
			if len(bar) != 6 {
				return fmt.Errorf("candles %s bar %d: want 6 values, got %d", series.Mint, i, len(bar))
			}
			candles = append(candles, domain.Candle{
				Timestamp: int64(bar[0]),
				Open:      bar[1],
				High:      bar[2],
				Low:       bar[3],
				Close:     bar[4],
				Volume:    bar[5],
			})
		}

		err := store.InsertBulk(ctx, domain.Mint(series.Mint), series.IntervalSeconds, candles)
		if errors.Is(err, storage.ErrDuplicateKey) {
			log.Warn("candle series already stored, skipping",
				zap.String("mint", series.Mint),
				zap.Int64("interval", series.IntervalSeconds))
			continue
		}
		if err != nil {
			return fmt.Errorf("load candles %s: %w", series.Mint, err)
		}
		log.Debug("candle series loaded",
			zap.String("mint", series.Mint),
			zap.Int("candles", len(candles)))
	}
	return nil
}

// recordsFile is the import format of the calibrate command.
type recordsFile struct {
	Records []recordEntry `yaml:"records"`
}

type recordEntry struct {
	ID              string   `yaml:"id"`
	Venue           string   `yaml:"venue"`
	Side            string   `yaml:"side"`
	Quantity        float64  `yaml:"quantity"`
	ExpectedPrice   float64  `yaml:"expected_price"`
	ExecutedPrice   float64  `yaml:"executed_price"`
	LatencyMs       float64  `yaml:"latency_ms"`
	Failed          bool     `yaml:"failed"`
	FillPercentage  *float64 `yaml:"fill_percentage"`
	CongestionLevel float64  `yaml:"congestion"`
	Timestamp       int64    `yaml:"timestamp"`
}

func readRecordsFile(path string) ([]*domain.ExecutionRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read records file: %w", err)
	}
	var f recordsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse records file: %w", err)
	}

	out := make([]*domain.ExecutionRecord, 0, len(f.Records))
	for _, r := range f.Records {
		out = append(out, &domain.ExecutionRecord{
			RecordID:        r.ID,
			VenueID:         r.Venue,
			Side:            r.Side,
			Quantity:        r.Quantity,
			ExpectedPrice:   r.ExpectedPrice,
			ExecutedPrice:   r.ExecutedPrice,
			LatencyMs:       r.LatencyMs,
			Failed:          r.Failed,
			FillPercentage:  r.FillPercentage,
			CongestionLevel: r.CongestionLevel,
			Timestamp:       r.Timestamp,
		})
	}
	return out, nil
}
