package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"token-backtest-lab/internal/config"
	"token-backtest-lab/internal/domain"
	"token-backtest-lab/internal/storage/memory"
)

const testPositions = `
positions:
  - mint: So11111111111111111111111111111111111111112
    strategy: tp_2x
    venue: optimistic
    entry_price: 1.0
    entry_timestamp: 0
    congestion: 0.25
    indicators:
      60: {rsi: 81}
  - mint: So11111111111111111111111111111111111111112
    strategy: tp_2x
    venue: optimistic
    entry_price: 1.0
    entry_timestamp: 60
    interval_seconds: 60
    notional: 500
candles:
  - mint: So11111111111111111111111111111111111111112
    interval_seconds: 60
    bars:
      - [0, 1.0, 1.1, 0.95, 1.05, 10]
      - [60, 1.05, 1.5, 1.0, 1.4, 12]
      - [120, 1.4, 2.5, 1.3, 2.4, 30]
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func testBacktestConfig() config.BacktestConfig {
	seed := uint64(9)
	return config.BacktestConfig{
		Seed:              &seed,
		CandleInterval:    time.Minute,
		SubCandleInterval: time.Second,
		Workers:           2,
		Notional:          100,
		Priority:          "medium",
	}
}

func TestReadPositionsFile_Specs(t *testing.T) {
	f, err := readPositionsFile(writeFile(t, "positions.yaml", testPositions))
	require.NoError(t, err)

	specs, err := f.specs(testBacktestConfig())
	require.NoError(t, err)
	require.Len(t, specs, 2)

	assert.Equal(t, int64(60), specs[0].IntervalSeconds, "interval defaults to candle_interval")
	assert.Equal(t, 100.0, specs[0].Notional, "notional defaults to backtest.notional")
	assert.Equal(t, 0.25, specs[0].CongestionLevel)
	assert.Equal(t, 81.0, specs[0].Indicators[60]["rsi"])
	assert.Equal(t, 500.0, specs[1].Notional)
	assert.Nil(t, specs[1].Indicators)
}

func TestReadPositionsFile_Errors(t *testing.T) {
	_, err := readPositionsFile(writeFile(t, "empty.yaml", "positions: []\n"))
	assert.Error(t, err)

	_, err = readPositionsFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	f, err := readPositionsFile(writeFile(t, "bad.yaml", `
positions:
  - {mint: m, strategy: s, venue: v, entry_price: 1, congestion: 2}
`))
	require.NoError(t, err)
	_, err = f.specs(testBacktestConfig())
	assert.Error(t, err)
}

func TestLoadCandles_SkipsStoredSeries(t *testing.T) {
	ctx := context.Background()
	f, err := readPositionsFile(writeFile(t, "positions.yaml", testPositions))
	require.NoError(t, err)

	store := memory.NewCandleStore()
	require.NoError(t, f.loadCandles(ctx, store, zap.NewNop()))
	require.NoError(t, f.loadCandles(ctx, store, zap.NewNop()), "second load must skip duplicates")

	candles, err := store.GetByMint(ctx, "So11111111111111111111111111111111111111112", 60)
	require.NoError(t, err)
	assert.Len(t, candles, 3)
	assert.Equal(t, 2.5, candles[2].High)
}

func TestLoadCandles_RejectsShortBar(t *testing.T) {
	f := &positionsFile{Candles: []candleSeries{{Mint: "m", IntervalSeconds: 60, Bars: [][]float64{{0, 1, 1}}}}}
	assert.Error(t, f.loadCandles(context.Background(), memory.NewCandleStore(), zap.NewNop()))
}

func TestReadRecordsFile(t *testing.T) {
	path := writeFile(t, "records.yaml", `
records:
  - {id: r1, venue: jup, side: entry, quantity: 10, expected_price: 1, executed_price: 1.01, latency_ms: 400, timestamp: 1}
  - {id: r2, venue: jup, side: exit, quantity: 10, expected_price: 1, failed: true, congestion: 0.8, timestamp: 2}
  - {id: r3, venue: jup, side: exit, quantity: 10, expected_price: 1, executed_price: 0.99, fill_percentage: 0.6, timestamp: 3}
`)
	records, err := readRecordsFile(path)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "r1", records[0].RecordID)
	assert.True(t, records[1].Failed)
	assert.Equal(t, 0.8, records[1].CongestionLevel)
	require.NotNil(t, records[2].FillPercentage)
	assert.Equal(t, 0.6, *records[2].FillPercentage)
}

func TestRunPipeline_Memory(t *testing.T) {
	ctx := context.Background()
	seed := uint64(9)
	cfg := &config.Config{
		Storage:  config.StorageConfig{UseMemory: true},
		Backtest: testBacktestConfig(),
		Strategies: []config.StrategyConfig{{
			ID:       "tp_2x",
			Targets:  []config.TargetConfig{{Multiplier: 2, Percent: 1}},
			StopLoss: config.StopLossConfig{Initial: -0.3},
		}},
	}
	cfg.Backtest.Seed = &seed
	require.NoError(t, cfg.Validate())

	st, err := openStores(ctx, cfg.Storage)
	require.NoError(t, err)
	defer st.Close()

	f, err := readPositionsFile(writeFile(t, "positions.yaml", testPositions))
	require.NoError(t, err)
	specs, err := f.specs(cfg.Backtest)
	require.NoError(t, err)
	require.NoError(t, f.loadCandles(ctx, st.candles, zap.NewNop()))

	orch, err := buildOrchestrator(cfg, st, nil, zap.NewNop())
	require.NoError(t, err)

	result, err := orch.Run(ctx, specs)
	require.NoError(t, err)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 2, result.Simulated)
	require.Len(t, result.Aggregates, 1)
	assert.Equal(t, domain.VenueOptimistic, result.Aggregates[0].VenueID)

	stored, err := st.results.GetByRun(ctx, result.RunID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	out := filepath.Join(t.TempDir(), "results.yaml")
	require.NoError(t, writeResults(out, result.Results))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var decoded map[string][]resultRow
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	require.Len(t, decoded["results"], 2)
	assert.Equal(t, result.Results[0].PositionID, decoded["results"][0].PositionID)
}

func TestOpenStores_RequiresDSN(t *testing.T) {
	_, err := openStores(context.Background(), config.StorageConfig{PostgresDSN: "postgres://x"})
	assert.Error(t, err)
}

func TestVenueCost(t *testing.T) {
	cfg := &config.Config{Venues: map[string]config.VenueConfig{
		"custom": {Cost: config.CostConfig{BaseFee: 0.5}},
	}}
	assert.Equal(t, 0.5, venueCost(cfg, "custom").BaseFee)
	assert.Equal(t, domain.VenueConfigRealistic.Cost, venueCost(cfg, domain.VenueRealistic))
	assert.Equal(t, domain.CostModel{}, venueCost(cfg, "unknown"))
}
