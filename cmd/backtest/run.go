package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"token-backtest-lab/internal/config"
	"token-backtest-lab/internal/domain"
	"token-backtest-lab/internal/exit"
	"token-backtest-lab/internal/metrics"
	"token-backtest-lab/internal/observability"
	"token-backtest-lab/internal/orchestrator"
	"token-backtest-lab/internal/risk"
	"token-backtest-lab/internal/simulation"
	"token-backtest-lab/internal/strategy"
)

var (
	runPositions string
	runOutput    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Simulate a batch of positions",
	Long: `Simulate every position of a positions file against stored candles,
persist the results and print per-strategy aggregates.`,
	Args: cobra.NoArgs,
	RunE: runBacktest,
}

func init() {
	runCmd.Flags().StringVarP(&runPositions, "positions", "p", "", "positions file, YAML or JSON (required)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "write position results as YAML to this file")
	_ = runCmd.MarkFlagRequired("positions")

	rootCmd.AddCommand(runCmd)
}

func runBacktest(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	m, stopMetrics := startMetrics(cfg.Metrics, log)
	defer stopMetrics()

	st, err := openStores(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer st.Close()

	file, err := readPositionsFile(runPositions)
	if err != nil {
		return err
	}
	specs, err := file.specs(cfg.Backtest)
	if err != nil {
		return err
	}
	if err := file.loadCandles(ctx, st.candles, log); err != nil {
		return err
	}

	orch, err := buildOrchestrator(cfg, st, m, log)
	if err != nil {
		return err
	}

	result, err := orch.Run(ctx, specs)
	if err != nil {
		return fmt.Errorf("backtest failed: %w", err)
	}

	for _, e := range result.Errors {
		log.Warn("position failed", zap.String("error", e))
	}
	printRunResult(result)

	if runOutput != "" {
		if err := writeResults(runOutput, result.Results); err != nil {
			return err
		}
		log.Info("results written", zap.String("path", runOutput))
	}
	return nil
}

// buildOrchestrator wires resolver → executor → runner → orchestrator.
func buildOrchestrator(cfg *config.Config, st *stores, m *observability.Metrics, log *zap.Logger) (*orchestrator.Orchestrator, error) {
	registry, err := strategy.NewRegistry(cfg.DomainStrategies())
	if err != nil {
		return nil, err
	}

	b := cfg.Backtest
	resolver := exit.NewSequentialResolver(exit.ResolverOptions{
		Provider:          simulation.NewStoreProvider(st.candles, m, st.database),
		SubCandleInterval: int64(b.SubCandleInterval / time.Second),
		Horizon:           b.RefinementHorizon,
		Limit:             b.SubCandleLimit,
		FetchTimeout:      b.FetchTimeout,
		Logger:            log,
	})
	executor := simulation.NewExecutor(simulation.ExecutorOptions{
		Resolver: resolver,
		Priority: domain.Priority(b.Priority),
		Metrics:  m,
		Logger:   log,
	})
	runner := simulation.NewRunner(simulation.RunnerOptions{
		Candles:    st.candles,
		Results:    st.results,
		Executor:   executor,
		Strategies: registry,
		Venues:     cfg.DomainVenues(),
		Seed:       *b.Seed,
		Database:   st.database,
		Metrics:    m,
		Logger:     log,
	})

	var ledger *risk.Ledger
	if b.SharedRisk {
		ledger = risk.NewLedger(cfg.RiskLimits(), b.Capital)
	}

	return orchestrator.New(orchestrator.Options{
		Runner:     runner,
		Aggregator: metrics.NewAggregator(st.results, st.aggregates),
		Ledger:     ledger,
		Workers:    b.Workers,
		Metrics:    m,
		Logger:     log,
	}), nil
}

// startMetrics serves /metrics while the command runs. Disabled metrics
// return a nil *Metrics, which records nothing.
func startMetrics(cfg config.MetricsConfig, log *zap.Logger) (*observability.Metrics, func()) {
	if !cfg.Enabled {
		return nil, func() {}
	}

	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(cfg.Namespace, reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler(reg))
	srv := &http.Server{Addr: cfg.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.String("addr", cfg.Addr))

	return m, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// printRunResult outputs a human-readable run summary.
func printRunResult(r *orchestrator.RunResult) {
	fmt.Println()
	fmt.Println("=== Backtest Run ===")
	fmt.Printf("Run ID:             %s\n", r.RunID)
	fmt.Printf("Positions:          %d\n", r.Positions)
	fmt.Printf("Entered:            %d\n", r.Simulated)
	fmt.Printf("No Entry:           %d\n", r.NoEntry)
	fmt.Printf("Risk Rejected:      %d\n", r.Rejected)
	fmt.Printf("Errors:             %d\n", len(r.Errors))

	for _, a := range r.Aggregates {
		fmt.Println()
		fmt.Printf("Strategy %s @ %s:\n", a.StrategyID, a.VenueID)
		fmt.Printf("  Positions:        %d (%d skipped, %d tokens)\n", a.TotalPositions, a.Skipped, a.TotalTokens)
		fmt.Printf("  Win Rate:         %.2f%% (%d/%d)\n", a.WinRate*100, a.Wins, a.Wins+a.Losses)
		fmt.Printf("  Stop-out Rate:    %.2f%%\n", a.StopOutRate*100)
		fmt.Printf("  Return Mean:      %.1f bps\n", a.ReturnMeanBps)
		fmt.Printf("  Return Median:    %.1f bps\n", a.ReturnMedianBps)
		fmt.Printf("  Return P10/P90:   %.1f / %.1f bps\n", a.ReturnP10Bps, a.ReturnP90Bps)
		fmt.Printf("  Max Drawdown:     %.1f bps\n", a.MaxDrawdownBps)
		fmt.Printf("  Max Loss Streak:  %d\n", a.MaxConsecutiveLosses)
		fmt.Printf("  Mean MAE:         %.1f bps\n", a.MeanAdverseExcursionBps)
		if a.MeanTailCapture != nil {
			fmt.Printf("  Tail Capture:     %.2f%%\n", *a.MeanTailCapture*100)
		}
	}
}

// resultRow is the YAML shape of one position result.
type resultRow struct {
	PositionID        string   `yaml:"position_id"`
	Mint              string   `yaml:"mint"`
	Strategy          string   `yaml:"strategy"`
	Venue             string   `yaml:"venue"`
	EntryTsMs         int64    `yaml:"entry_ts_ms"`
	EntryPx           float64  `yaml:"entry_px"`
	EntryNotional     float64  `yaml:"entry_notional"`
	ExitTsMs          int64    `yaml:"exit_ts_ms"`
	ExitPx            float64  `yaml:"exit_px"`
	ExitReason        string   `yaml:"exit_reason"`
	RealizedReturnBps float64  `yaml:"realized_return_bps"`
	GrossReturnBps    float64  `yaml:"gross_return_bps"`
	TotalCost         float64  `yaml:"total_cost"`
	StopOut           bool     `yaml:"stop_out"`
	MaxAdverseBps     float64  `yaml:"max_adverse_excursion_bps"`
	TimeExposedMs     int64    `yaml:"time_exposed_ms"`
	TailCapture       *float64 `yaml:"tail_capture,omitempty"`
	FailedFills       int      `yaml:"failed_fills,omitempty"`
	PartialFills      int      `yaml:"partial_fills,omitempty"`
	Resolutions       int      `yaml:"resolutions,omitempty"`
}

func writeResults(path string, results []*domain.PositionResult) error {
	rows := make([]resultRow, 0, len(results))
	for _, r := range results {
		if r == nil {
			continue
		}
		rows = append(rows, resultRow{
			PositionID:        r.PositionID,
			Mint:              r.Mint.String(),
			Strategy:          r.StrategyID,
			Venue:             r.VenueID,
			EntryTsMs:         r.EntryTsMs,
			EntryPx:           r.EntryPx,
			EntryNotional:     r.EntryNotional,
			ExitTsMs:          r.ExitTsMs,
			ExitPx:            r.ExitPx,
			ExitReason:        r.ExitReason,
			RealizedReturnBps: r.RealizedReturnBps,
			GrossReturnBps:    r.GrossReturnBps,
			TotalCost:         r.TotalCost,
			StopOut:           r.StopOut,
			MaxAdverseBps:     r.MaxAdverseExcursionBps,
			TimeExposedMs:     r.TimeExposedMs,
			TailCapture:       r.TailCapture,
			FailedFills:       r.FailedFills,
			PartialFills:      r.PartialFills,
			Resolutions:       r.ResolutionCount,
		})
	}

	out, err := yaml.Marshal(map[string][]resultRow{"results": rows})
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}
