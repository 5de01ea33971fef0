package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"token-backtest-lab/internal/config"
	"token-backtest-lab/internal/logger"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Trade-exit and execution-realism backtester",
	Long: `backtest replays positions over historical candles, applying profit
targets, stops, sampled execution and fees, and reports realized returns.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// newLogger builds the process logger from the log section; --debug forces
// development output at debug level.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if debug {
		return logger.New("debug", true)
	}
	return logger.New(cfg.Log.Level, cfg.Log.Development)
}
