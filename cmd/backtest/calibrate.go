package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"token-backtest-lab/internal/config"
	"token-backtest-lab/internal/domain"
	"token-backtest-lab/internal/execution"
)

var (
	calibrateVenue  string
	calibrateImport string
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Fit a venue execution model from live execution records",
	Long: `Fit latency, slippage, failure and partial-fill parameters from stored
execution records and print the venue as a config snippet.`,
	Args: cobra.NoArgs,
	RunE: runCalibrate,
}

func init() {
	calibrateCmd.Flags().StringVar(&calibrateVenue, "venue", "", "venue ID to calibrate (required)")
	calibrateCmd.Flags().StringVar(&calibrateImport, "import", "", "YAML file of execution records to store before fitting")
	_ = calibrateCmd.MarkFlagRequired("venue")

	rootCmd.AddCommand(calibrateCmd)
}

func runCalibrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.Read(cfgFile)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	st, err := openStores(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer st.Close()

	if calibrateImport != "" {
		records, err := readRecordsFile(calibrateImport)
		if err != nil {
			return err
		}
		if err := st.records.InsertBulk(ctx, records); err != nil {
			return fmt.Errorf("import execution records: %w", err)
		}
		log.Info("execution records imported", zap.Int("records", len(records)))
	}

	stored, err := st.records.GetByVenue(ctx, calibrateVenue)
	if err != nil {
		return fmt.Errorf("load execution records: %w", err)
	}
	records := make([]domain.ExecutionRecord, 0, len(stored))
	for _, r := range stored {
		records = append(records, *r)
	}

	model, err := execution.Calibrate(records, calibrateVenue)
	if err != nil {
		return fmt.Errorf("calibrate %s: %w", calibrateVenue, err)
	}
	log.Info("venue calibrated",
		zap.String("venue", calibrateVenue),
		zap.Int("records", len(records)))

	out, err := yaml.Marshal(map[string]map[string]config.VenueConfig{
		"venues": {calibrateVenue: config.VenueFromModels(model, venueCost(cfg, calibrateVenue))},
	})
	if err != nil {
		return fmt.Errorf("encode venue: %w", err)
	}
	_, err = os.Stdout.Write(out)
	return err
}

// venueCost keeps the fee model of an already known venue; records carry
// no fee information.
func venueCost(cfg *config.Config, venueID string) domain.CostModel {
	if v, ok := cfg.Venues[venueID]; ok {
		return v.Venue(venueID).Cost
	}
	if v, ok := domain.PredefinedVenue(venueID); ok {
		return v.Cost
	}
	return domain.CostModel{}
}
