package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"token-backtest-lab/internal/config"
	"token-backtest-lab/internal/storage/migrations"
	pgstore "token-backtest-lab/internal/storage/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply embedded SQL migrations",
	Long:  "Apply the embedded PostgreSQL and ClickHouse migrations to the configured databases.",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.Read(cfgFile)
	if err != nil {
		return err
	}
	if cfg.Storage.PostgresDSN == "" || cfg.Storage.ClickhouseDSN == "" {
		return fmt.Errorf("migrate requires storage.postgres_dsn and storage.clickhouse_dsn")
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	applied, err := migrations.RunPostgresMigrations(ctx, pool)
	if err != nil {
		return fmt.Errorf("postgres migrations: %w", err)
	}
	log.Info("postgres migrations applied", zap.Strings("versions", applied))

	applied, err = migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickhouseDSN)
	if err != nil {
		return fmt.Errorf("clickhouse migrations: %w", err)
	}
	log.Info("clickhouse migrations applied", zap.Strings("versions", applied))

	return nil
}
