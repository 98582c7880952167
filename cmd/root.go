package main

import (
	"github.com/spf13/cobra"

	"github.com/guttosm/stockpulse/config"
	"github.com/guttosm/stockpulse/internal/logger"
)

// loadConfig is an indirection for tests.
var loadConfig = config.LoadConfig

// newRootCmd builds the command tree. Every subcommand receives the loaded
// configuration through cfg once PersistentPreRunE has run.
func newRootCmd() *cobra.Command {
	var cfg config.Config

	root := &cobra.Command{
		Use:   "stockpulse",
		Short: "Daily equity price ETL and read API",
		Long: `stockpulse fetches daily OHLCV bars for a list of symbols, derives
returns, volatility and moving averages, and upserts them into PostgreSQL.
The stored series can be queried through a REST API.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if cfg, err = loadConfig(); err != nil {
				return err
			}
			return logger.Init(logger.Options{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, File: cfg.Log.File})
		},
	}

	root.AddCommand(
		newRunCmd(&cfg),
		newScheduleCmd(&cfg),
		newServeCmd(&cfg),
		newMigrateCmd(&cfg),
	)
	return root
}
