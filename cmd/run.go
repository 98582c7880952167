package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/guttosm/stockpulse/config"
	"github.com/guttosm/stockpulse/internal/app"
	"github.com/guttosm/stockpulse/internal/logger"
	"github.com/guttosm/stockpulse/internal/pipeline"
)

// openPipeline is an indirection for tests.
var openPipeline = app.OpenPipeline

func newRunCmd(cfg *config.Config) *cobra.Command {
	var symbols []string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the ETL once for every configured symbol",
		Long: `Fetch, parse, transform and load every symbol in STOCK_SYMBOLS (or --symbols).
Exits non-zero when at least one symbol failed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(symbols) > 0 {
				cfg.Pipeline.Symbols = config.NormalizeSymbols(symbols)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runner, cleanup, err := openPipeline(*cfg)
			if err != nil {
				logger.L().Error().Err(err).Msg("pipeline init error")
				return err
			}
			defer cleanup()

			_, err = runBatch(ctx, runner, cfg.Pipeline.Symbols)
			return err
		},
	}
	cmd.Flags().StringSliceVar(&symbols, "symbols", nil, "Comma separated symbols overriding STOCK_SYMBOLS")
	return cmd
}

// batchRunner is the part of *pipeline.BatchRunner the commands depend on.
type batchRunner interface {
	Run(ctx context.Context, symbols []string) (pipeline.BatchReport, error)
}

func runBatch(ctx context.Context, r batchRunner, symbols []string) (pipeline.BatchReport, error) {
	report, err := r.Run(ctx, symbols)
	for _, res := range report.Failed() {
		logger.L().Warn().Str("symbol", res.Symbol).Str("stage", res.Stage.String()).Err(res.Err).Msg("symbol failed")
	}
	return report, err
}
