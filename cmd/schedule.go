package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/guttosm/stockpulse/config"
	"github.com/guttosm/stockpulse/internal/logger"
	"github.com/guttosm/stockpulse/internal/scheduler"
)

func newScheduleCmd(cfg *config.Config) *cobra.Command {
	var now bool

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the ETL on SCHEDULE_CRON until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runner, cleanup, err := openPipeline(*cfg)
			if err != nil {
				logger.L().Error().Err(err).Msg("pipeline init error")
				return err
			}
			defer cleanup()

			s, err := scheduler.New(ctx, cfg.Pipeline.ScheduleCron, cfg.Pipeline.DateLocation, cfg.Pipeline.RunTimeout,
				func(ctx context.Context) error {
					_, err := runBatch(ctx, runner, cfg.Pipeline.Symbols)
					return err
				})
			if err != nil {
				return err
			}

			if now {
				_ = s.RunNow()
			}
			s.Start()
			<-ctx.Done()

			stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			s.Stop(stopCtx)
			return nil
		},
	}
	cmd.Flags().BoolVar(&now, "now", false, "Run one batch immediately before waiting for the schedule")
	return cmd
}
