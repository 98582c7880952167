package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/guttosm/stockpulse/config"
	"github.com/guttosm/stockpulse/db/migrations"
	"github.com/guttosm/stockpulse/internal/app"
)

func newMigrateCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|status]",
		Short:     "Apply or inspect database migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "status"},
		RunE: func(_ *cobra.Command, args []string) error {
			action := "up"
			if len(args) == 1 {
				action = args[0]
			}

			db, err := app.InitPostgres(*cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			switch action {
			case "up":
				return migrations.Up(db)
			case "down":
				return migrations.Down(db)
			case "status":
				return migrations.Status(db)
			default:
				return fmt.Errorf("unknown migrate action %q", action)
			}
		},
	}
}
