package main

//
//  @title           stockpulse API
//  @version         1.0
//  @description     Daily equity price pipeline & read API.
//  @termsOfService  https://github.com/guttosm/stockpulse
//  @contact.name    API Support
//  @contact.url     https://github.com/guttosm/stockpulse
//  @contact.email   support@example.com
//  @license.name    MIT
//  @license.url     https://opensource.org/licenses/MIT
//  @host            localhost:8080
//  @BasePath        /
//  @schemes         http
//
//  @tag.name        prices
//  @tag.description Endpoints for querying stored daily prices and features
//
//  @tag.name        health
//  @tag.description Liveness and readiness probes

import (
	"os"

	_ "github.com/guttosm/stockpulse/docs" // swagger docs
	"github.com/guttosm/stockpulse/internal/logger"
)

// main is the entry point of the stockpulse application.
//
// Commands:
//   - run:      executes the ETL once for the configured symbols.
//   - schedule: runs the ETL on SCHEDULE_CRON until interrupted.
//   - serve:    starts the REST API over the stored prices.
//   - migrate:  applies or inspects database migrations.
func main() {
	err := newRootCmd().Execute()
	logger.Close()
	if err != nil {
		os.Exit(1)
	}
}
