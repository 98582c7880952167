package app

import (
	"database/sql"
	"fmt"

	"github.com/spf13/afero"

	"github.com/guttosm/stockpulse/config"
	"github.com/guttosm/stockpulse/internal/ingestion"
	"github.com/guttosm/stockpulse/internal/pipeline"
	"github.com/guttosm/stockpulse/internal/storage"
	"github.com/guttosm/stockpulse/internal/transform"
)

// BuildPipeline wires fetcher, parser, transformer, artifact store and loader into
// a BatchRunner. fs is where raw and flat artifacts are written.
func BuildPipeline(cfg config.Config, db *sql.DB, fs afero.Fs) (*pipeline.BatchRunner, error) {
	tr, err := transform.NewTransformer(cfg.Windows)
	if err != nil {
		return nil, err
	}

	orch := pipeline.NewOrchestrator(
		ingestion.NewChartFetcher(cfg.Fetch),
		ingestion.NewParser(cfg.Pipeline.DateLocation),
		tr,
		ingestion.NewArtifactStore(fs, cfg.Pipeline.RawDataDir),
		storage.NewPricesRepository(db),
	)
	return pipeline.NewBatchRunner(orch, cfg.Pipeline.BatchPolicy, cfg.Pipeline.Parallelism)
}

// OpenPipeline connects to PostgreSQL and builds the batch runner on the OS filesystem.
// The returned cleanup closes the connection.
func OpenPipeline(cfg config.Config) (*pipeline.BatchRunner, func(), error) {
	db, err := postgresOpener(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}
	runner, err := BuildPipeline(cfg, db, afero.NewOsFs())
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return runner, func() { _ = db.Close() }, nil
}
