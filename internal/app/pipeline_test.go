package app

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/spf13/afero"

	"github.com/guttosm/stockpulse/config"
)

func pipelineConfig() config.Config {
	return config.Config{
		Fetch:   config.FetchConfig{BaseURL: "http://127.0.0.1:1", Range: "1y", Interval: "1d", Timeout: time.Second, MaxAttempts: 1, BackoffBase: time.Millisecond},
		Windows: config.WindowConfig{Volatility: 20, MAShort: 20, MALong: 50},
		Pipeline: config.PipelineConfig{
			Symbols: []string{"AAPL"}, RawDataDir: "raw", DateLocation: time.UTC,
			BatchPolicy: config.PolicyBestEffort, Parallelism: 1,
		},
	}
}

func TestBuildPipeline(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	if _, err := BuildPipeline(pipelineConfig(), db, afero.NewMemMapFs()); err != nil {
		t.Fatalf("BuildPipeline: %v", err)
	}

	bad := pipelineConfig()
	bad.Windows.Volatility = 1
	if _, err := BuildPipeline(bad, db, afero.NewMemMapFs()); err == nil {
		t.Fatalf("expected error for invalid window")
	}

	bad = pipelineConfig()
	bad.Pipeline.BatchPolicy = "sometimes"
	if _, err := BuildPipeline(bad, db, afero.NewMemMapFs()); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}

func TestOpenPipeline_DBFailure(t *testing.T) {
	old := postgresOpener
	postgresOpener = func(config.Config) (*sql.DB, error) { return nil, errors.New("refused") }
	t.Cleanup(func() { postgresOpener = old })

	if _, cleanup, err := OpenPipeline(pipelineConfig()); err == nil || cleanup != nil {
		t.Fatalf("expected error without cleanup")
	}
}
