// Package pipeline composes fetch, parse, transform and load into one run per symbol.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/guttosm/stockpulse/internal/domain/models"
	"github.com/guttosm/stockpulse/internal/ingestion"
	"github.com/guttosm/stockpulse/internal/logger"
	"github.com/guttosm/stockpulse/internal/storage"
)

// Stage is a step of a per-symbol run. Stages execute in declaration order.
type Stage int

const (
	StageFetch Stage = iota
	StagePersistRaw
	StageParse
	StagePersistFlat
	StageClean
	StageFeature
	StageUpsertSymbol
	StageLoad
	StageDone
)

var stageNames = [...]string{
	StageFetch:        "fetch",
	StagePersistRaw:   "persist_raw",
	StageParse:        "parse",
	StagePersistFlat:  "persist_flat",
	StageClean:        "clean",
	StageFeature:      "feature",
	StageUpsertSymbol: "upsert_symbol",
	StageLoad:         "load",
	StageDone:         "done",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}

type (
	// Parser turns a raw payload into price rows.
	Parser interface {
		Parse(raw *models.RawPriceResponse) ([]models.PriceRow, error)
	}

	// Transformer cleans rows and derives features.
	Transformer interface {
		Clean(rows []models.PriceRow) []models.PriceRow
		AddFeatures(rows []models.PriceRow) ([]models.FeaturedPriceRow, error)
	}

	// Artifacts persists audit copies of a run.
	Artifacts interface {
		SaveRaw(symbol string, body []byte) (string, error)
		SaveCSV(symbol string, rows []models.PriceRow) (string, error)
	}

	// Loader is the write side of the price store.
	Loader interface {
		UpsertSymbol(ctx context.Context, symbol string) (int64, error)
		LoadDailyPrices(ctx context.Context, stockID int64, rows []models.FeaturedPriceRow) (int, error)
		GetLastLoadedDate(ctx context.Context, stockID int64) (time.Time, bool, error)
	}
)

// RunResult describes one finished run. Stage is StageDone on success, otherwise the
// stage that failed.
type RunResult struct {
	RunID   string
	Symbol  string
	Stage   Stage
	StockID int64
	RawPath string
	CSVPath string
	Rows    int
	Elapsed time.Duration
	Skipped bool
	Err     error
}

// Orchestrator runs the per-symbol state machine:
//
//	Fetch → PersistRaw → Parse → PersistFlat → Clean → Feature → UpsertSymbol → Load → Done
//
// A failure at any stage ends the run. Nothing is rolled back: Load is the only stage
// with durable database side effects and it runs last.
type Orchestrator struct {
	fetcher     ingestion.Fetcher
	parser      Parser
	transformer Transformer
	artifacts   Artifacts
	loader      Loader

	newRunID func() string
}

// NewOrchestrator wires the stage collaborators. All of them are required.
func NewOrchestrator(f ingestion.Fetcher, p Parser, t Transformer, a Artifacts, l Loader) *Orchestrator {
	return &Orchestrator{
		fetcher:     f,
		parser:      p,
		transformer: t,
		artifacts:   a,
		loader:      l,
		newRunID:    uuid.NewString,
	}
}

// Run executes every stage for symbol.
//
// Errors from the fetcher, parser, transformer, artifact store and loader are returned
// unchanged so callers can match them with errors.As (*ingestion.FetchError,
// *ingestion.ParseError, *storage.LoadError, ...). The failing stage is reported in the
// returned RunResult.
func (o *Orchestrator) Run(ctx context.Context, symbol string) (RunResult, error) {
	res := RunResult{RunID: o.newRunID(), Symbol: symbol, Stage: StageFetch}
	log := logger.L().With().Str("run_id", res.RunID).Str("symbol", symbol).Logger()
	start := time.Now()

	fail := func(err error) (RunResult, error) {
		res.Elapsed = time.Since(start)
		res.Err = err
		logBoundary(&log, err).
			Str("stage", res.Stage.String()).
			Dur("elapsed", res.Elapsed).
			Msg("pipeline run failed")
		return res, err
	}
	enter := func(s Stage) {
		res.Stage = s
		log.Debug().Str("stage", s.String()).Msg("stage start")
	}

	log.Info().Msg("starting ETL pipeline")

	raw, err := o.fetcher.Fetch(ctx, symbol)
	if err != nil {
		return fail(err)
	}

	enter(StagePersistRaw)
	if res.RawPath, err = o.artifacts.SaveRaw(symbol, raw.Body); err != nil {
		return fail(err)
	}

	enter(StageParse)
	rows, err := o.parser.Parse(raw)
	if err != nil {
		return fail(err)
	}

	enter(StagePersistFlat)
	if res.CSVPath, err = o.artifacts.SaveCSV(symbol, rows); err != nil {
		return fail(err)
	}

	enter(StageClean)
	rows = o.transformer.Clean(rows)

	enter(StageFeature)
	featured, err := o.transformer.AddFeatures(rows)
	if err != nil {
		return fail(err)
	}

	enter(StageUpsertSymbol)
	if res.StockID, err = o.loader.UpsertSymbol(ctx, symbol); err != nil {
		return fail(err)
	}

	enter(StageLoad)
	if last, ok, err := o.loader.GetLastLoadedDate(ctx, res.StockID); err != nil {
		log.Warn().Err(err).Msg("could not read last loaded date")
	} else if ok {
		log.Info().Str("last_loaded", last.Format(time.DateOnly)).Msg("previous data found")
	}
	if res.Rows, err = o.loader.LoadDailyPrices(ctx, res.StockID, featured); err != nil {
		return fail(err)
	}

	res.Stage = StageDone
	res.Elapsed = time.Since(start)
	log.Info().
		Int64("stock_id", res.StockID).
		Int("rows", res.Rows).
		Dur("elapsed", res.Elapsed).
		Msg("pipeline completed successfully")
	return res, nil
}

// logBoundary picks the log event for an error crossing the orchestrator boundary.
// Load errors are split by kind so operators can tell an outage from bad data.
func logBoundary(log *zerolog.Logger, err error) *zerolog.Event {
	var le *storage.LoadError
	if !errors.As(err, &le) {
		return log.Error().Err(err)
	}
	switch le.Kind {
	case storage.KindConnectivity:
		return log.Error().Err(err).Str("error_kind", "connectivity").Str("hint", "database unreachable, retry later")
	case storage.KindIntegrity:
		return log.Error().Err(err).Str("error_kind", "integrity")
	default:
		return log.Error().Err(err).Str("error_kind", "unexpected").Str("op", le.Op)
	}
}
