package ingestion

import (
	"encoding/csv"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/afero"

	"github.com/guttosm/stockpulse/internal/domain/models"
	"github.com/guttosm/stockpulse/internal/logger"
)

const (
	rawTimestampLayout = "20060102_150405"
	csvDateLayout      = "2006-01-02"
)

var csvHeader = []string{"date", "open", "high", "low", "close", "volume"}

// ArtifactStore persists audit copies of each run under one directory:
//   - {symbol}_{YYYYMMDD_HHMMSS}.json: the raw payload, byte for byte.
//   - {symbol}.csv: the parsed flat table, overwritten on every run.
type ArtifactStore struct {
	fs  afero.Fs
	dir string
	now func() time.Time
}

// NewArtifactStore returns a store rooted at dir on fs.
func NewArtifactStore(fs afero.Fs, dir string) *ArtifactStore {
	return &ArtifactStore{fs: fs, dir: dir, now: time.Now}
}

// SaveRaw writes the payload exactly as received and returns the file path.
func (s *ArtifactStore) SaveRaw(symbol string, body []byte) (string, error) {
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create raw dir: %w", err)
	}
	path := filepath.Join(s.dir, fmt.Sprintf("%s_%s.json", symbol, s.now().Format(rawTimestampLayout)))

	logger.L().Info().Str("symbol", symbol).Str("path", path).Msg("saving raw data")
	if err := afero.WriteFile(s.fs, path, body, 0o644); err != nil {
		return "", fmt.Errorf("write raw %s: %w", path, err)
	}
	return path, nil
}

// SaveCSV writes rows as {symbol}.csv, replacing any previous file.
// NaN prices are written as empty cells.
func (s *ArtifactStore) SaveCSV(symbol string, rows []models.PriceRow) (path string, err error) {
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create raw dir: %w", err)
	}
	path = filepath.Join(s.dir, symbol+".csv")
	logger.L().Info().Str("symbol", symbol).Str("path", path).Int("rows", len(rows)).Msg("saving parsed csv")

	f, err := s.fs.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return "", fmt.Errorf("write header: %w", err)
	}
	for _, r := range rows {
		rec := []string{
			r.Date.Format(csvDateLayout),
			formatPrice(r.Open),
			formatPrice(r.High),
			formatPrice(r.Low),
			formatPrice(r.Close),
			strconv.FormatInt(r.Volume, 10),
		}
		if err := w.Write(rec); err != nil {
			return "", fmt.Errorf("write row %s: %w", rec[0], err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush csv: %w", err)
	}
	return path, nil
}

func formatPrice(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
