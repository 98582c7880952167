// Package transform cleans parsed price rows and derives return and rolling-window features.
//
// Rolling windows count rows, not calendar days: a 20-row window over a series with
// holidays or missing bars spans more than 20 trading sessions of wall-clock time.
package transform

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/guregu/null/v6"
	"gonum.org/v1/gonum/stat"

	"github.com/guttosm/stockpulse/config"
	"github.com/guttosm/stockpulse/internal/domain/models"
	"github.com/guttosm/stockpulse/internal/logger"
)

// ErrNotAscending is returned by AddFeatures when its input is not strictly ascending by date.
var ErrNotAscending = errors.New("rows are not strictly ascending by date")

// Transformer holds the window sizes used by AddFeatures.
type Transformer struct {
	windows config.WindowConfig
}

// NewTransformer validates the window sizes and returns a Transformer.
// The volatility window needs at least 2 values for a sample standard deviation.
func NewTransformer(windows config.WindowConfig) (*Transformer, error) {
	if windows.Volatility < 2 || windows.MAShort < 1 || windows.MALong < 1 {
		return nil, fmt.Errorf("invalid rolling windows: %+v", windows)
	}
	return &Transformer{windows: windows}, nil
}

// Clean normalizes, orders and de-duplicates rows. The input slice is not modified.
//
// Steps:
//   - Truncate every date to its calendar day (UTC midnight).
//   - Drop rows whose close is NaN or infinite.
//   - Sort ascending by date (stable, so equal dates keep upstream order).
//   - Keep the first row of each date and drop the rest.
func (t *Transformer) Clean(rows []models.PriceRow) []models.PriceRow {
	logger.L().Debug().Int("rows", len(rows)).Msg("cleaning data")

	out := make([]models.PriceRow, 0, len(rows))
	for _, r := range rows {
		if math.IsNaN(r.Close) || math.IsInf(r.Close, 0) {
			continue
		}
		r.Date = truncateToDate(r.Date)
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })

	deduped := out[:0]
	for i, r := range out {
		if i > 0 && r.Date.Equal(deduped[len(deduped)-1].Date) {
			continue
		}
		deduped = append(deduped, r)
	}

	if dropped := len(rows) - len(deduped); dropped > 0 {
		logger.L().Info().Int("dropped", dropped).Int("rows", len(deduped)).Msg("cleaned data")
	}
	return deduped
}

// AddFeatures computes derived fields over rows, which must be strictly ascending by date.
//
//	daily_return[i]   = close[i]/close[i-1] - 1
//	log_return[i]     = ln(close[i]/close[i-1])
//	volatility_20d[i] = sample stddev (N-1) of log_return over the last Volatility rows
//	ma_20d[i], ma_50d[i] = mean close over the last MAShort / MALong rows
//
// Returns are null for the first row and whenever a close is not positive.
// A window statistic is null until the window is full of defined values.
func (t *Transformer) AddFeatures(rows []models.PriceRow) ([]models.FeaturedPriceRow, error) {
	for i := 1; i < len(rows); i++ {
		if !rows[i].Date.After(rows[i-1].Date) {
			return nil, fmt.Errorf("%w: %s at index %d follows %s", ErrNotAscending,
				rows[i].Date.Format(time.DateOnly), i, rows[i-1].Date.Format(time.DateOnly))
		}
	}
	logger.L().Debug().Int("rows", len(rows)).Msg("adding features")

	closes := make([]float64, len(rows))
	for i, r := range rows {
		closes[i] = r.Close
	}

	logReturns := make([]null.Float, len(rows))
	out := make([]models.FeaturedPriceRow, len(rows))
	for i, r := range rows {
		out[i].PriceRow = r
		if i > 0 && closes[i-1] > 0 && closes[i] > 0 {
			ratio := closes[i] / closes[i-1]
			out[i].DailyReturn = null.FloatFrom(ratio - 1)
			logReturns[i] = null.FloatFrom(math.Log(ratio))
			out[i].LogReturn = logReturns[i]
		}
	}

	for i := range out {
		out[i].Volatility20d = rollingStdDev(logReturns, i, t.windows.Volatility)
		out[i].MA20d = rollingMean(closes, i, t.windows.MAShort)
		out[i].MA50d = rollingMean(closes, i, t.windows.MALong)
	}
	return out, nil
}

// rollingMean returns the mean of values[i-window+1..i], or null if the window is not full
// or the mean is not finite.
func rollingMean(values []float64, i, window int) null.Float {
	if i+1 < window {
		return null.Float{}
	}
	m := stat.Mean(values[i-window+1:i+1], nil)
	if math.IsNaN(m) || math.IsInf(m, 0) {
		return null.Float{}
	}
	return null.FloatFrom(m)
}

// rollingStdDev returns the sample standard deviation of values[i-window+1..i],
// or null if the window is not full or holds an undefined value.
func rollingStdDev(values []null.Float, i, window int) null.Float {
	if i+1 < window {
		return null.Float{}
	}
	buf := make([]float64, 0, window)
	for _, v := range values[i-window+1 : i+1] {
		if !v.Valid {
			return null.Float{}
		}
		buf = append(buf, v.Float64)
	}
	return null.FloatFrom(stat.StdDev(buf, nil))
}

func truncateToDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
