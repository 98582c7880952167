package ingestion

import (
	"fmt"
	"math"
	"time"

	"github.com/guregu/null/v6"

	"github.com/guttosm/stockpulse/internal/domain/models"
	"github.com/guttosm/stockpulse/internal/logger"
)

// Parser converts a raw chart payload into a flat, chronological list of PriceRows.
type Parser struct {
	loc *time.Location
}

// NewParser returns a Parser that converts UNIX timestamps to calendar dates in loc.
// A nil loc means time.Local.
func NewParser(loc *time.Location) *Parser {
	if loc == nil {
		loc = time.Local
	}
	return &Parser{loc: loc}
}

// Parse extracts the OHLCV rows from the first result entry of raw.
//
// It fails on:
//   - missing result/quote entries
//   - quote arrays whose length differs from the timestamp count
//   - timestamps that go backwards (the rolling statistics downstream depend on order)
//
// It drops:
//   - rows with a null close
//   - rows whose volume is null, zero or negative (non-trading or bad days)
//
// Null open/high/low values are kept as NaN.
func (p *Parser) Parse(raw *models.RawPriceResponse) ([]models.PriceRow, error) {
	symbol := raw.Symbol
	fail := func(err error) ([]models.PriceRow, error) {
		logger.L().Error().Str("symbol", symbol).Err(err).Msg("failed to parse data")
		return nil, &ParseError{Symbol: symbol, Err: err}
	}

	chart := raw.Chart.Chart
	if chart == nil || len(chart.Result) == 0 {
		return fail(fmt.Errorf("%w: no result entries", ErrMalformedPayload))
	}
	result := chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return fail(fmt.Errorf("%w: no quote entries", ErrMalformedPayload))
	}
	quote := result.Indicators.Quote[0]

	// A nil slice means the key was absent (or null); [] decodes to an empty, non-nil slice.
	if result.Timestamp == nil {
		return fail(fmt.Errorf("%w: missing timestamp", ErrMalformedPayload))
	}
	for _, f := range []struct {
		name    string
		missing bool
	}{
		{"open", quote.Open == nil},
		{"high", quote.High == nil},
		{"low", quote.Low == nil},
		{"close", quote.Close == nil},
		{"volume", quote.Volume == nil},
	} {
		if f.missing {
			return fail(fmt.Errorf("%w: missing %s", ErrMalformedPayload, f.name))
		}
	}

	n := len(result.Timestamp)
	for name, l := range map[string]int{
		"open":   len(quote.Open),
		"high":   len(quote.High),
		"low":    len(quote.Low),
		"close":  len(quote.Close),
		"volume": len(quote.Volume),
	} {
		if l != n {
			return fail(fmt.Errorf("%w: %s has %d values, want %d", ErrLengthMismatch, name, l, n))
		}
	}

	rows := make([]models.PriceRow, 0, n)
	for i, ts := range result.Timestamp {
		if i > 0 && ts < result.Timestamp[i-1] {
			return fail(fmt.Errorf("%w: index %d (%d) precedes index %d (%d)", ErrOutOfOrder, i, ts, i-1, result.Timestamp[i-1]))
		}

		closePx := quote.Close[i]
		if !closePx.Valid {
			continue
		}
		vol := quote.Volume[i]
		if !vol.Valid || vol.Int64 <= 0 {
			continue
		}

		rows = append(rows, models.PriceRow{
			Date:   p.calendarDate(ts),
			Open:   orNaN(quote.Open[i]),
			High:   orNaN(quote.High[i]),
			Low:    orNaN(quote.Low[i]),
			Close:  closePx.Float64,
			Volume: vol.Int64,
		})
	}

	logger.L().Info().Str("symbol", symbol).Int("rows", len(rows)).Int("dropped", n-len(rows)).Msg("parsed price rows")
	return rows, nil
}

// calendarDate converts a UNIX timestamp to its calendar date in p.loc,
// returned as midnight UTC so it compares and stores as a plain DATE.
func (p *Parser) calendarDate(ts int64) time.Time {
	y, m, d := time.Unix(ts, 0).In(p.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func orNaN(v null.Float) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
