package ingestion

import (
	"encoding/json"
	"testing"
	"time"
)

// chartBar is one bar of a synthetic chart payload; nil pointers encode JSON null.
type chartBar struct {
	ts     int64
	open   *float64
	high   *float64
	low    *float64
	close  *float64
	volume *int64
}

func f64(v float64) *float64 { return &v }
func i64(v int64) *int64     { return &v }

// bar builds a fully populated bar at 14:30 UTC on the given day.
func bar(day time.Time, close float64, volume int64) chartBar {
	ts := time.Date(day.Year(), day.Month(), day.Day(), 14, 30, 0, 0, time.UTC).Unix()
	return chartBar{ts: ts, open: f64(close - 1), high: f64(close + 1), low: f64(close - 2), close: f64(close), volume: i64(volume)}
}

// chartJSON renders bars in the upstream {chart:{result:[...],error:null}} shape.
func chartJSON(t *testing.T, bars []chartBar) []byte {
	t.Helper()
	quote := map[string][]any{"open": {}, "high": {}, "low": {}, "close": {}, "volume": {}}
	ts := make([]int64, 0, len(bars))
	for _, b := range bars {
		ts = append(ts, b.ts)
		quote["open"] = append(quote["open"], b.open)
		quote["high"] = append(quote["high"], b.high)
		quote["low"] = append(quote["low"], b.low)
		quote["close"] = append(quote["close"], b.close)
		quote["volume"] = append(quote["volume"], b.volume)
	}
	payload := map[string]any{
		"chart": map[string]any{
			"result": []any{map[string]any{
				"meta":       map[string]any{"symbol": "AAPL", "currency": "USD"},
				"timestamp":  ts,
				"indicators": map[string]any{"quote": []any{quote}},
			}},
			"error": nil,
		},
	}
	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal chart: %v", err)
	}
	return b
}
