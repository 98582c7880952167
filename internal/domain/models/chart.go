package models

import (
	"bytes"
	"encoding/json"

	"github.com/guregu/null/v6"
)

// ChartResponse is the raw payload returned by the price-chart endpoint.
//
// Shape:
//
//	{"chart": {"result": [{"timestamp": [...], "indicators": {"quote": [{...}]}}], "error": null}}
//
// Chart is a pointer so a body without a "chart" section can be told apart from an empty one.
// Quote arrays use nullable values because the upstream API emits null for missing bars.
type ChartResponse struct {
	Chart *ChartBody `json:"chart"`
}

// ChartBody holds the result entries and the embedded error object (if any).
type ChartBody struct {
	Result []ChartResult   `json:"result"`
	Error  json.RawMessage `json:"error"`
}

// HasError reports whether the upstream embedded a non-null error object.
func (c *ChartBody) HasError() bool {
	trimmed := bytes.TrimSpace(c.Error)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// ChartResult is one result entry: timestamps plus the parallel OHLCV arrays.
type ChartResult struct {
	Timestamp  []int64         `json:"timestamp"`
	Indicators ChartIndicators `json:"indicators"`
}

type ChartIndicators struct {
	Quote []ChartQuote `json:"quote"`
}

// ChartQuote holds the OHLCV arrays, index-aligned with ChartResult.Timestamp.
type ChartQuote struct {
	Open   []null.Float `json:"open"`
	High   []null.Float `json:"high"`
	Low    []null.Float `json:"low"`
	Close  []null.Float `json:"close"`
	Volume []null.Int64 `json:"volume"`
}

// RawPriceResponse couples the decoded payload with the exact bytes received,
// so the audit artifact can be written verbatim.
type RawPriceResponse struct {
	Symbol string
	Body   []byte
	Chart  ChartResponse
}
