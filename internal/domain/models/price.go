package models

import (
	"time"

	"github.com/guregu/null/v6"
)

// PriceRow is one trading day for one symbol.
//
// Date carries no time-of-day (midnight UTC of the calendar date).
// Open, High and Low are NaN when the upstream value was null; Close is always set.
type PriceRow struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// FeaturedPriceRow is a PriceRow extended with derived statistics.
//
// Derived fields stay null until enough preceding rows exist to fill their window;
// partial windows are never used.
type FeaturedPriceRow struct {
	PriceRow
	DailyReturn   null.Float
	LogReturn     null.Float
	Volatility20d null.Float
	MA20d         null.Float
	MA50d         null.Float
}

// Stock is the persisted symbol record. Created once per symbol, never updated.
type Stock struct {
	ID     int64  `json:"stock_id"`
	Symbol string `json:"symbol"`
}

// DailyPrice is a persisted FeaturedPriceRow keyed by (stock_id, date).
type DailyPrice struct {
	StockID int64
	FeaturedPriceRow
}
