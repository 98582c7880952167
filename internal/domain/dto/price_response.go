package dto

// PriceResponse represents one stored trading day returned by
// GET /api/v1/prices. Derived fields are null until their window is full.
type PriceResponse struct {
	Date          string   `json:"date" example:"2025-09-12"`
	Open          *float64 `json:"open" example:"229.22"`
	High          *float64 `json:"high" example:"234.51"`
	Low           *float64 `json:"low" example:"229.02"`
	Close         float64  `json:"close" example:"234.07"`
	Volume        int64    `json:"volume" example:"55824200"`
	DailyReturn   *float64 `json:"daily_return" example:"0.0176"`
	LogReturn     *float64 `json:"log_return" example:"0.0174"`
	Volatility20d *float64 `json:"volatility_20d" example:"0.0143"`
	MA20d         *float64 `json:"ma_20d" example:"231.10"`
	MA50d         *float64 `json:"ma_50d" example:"222.87"`
}

// PricesResponse wraps the series for one symbol.
type PricesResponse struct {
	Symbol string          `json:"symbol" example:"AAPL"`
	Count  int             `json:"count" example:"1"`
	Prices []PriceResponse `json:"prices"`
}

// SymbolsResponse lists every symbol known to the store.
type SymbolsResponse struct {
	Symbols []string `json:"symbols"`
}
