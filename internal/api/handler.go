package api

import (
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/guregu/null/v6"

	"github.com/guttosm/stockpulse/internal/domain/dto"
	"github.com/guttosm/stockpulse/internal/domain/models"
	"github.com/guttosm/stockpulse/internal/middleware"
	"github.com/guttosm/stockpulse/internal/service"
)

// Handler provides HTTP handlers for the stored price series.
//
// Responsibilities:
//   - Validate incoming HTTP query parameters
//   - Delegate reads to the PriceService
//   - Translate stored rows into response DTOs (NULL features stay JSON null)
type Handler struct {
	svc service.PriceService
}

// NewHandler constructs a new Handler instance.
func NewHandler(svc service.PriceService) *Handler {
	return &Handler{svc: svc}
}

// ListSymbols godoc
// @Summary      List loaded symbols
// @Description  Returns every symbol that has been loaded at least once
// @Tags         prices
// @Produce      json
// @Success      200  {object}  dto.SymbolsResponse  "Success"
// @Failure      500  {object}  dto.ErrorResponse    "Internal Error"
// @Router       /api/v1/symbols [get]
func (h *Handler) ListSymbols(c *gin.Context) {
	symbols, err := h.svc.ListSymbols(c.Request.Context())
	if err != nil {
		middleware.AbortWithError(c, http.StatusInternalServerError, "failed to list symbols", err)
		return
	}
	if symbols == nil {
		symbols = []string{}
	}
	c.JSON(http.StatusOK, dto.SymbolsResponse{Symbols: symbols})
}

// GetPrices handles GET /api/v1/prices.
//
// Query Parameters:
//   - symbol (string, required): ticker, case-insensitive.
//   - start, end (string, optional): inclusive YYYY-MM-DD bounds.
//
// GetPrices godoc
// @Summary      Get stored daily prices
// @Description  Returns OHLCV rows with derived features for a symbol, ascending by date
// @Tags         prices
// @Produce      json
// @Param        symbol  query     string  true   "Ticker symbol" example(AAPL)
// @Param        start   query     string  false  "Start date in YYYY-MM-DD" example(2025-01-01)
// @Param        end     query     string  false  "End date in YYYY-MM-DD" example(2025-06-30)
// @Success      200     {object}  dto.PricesResponse  "Success"
// @Failure      400     {object}  dto.ErrorResponse   "Bad Request"
// @Failure      404     {object}  dto.ErrorResponse   "Not Found"
// @Failure      500     {object}  dto.ErrorResponse   "Internal Error"
// @Router       /api/v1/prices [get]
func (h *Handler) GetPrices(c *gin.Context) {
	// ─── Validate "symbol" param ──────────────────────────────
	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse("symbol is required", nil))
		return
	}

	// ─── Parse optional date bounds ───────────────────────────
	startDate, err := parseDate(c.Query("start"))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse("invalid start format, expected YYYY-MM-DD", err))
		return
	}
	endDate, err := parseDate(c.Query("end"))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse("invalid end format, expected YYYY-MM-DD", err))
		return
	}
	if startDate != nil && endDate != nil && startDate.After(*endDate) {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse("start must not be after end", nil))
		return
	}

	// ─── Query service (with request context) ─────────────────
	prices, err := h.svc.GetPrices(c.Request.Context(), symbol, startDate, endDate)
	if errors.Is(err, service.ErrUnknownSymbol) {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse("symbol not found", err))
		return
	}
	if err != nil {
		middleware.AbortWithError(c, http.StatusInternalServerError, "failed to fetch prices", err)
		return
	}

	// ─── Build and return response DTO ────────────────────────
	resp := dto.PricesResponse{Symbol: symbol, Count: len(prices), Prices: make([]dto.PriceResponse, 0, len(prices))}
	for _, p := range prices {
		resp.Prices = append(resp.Prices, toPriceResponse(p))
	}
	c.JSON(http.StatusOK, resp)
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func toPriceResponse(p models.DailyPrice) dto.PriceResponse {
	return dto.PriceResponse{
		Date:          p.Date.Format(time.DateOnly),
		Open:          finitePtr(p.Open),
		High:          finitePtr(p.High),
		Low:           finitePtr(p.Low),
		Close:         p.Close,
		Volume:        p.Volume,
		DailyReturn:   nullPtr(p.DailyReturn),
		LogReturn:     nullPtr(p.LogReturn),
		Volatility20d: nullPtr(p.Volatility20d),
		MA20d:         nullPtr(p.MA20d),
		MA50d:         nullPtr(p.MA50d),
	}
}

func finitePtr(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func nullPtr(v null.Float) *float64 {
	return v.Ptr()
}
