package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/guregu/null/v6"

	"github.com/guttosm/stockpulse/internal/domain/dto"
	"github.com/guttosm/stockpulse/internal/domain/models"
	"github.com/guttosm/stockpulse/internal/middleware"
	"github.com/guttosm/stockpulse/internal/service"
)

type mockPriceService struct {
	symbols []string
	prices  []models.DailyPrice
	err     error

	gotSymbol        string
	gotStart, gotEnd *time.Time
}

func (m *mockPriceService) ListSymbols(context.Context) ([]string, error) {
	return m.symbols, m.err
}

func (m *mockPriceService) GetPrices(_ context.Context, symbol string, start, end *time.Time) ([]models.DailyPrice, error) {
	m.gotSymbol, m.gotStart, m.gotEnd = symbol, start, end
	return m.prices, m.err
}

var _ service.PriceService = (*mockPriceService)(nil)

func setupRouterWithMock(s service.PriceService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(s)
	r := gin.New()
	r.Use(middleware.ErrorHandler)
	v1 := r.Group("/api/v1")
	v1.GET("/symbols", h.ListSymbols)
	v1.GET("/prices", h.GetPrices)
	return r
}

func samplePrice() models.DailyPrice {
	return models.DailyPrice{
		StockID: 1,
		FeaturedPriceRow: models.FeaturedPriceRow{
			PriceRow: models.PriceRow{
				Date:   time.Date(2025, 9, 12, 0, 0, 0, 0, time.UTC),
				Open:   math.NaN(),
				High:   11,
				Low:    9,
				Close:  10.5,
				Volume: 1200,
			},
			DailyReturn: null.FloatFrom(0.05),
		},
	}
}

func TestGetPrices_TableDriven(t *testing.T) {
	cases := []struct {
		name   string
		svc    *mockPriceService
		query  string
		status int
		assert func(t *testing.T, svc *mockPriceService, body []byte)
	}{
		{
			name:   "missing symbol",
			svc:    &mockPriceService{},
			query:  "/api/v1/prices",
			status: http.StatusBadRequest,
		},
		{
			name:   "invalid start format",
			svc:    &mockPriceService{},
			query:  "/api/v1/prices?symbol=AAPL&start=2025/09/01",
			status: http.StatusBadRequest,
		},
		{
			name:   "invalid end format",
			svc:    &mockPriceService{},
			query:  "/api/v1/prices?symbol=AAPL&end=yesterday",
			status: http.StatusBadRequest,
		},
		{
			name:   "start after end",
			svc:    &mockPriceService{},
			query:  "/api/v1/prices?symbol=AAPL&start=2025-09-02&end=2025-09-01",
			status: http.StatusBadRequest,
		},
		{
			name:   "unknown symbol",
			svc:    &mockPriceService{err: service.ErrUnknownSymbol},
			query:  "/api/v1/prices?symbol=ZZZZ",
			status: http.StatusNotFound,
		},
		{
			name:   "internal error",
			svc:    &mockPriceService{err: errors.New("db down")},
			query:  "/api/v1/prices?symbol=AAPL",
			status: http.StatusInternalServerError,
			assert: func(t *testing.T, _ *mockPriceService, body []byte) {
				var out dto.ErrorResponse
				if err := json.Unmarshal(body, &out); err != nil {
					t.Fatalf("invalid json: %v", err)
				}
				if out.Message != "failed to fetch prices" {
					t.Fatalf("unexpected message: %q", out.Message)
				}
				if out.ErrorDetails != "" {
					t.Fatalf("storage error leaked to client: %q", out.ErrorDetails)
				}
			},
		},
		{
			name:   "success",
			svc:    &mockPriceService{prices: []models.DailyPrice{samplePrice()}},
			query:  "/api/v1/prices?symbol=aapl&start=2025-09-01&end=2025-09-30",
			status: http.StatusOK,
			assert: func(t *testing.T, svc *mockPriceService, body []byte) {
				if svc.gotSymbol != "AAPL" {
					t.Fatalf("symbol must be upper-cased, got %q", svc.gotSymbol)
				}
				if svc.gotStart == nil || svc.gotEnd == nil || svc.gotEnd.Day() != 30 {
					t.Fatalf("dates not forwarded: %v %v", svc.gotStart, svc.gotEnd)
				}
				var out dto.PricesResponse
				if err := json.Unmarshal(body, &out); err != nil {
					t.Fatalf("invalid json: %v", err)
				}
				if out.Symbol != "AAPL" || out.Count != 1 || len(out.Prices) != 1 {
					t.Fatalf("unexpected body: %+v", out)
				}
				p := out.Prices[0]
				if p.Date != "2025-09-12" || p.Close != 10.5 || p.Volume != 1200 {
					t.Fatalf("unexpected row: %+v", p)
				}
				if p.Open != nil || p.MA20d != nil {
					t.Fatalf("missing values must be null: %+v", p)
				}
				if p.DailyReturn == nil || *p.DailyReturn != 0.05 {
					t.Fatalf("daily_return lost: %+v", p)
				}
			},
		},
		{
			name:   "success empty range",
			svc:    &mockPriceService{},
			query:  "/api/v1/prices?symbol=AAPL",
			status: http.StatusOK,
			assert: func(t *testing.T, _ *mockPriceService, body []byte) {
				var raw map[string]json.RawMessage
				if err := json.Unmarshal(body, &raw); err != nil {
					t.Fatalf("invalid json: %v", err)
				}
				if string(raw["prices"]) != "[]" {
					t.Fatalf("empty range must render [], got %s", raw["prices"])
				}
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := setupRouterWithMock(tc.svc)
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tc.query, nil)
			r.ServeHTTP(w, req)
			if w.Code != tc.status {
				t.Fatalf("want status %d got %d, body=%s", tc.status, w.Code, w.Body.String())
			}
			if tc.assert != nil {
				tc.assert(t, tc.svc, w.Body.Bytes())
			}
		})
	}
}

func TestListSymbols(t *testing.T) {
	cases := []struct {
		name   string
		svc    *mockPriceService
		status int
		want   string
	}{
		{name: "some", svc: &mockPriceService{symbols: []string{"AAPL", "MSFT"}}, status: http.StatusOK, want: `{"symbols":["AAPL","MSFT"]}`},
		{name: "none", svc: &mockPriceService{}, status: http.StatusOK, want: `{"symbols":[]}`},
		{name: "error", svc: &mockPriceService{err: errors.New("db down")}, status: http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := setupRouterWithMock(tc.svc)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/symbols", nil))
			if w.Code != tc.status {
				t.Fatalf("want %d got %d", tc.status, w.Code)
			}
			if tc.want != "" && w.Body.String() != tc.want {
				t.Fatalf("body = %s, want %s", w.Body.String(), tc.want)
			}
			if tc.status >= http.StatusInternalServerError && strings.Contains(w.Body.String(), "db down") {
				t.Fatalf("storage error leaked to client: %s", w.Body.String())
			}
		})
	}
}

func TestFinitePtr(t *testing.T) {
	if finitePtr(math.NaN()) != nil || finitePtr(math.Inf(1)) != nil {
		t.Fatalf("non-finite values must map to nil")
	}
	if p := finitePtr(1.5); p == nil || *p != 1.5 {
		t.Fatalf("finite value lost")
	}
}
