package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/guttosm/stockpulse/internal/domain/models"
	"github.com/guttosm/stockpulse/internal/storage"
)

// ErrUnknownSymbol is returned when a symbol has never been loaded.
var ErrUnknownSymbol = errors.New("unknown symbol")

// PriceService defines the read side of the price store.
type PriceService interface {
	ListSymbols(ctx context.Context) ([]string, error)
	GetPrices(ctx context.Context, symbol string, startDate, endDate *time.Time) ([]models.DailyPrice, error)
}

type priceService struct {
	repo  storage.PricesRepository
	cache *cache.Cache
}

// NewPriceService wraps repo with an in-memory cache. ttl <= 0 disables caching.
//
// Stored prices only change when the daily batch runs, so a short TTL hides the
// change for at most ttl.
func NewPriceService(repo storage.PricesRepository, ttl time.Duration) PriceService {
	s := &priceService{repo: repo}
	if ttl > 0 {
		s.cache = cache.New(ttl, 2*ttl)
	}
	return s
}

func (s *priceService) ListSymbols(ctx context.Context) ([]string, error) {
	const key = "symbols"
	if v, ok := s.get(key); ok {
		return v.([]string), nil
	}

	stocks, err := s.repo.ListStocks(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(stocks))
	for _, st := range stocks {
		out = append(out, st.Symbol)
	}
	s.set(key, out)
	return out, nil
}

// GetPrices returns stored rows for symbol ascending by date, bounded inclusively
// by the optional dates. Returns ErrUnknownSymbol if the symbol was never loaded.
func (s *priceService) GetPrices(ctx context.Context, symbol string, startDate, endDate *time.Time) ([]models.DailyPrice, error) {
	key := fmt.Sprintf("prices:%s:%s:%s", symbol, dateKey(startDate), dateKey(endDate))
	if v, ok := s.get(key); ok {
		zerolog.Ctx(ctx).Debug().Str("cache_key", key).Msg("price cache hit")
		return v.([]models.DailyPrice), nil
	}

	stock, err := s.repo.FindStock(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if stock == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}

	prices, err := s.repo.GetDailyPrices(ctx, stock.ID, startDate, endDate)
	if err != nil {
		return nil, err
	}
	s.set(key, prices)
	return prices, nil
}

func (s *priceService) get(key string) (any, bool) {
	if s.cache == nil {
		return nil, false
	}
	return s.cache.Get(key)
}

func (s *priceService) set(key string, v any) {
	if s.cache != nil {
		s.cache.Set(key, v, cache.DefaultExpiration)
	}
}

func dateKey(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.DateOnly)
}
