package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"

	"github.com/guttosm/stockpulse/config"
	"github.com/guttosm/stockpulse/internal/domain/models"
	"github.com/guttosm/stockpulse/internal/logger"
)

// userAgent mimics a desktop browser; the upstream API blocks obvious bots.
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Fetcher retrieves the raw price payload for one symbol.
type Fetcher interface {
	Fetch(ctx context.Context, symbol string) (*models.RawPriceResponse, error)
}

// ChartFetcher calls GET {base}/{symbol}?range=..&interval=.. with retry and backoff.
//
// Retry policy:
//   - Up to cfg.MaxAttempts attempts in total.
//   - Network errors, timeouts, 5xx and 429 are retried after cfg.BackoffBase * 2^(n-1)
//     (2s, 4s with the defaults).
//   - Other 4xx, undecodable bodies and payloads with a missing chart section or an
//     embedded error object fail immediately.
type ChartFetcher struct {
	client  *resty.Client
	cfg     config.FetchConfig
	limiter *rate.Limiter

	// newBackoff is an indirection for tests; defaults to defaultBackoff.
	newBackoff func() retry.Backoff
}

// NewChartFetcher builds a fetcher from the fetch configuration.
// When cfg.MinInterval > 0 outbound requests are spaced at least that far apart.
func NewChartFetcher(cfg config.FetchConfig) *ChartFetcher {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeaders(map[string]string{
			"Accept":     "application/json",
			"User-Agent": userAgent,
		})

	f := &ChartFetcher{client: client, cfg: cfg}
	if cfg.MinInterval > 0 {
		f.limiter = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	}
	f.newBackoff = f.defaultBackoff
	return f
}

func (f *ChartFetcher) defaultBackoff() retry.Backoff {
	retries := uint64(0)
	if f.cfg.MaxAttempts > 1 {
		retries = uint64(f.cfg.MaxAttempts - 1)
	}
	return retry.WithMaxRetries(retries, retry.NewExponential(f.cfg.BackoffBase))
}

// Fetch returns the decoded payload together with the exact bytes received.
//
// Errors:
//   - *FetchError with Transient=true after exhausting retries.
//   - *FetchError with Transient=false on validation failures (wrapping ErrInvalidResponse).
//   - ctx.Err() if the context is done while waiting.
func (f *ChartFetcher) Fetch(ctx context.Context, symbol string) (*models.RawPriceResponse, error) {
	log := logger.L().With().Str("symbol", symbol).Logger()
	log.Info().Str("range", f.cfg.Range).Str("interval", f.cfg.Interval).Msg("calling price-chart endpoint")

	var (
		out       *models.RawPriceResponse
		attempts  int
		transient bool
	)

	backoff := f.newBackoff()
	observed := retry.BackoffFunc(func() (time.Duration, bool) {
		d, stop := backoff.Next()
		if !stop {
			log.Info().Int("attempt", attempts).Dur("delay", d).Msg("retrying price-chart request")
		}
		return d, stop
	})

	err := retry.Do(ctx, observed, func(ctx context.Context) error {
		attempts++
		res, err := f.attempt(ctx, symbol)
		if err == nil {
			out = res
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var se *statusError
		switch {
		case errors.Is(err, ErrInvalidResponse):
			transient = false
			log.Error().Err(err).Int("attempt", attempts).Msg("data validation failed")
			return err
		case errors.Is(err, ErrRateLimited), errors.As(err, &se), isTransport(err):
			transient = true
			log.Warn().Err(err).Int("attempt", attempts).Msg("price-chart request failed")
			return retry.RetryableError(err)
		default:
			transient = false
			log.Error().Err(err).Int("attempt", attempts).Msg("price-chart request rejected")
			return err
		}
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, err
		}
		if transient {
			log.Error().Err(err).Int("attempts", attempts).Msg("max retries exceeded")
		}
		return nil, &FetchError{Symbol: symbol, Attempts: attempts, Transient: transient, Err: err}
	}

	log.Info().Int("attempts", attempts).Int("bytes", len(out.Body)).Msg("fetched price data")
	return out, nil
}

// attempt performs one request and validates the body.
func (f *ChartFetcher) attempt(ctx context.Context, symbol string) (*models.RawPriceResponse, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	resp, err := f.client.R().
		SetContext(ctx).
		SetPathParam("symbol", symbol).
		SetQueryParams(map[string]string{
			"range":    f.cfg.Range,
			"interval": f.cfg.Interval,
		}).
		Get("/{symbol}")
	if err != nil {
		return nil, &transportError{err: err}
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case code >= 500:
		return nil, &statusError{Code: code}
	case code < 200 || code > 299:
		return nil, fmt.Errorf("unexpected status %d", code)
	}

	body := resp.Body()
	var chart models.ChartResponse
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidResponse, err)
	}
	if chart.Chart == nil {
		return nil, fmt.Errorf("%w: missing chart section", ErrInvalidResponse)
	}
	if chart.Chart.HasError() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidResponse, string(chart.Chart.Error))
	}

	return &models.RawPriceResponse{Symbol: symbol, Body: body, Chart: chart}, nil
}

// transportError wraps failures below HTTP: dial, TLS, timeouts, resets.
type transportError struct {
	err error
}

func (e *transportError) Error() string { return "transport: " + e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

func isTransport(err error) bool {
	var te *transportError
	return errors.As(err, &te)
}
