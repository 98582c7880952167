package ingestion

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited marks an HTTP 429 from the price-chart endpoint. Retryable.
	ErrRateLimited = errors.New("rate limit exceeded (429)")
	// ErrInvalidResponse marks a 200 response without a usable chart section. Not retried.
	ErrInvalidResponse = errors.New("invalid response from price-chart endpoint")

	// ErrMalformedPayload marks a payload missing the expected result/quote structure.
	ErrMalformedPayload = errors.New("malformed chart payload")
	// ErrLengthMismatch marks OHLCV arrays that are not index-aligned with the timestamps.
	ErrLengthMismatch = errors.New("quote arrays do not match timestamp count")
	// ErrOutOfOrder marks a timestamp sequence that goes backwards.
	ErrOutOfOrder = errors.New("timestamps are not in chronological order")
)

// FetchError is returned by Fetcher.Fetch when no payload could be obtained.
//
// Transient is true when the last failure was a network, 5xx or 429 condition
// and retries were exhausted; false for content/validation failures that are
// never retried.
type FetchError struct {
	Symbol    string
	Attempts  int
	Transient bool
	Err       error
}

func (e *FetchError) Error() string {
	kind := "validation"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("fetch %s failed after %d attempt(s) (%s): %v", e.Symbol, e.Attempts, kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError is returned by Parse for malformed payloads. Always fatal for the run.
type ParseError struct {
	Symbol string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Symbol, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// statusError carries a non-2xx HTTP status that is worth retrying.
type statusError struct {
	Code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}
