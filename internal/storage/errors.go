package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"

	pq "github.com/lib/pq"
)

// Kind classifies a LoadError so callers can decide who needs to act on it.
type Kind int

const (
	// KindUnexpected is anything that could not be classified.
	KindUnexpected Kind = iota
	// KindConnectivity covers lost connections, refused dials and timeouts. Usually transient.
	KindConnectivity
	// KindIntegrity covers constraint and data-shape violations. Indicates an upstream bug.
	KindIntegrity
)

func (k Kind) String() string {
	switch k {
	case KindConnectivity:
		return "connectivity"
	case KindIntegrity:
		return "integrity"
	default:
		return "unexpected"
	}
}

// LoadError is returned by every PricesRepository write.
type LoadError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// classify wraps err in a LoadError. nil stays nil; an existing LoadError is returned as is.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var le *LoadError
	if errors.As(err, &le) {
		return le
	}
	return &LoadError{Kind: kindOf(err), Op: op, Err: err}
}

func kindOf(err error) Kind {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "57":
			return KindConnectivity
		case "22", "23":
			return KindIntegrity
		}
		return KindUnexpected
	}

	var netErr net.Error
	switch {
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.As(err, &netErr):
		return KindConnectivity
	}
	return KindUnexpected
}
