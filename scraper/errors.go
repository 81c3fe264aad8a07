package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/PavelSimon/EDC-data/parser"
)

// ErrNoTable reports a response without a data table.
var ErrNoTable = errors.New("scraper: no table in response")

// ErrorKind is the metric and summary label of a failure.
type ErrorKind string

const (
	KindNone         ErrorKind = "unknown"
	KindTimeout      ErrorKind = "timeout"
	KindConnection   ErrorKind = "connection"
	KindForbidden    ErrorKind = "forbidden"
	KindNotFound     ErrorKind = "not_found"
	KindRateLimited  ErrorKind = "rate_limited"
	KindHTTPStatus   ErrorKind = "http_status"
	KindNoTable      ErrorKind = "no_table"
	KindMalformedRow ErrorKind = "malformed_row"
	KindOther        ErrorKind = "other"
)

// FetchError is a failed request to the publication page. StatusCode is zero
// when no response was received.
type FetchError struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode != 0:
		return fmt.Sprintf("%s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: status %d", e.Kind, e.StatusCode)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// KindOf labels err. Errors not produced by the scraper or the parser are
// KindOther.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Kind
	}
	if errors.Is(err, ErrNoTable) {
		return KindNoTable
	}
	var cellErr *parser.CellError
	if errors.As(err, &cellErr) {
		return KindMalformedRow
	}
	return KindOther
}

// classifyError turns the outcome of one request into a *FetchError. A
// 2xx status (or no status) with no transport error yields nil.
func classifyError(err error, statusCode int) error {
	ok := statusCode == 0 || statusCode/100 == 2
	if err == nil && ok {
		return nil
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return &FetchError{Kind: KindTimeout, StatusCode: statusCode, Err: err}
	case isOpError(err):
		return &FetchError{Kind: KindConnection, StatusCode: statusCode, Err: err}
	case ok:
		return err
	}

	kind := KindHTTPStatus
	switch statusCode {
	case http.StatusForbidden:
		kind = KindForbidden
	case http.StatusNotFound:
		kind = KindNotFound
	case http.StatusTooManyRequests:
		kind = KindRateLimited
	}
	return &FetchError{Kind: kind, StatusCode: statusCode, Err: err}
}

func isOpError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
