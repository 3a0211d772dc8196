package shop

import (
	"errors"
	"fmt"
)

// ErrGone marks a page that no longer exists (404/410). Adapters translate it
// into a nil offer rather than a failure.
var ErrGone = errors.New("shop: resource gone")

// FetchError is a transient transport failure: network error, timeout, or an
// HTTP status that signals the shop rather than the adapter is at fault.
// The orchestrator retries these with backoff.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: http status %d", e.URL, e.Status)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError is a violation of the adapter's markup assumptions. It is
// permanent for the current fetch attempt and never retried.
type ParseError struct {
	URL    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s", e.URL, e.Reason)
}

// IsFetchError reports whether err is (or wraps) a transient FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

// IsParseError reports whether err is (or wraps) a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
