package analysis

import (
	"errors"
	"fmt"
)

// ErrNotFound signals that no request exists under the given id.
var ErrNotFound = errors.New("analysis request not found")

// ErrQueueFull signals that the bounded job queue is at capacity and the
// submission was rejected rather than blocked.
var ErrQueueFull = errors.New("analysis queue is full")

// ErrAlreadyTerminal signals a second terminal transition for the same
// request. The worker closure is the only writer, so hitting this is a
// programming error, not a recoverable condition.
var ErrAlreadyTerminal = errors.New("analysis request already terminal")

// ValidationError rejects a malformed submission synchronously; no job is
// created when Submit returns one.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// FetchErrorKind classifies per-URL fetch failures.
type FetchErrorKind string

// Fetch failure kinds surfaced in warnings.
const (
	FetchTimeout          FetchErrorKind = "timeout"
	FetchConnectionFailed FetchErrorKind = "connection_failed"
	FetchHTTPStatus       FetchErrorKind = "http_status"
)

// FetchError describes a failed fetch for one URL. It is captured as a
// warning on the extraction result and is never fatal to the whole job on
// its own.
type FetchError struct {
	Kind       FetchErrorKind
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == FetchHTTPStatus {
		return fmt.Sprintf("fetch %s: http status %d", e.URL, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
