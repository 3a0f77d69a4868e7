package crawler

import (
	"errors"
	"fmt"
	"net/http"
)

// FetchErrorKind classifies a failed page fetch.
type FetchErrorKind string

// Fetch failure classes.
const (
	FetchTimeout    FetchErrorKind = "timeout"
	FetchConnection FetchErrorKind = "connection"
	FetchHTTPStatus FetchErrorKind = "http_status"
	FetchBlocked    FetchErrorKind = "blocked"
)

// FetchError is the typed failure returned by a Fetcher. A fetch never
// surfaces an unclassified error.
type FetchError struct {
	Kind       FetchErrorKind
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case FetchHTTPStatus:
		return fmt.Sprintf("fetch %s: http status %d", e.URL, e.StatusCode)
	case FetchBlocked:
		return fmt.Sprintf("fetch %s: blocked by anti-bot challenge", e.URL)
	default:
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// Retryable reports whether the failure is transient. Timeouts, connection
// failures, blocks, 429 and 5xx responses are retried; other 4xx are not.
func (e *FetchError) Retryable() bool {
	switch e.Kind {
	case FetchTimeout, FetchConnection, FetchBlocked:
		return true
	case FetchHTTPStatus:
		return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
	default:
		return false
	}
}

// ParseError reports that a detail page matched none of its selectors.
// List pages never produce it: zero matching containers is an empty result.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("parse %s: no selectors matched", e.URL)
}

func (e *ParseError) Unwrap() error { return e.Err }

// LookupErrorKind classifies an enrichment lookup failure.
type LookupErrorKind string

// Lookup failure classes.
const (
	LookupRateLimited LookupErrorKind = "rate_limited"
	LookupAuthError   LookupErrorKind = "auth_error"
	LookupNotFound    LookupErrorKind = "not_found"
	LookupUnavailable LookupErrorKind = "unavailable"
)

// LookupError is the typed failure returned by the enrichment client.
type LookupError struct {
	Kind LookupErrorKind
	Err  error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("lookup: %s: %v", e.Kind, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// Retryable reports whether the lookup may be reattempted automatically.
// Bad or exhausted credentials are fatal and must never be auto-retried.
func (e *LookupError) Retryable() bool {
	return e.Kind == LookupRateLimited || e.Kind == LookupUnavailable
}

// Store sentinels.
var (
	// ErrNotFound is returned by stores when an entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyClaimed is returned when an atomic claim finds the entity
	// already running or terminal. Callers treat it as a no-op.
	ErrAlreadyClaimed = errors.New("already claimed")
	// ErrLookupInFlight is returned when a record already has a pending
	// enrichment attempt.
	ErrLookupInFlight = errors.New("lookup already in flight")
)

// Retryable classifies an arbitrary unit error for the retry controller.
func Retryable(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Retryable()
	}
	var le *LookupError
	if errors.As(err, &le) {
		return le.Retryable()
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		// A broken detail page rarely fixes itself; do not retry.
		return false
	}
	return false
}
