package relay

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ErrBackendUnavailable reports that the language-model backend itself was
// unreachable. Fatal for the turn: callers surface a generic apology, never
// a silent default (a successful-but-unparseable response is not this error).
type ErrBackendUnavailable struct {
	Backend string
	Err     error
}

func (e *ErrBackendUnavailable) Error() string {
	return fmt.Sprintf("backend %s unavailable: %v", e.Backend, e.Err)
}

func (e *ErrBackendUnavailable) Unwrap() error { return e.Err }

// ErrNotFound reports a dispatch against an unregistered provider name.
type ErrNotFound struct {
	Provider string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("provider %q not registered", e.Provider)
}

// ErrProviderInvocation wraps any failure raised by a provider during
// invocation. Caught per-provider and reported inline; never allowed to
// crash the turn.
type ErrProviderInvocation struct {
	Provider string
	Message  string
}

func (e *ErrProviderInvocation) Error() string {
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Message)
}

// ErrStreamTimeout reports that no chunk arrived within the per-chunk
// watchdog window. Not fatal: the aggregator finalizes with partial text.
type ErrStreamTimeout struct {
	Wait time.Duration
}

func (e *ErrStreamTimeout) Error() string {
	return fmt.Sprintf("stream stalled: no chunk within %s", e.Wait)
}

// ErrHTTP is a transport-level backend error carrying the HTTP status.
// The retry decorator treats 429 and 503 as transient.
type ErrHTTP struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// ParseRetryAfter parses an HTTP Retry-After header value: either delay
// seconds or an HTTP-date. Returns 0 when the value is absent or
// unparseable.
func ParseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
