package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrAllProvidersUnavailable indicates every provider in the preference
// list was attempted and failed. Check with errors.Is(); the concrete
// *ExhaustedError carries the last error per attempted provider.
var ErrAllProvidersUnavailable = errors.New("all providers unavailable")

// ProviderError is the last error recorded for one attempted provider.
type ProviderError struct {
	Provider string
	Err      error
}

// ExhaustedError is returned when the provider preference list is
// exhausted. It satisfies errors.Is(err, ErrAllProvidersUnavailable).
type ExhaustedError struct {
	Attempts []ProviderError
}

func (e *ExhaustedError) Error() string {
	var b strings.Builder
	b.WriteString("all providers unavailable")
	for _, a := range e.Attempts {
		fmt.Fprintf(&b, "; %s: %v", a.Provider, a.Err)
	}
	return b.String()
}

// Is reports whether target is ErrAllProvidersUnavailable.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrAllProvidersUnavailable
}

// StatusError carries an HTTP-level failure from a provider API.
type StatusError struct {
	Provider string
	Status   int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.Status, e.Body)
}

// Transient reports whether an error should trigger a retry against the
// same provider. Timeouts, rate limits and 5xx-class responses are
// transient; invalid requests and auth failures are not.
func Transient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status == 429 || statusErr.Status >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// Fall back to message inspection for wrapped transport errors.
	return containsAny(err.Error(),
		"rate limit", "quota exceeded", "429",
		"connection reset", "connection refused", "timeout", "temporary",
		"unavailable")
}

// containsAny checks if s contains any of the substrings (case-insensitive).
func containsAny(s string, substrs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}
