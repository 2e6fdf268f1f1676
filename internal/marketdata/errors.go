package marketdata

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// The error taxonomy every adapter classifies into. Each upstream call
// either returns a payload or exactly one of these; the orchestrator eats
// per-source errors while walking a chain and only ever surfaces
// AllSourcesExhaustedError to callers.

// RateLimitError signals admission denial: the local token bucket is dry,
// the daily ceiling is spent, or the upstream returned a throttle response.
type RateLimitError struct {
	Source     string
	RetryAfter time.Duration // advisory, zero when unknown
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: rate limit exceeded, retry in %s", e.Source, e.RetryAfter.Round(time.Second))
	}
	return fmt.Sprintf("%s: rate limit exceeded", e.Source)
}

// AuthenticationError signals missing or rejected credentials.
type AuthenticationError struct {
	Source string
	Reason string
}

func (e *AuthenticationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: authentication failed: %s", e.Source, e.Reason)
	}
	return fmt.Sprintf("%s: authentication failed", e.Source)
}

// DataNotFoundError signals the source answered but does not know the
// symbol (or returned an empty payload). Not a transient fault.
type DataNotFoundError struct {
	Source string
	Symbol string
}

func (e *DataNotFoundError) Error() string {
	return fmt.Sprintf("%s: no data found for symbol %s", e.Source, e.Symbol)
}

// InsufficientDataError signals a payload that exists but is below the
// minimum usable size.
type InsufficientDataError struct {
	Source string
	Symbol string
	Got    int
	Min    int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: insufficient data for %s: got %d rows, need %d", e.Source, e.Symbol, e.Got, e.Min)
}

// ProviderUnavailableError signals a transport fault, timeout, 5xx, an open
// circuit breaker, or any unclassified upstream failure.
type ProviderUnavailableError struct {
	Source string
	Reason string
	Err    error // underlying cause, may be nil
}

func (e *ProviderUnavailableError) Error() string {
	switch {
	case e.Reason != "" && e.Err != nil:
		return fmt.Sprintf("%s: unavailable: %s: %v", e.Source, e.Reason, e.Err)
	case e.Reason != "":
		return fmt.Sprintf("%s: unavailable: %s", e.Source, e.Reason)
	case e.Err != nil:
		return fmt.Sprintf("%s: unavailable: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("%s: unavailable", e.Source)
}

func (e *ProviderUnavailableError) Unwrap() error {
	return e.Err
}

// SourceFailure pairs a source name with the reason it failed, preserving
// chain order inside the aggregate error.
type SourceFailure struct {
	Source string
	Err    error
}

// AllSourcesExhaustedError is the only error callers of the orchestrator
// see: every chain member failed and no cache entry (fresh or stale) could
// answer. It carries each source's individual reason for diagnostics.
type AllSourcesExhaustedError struct {
	Capability Capability
	Symbol     string
	Failures   []SourceFailure
}

func (e *AllSourcesExhaustedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "all sources exhausted for %s %s", e.Capability, e.Symbol)
	for i, f := range e.Failures {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%v", f.Err)
	}
	return b.String()
}

// breakerFailure reports whether an upstream call error counts against the
// source's circuit health. NotFound, InsufficientData and Authentication
// mean the source answered; only throttles, transport faults and
// unclassified errors indicate the source itself is unwell.
func breakerFailure(err error) bool {
	var (
		notFound     *DataNotFoundError
		insufficient *InsufficientDataError
		auth         *AuthenticationError
	)
	if errors.As(err, &notFound) || errors.As(err, &insufficient) || errors.As(err, &auth) {
		return false
	}
	return true
}
