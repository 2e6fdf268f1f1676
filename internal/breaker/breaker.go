// Package breaker implements a per-source circuit breaker. It stops the
// orchestrator from hammering an upstream that is observably down and probes
// for recovery after a cooldown, independent of rate limiting.
package breaker

import (
	"sync"
	"time"
)

// State is the breaker's position in the CLOSED → OPEN → HALF_OPEN cycle.
type State string

const (
	// StateClosed allows all requests; consecutive failures are counted.
	StateClosed State = "closed"
	// StateOpen rejects requests until the recovery timeout elapses.
	StateOpen State = "open"
	// StateHalfOpen lets probes through; successes close, any failure reopens.
	StateHalfOpen State = "half_open"
)

// Config tunes a breaker's thresholds. Zero values fall back to defaults.
type Config struct {
	FailureThreshold int           // consecutive failures before opening (default 3)
	RecoveryTimeout  time.Duration // how long to stay open before probing (default 300s)
	SuccessThreshold int           // consecutive half-open successes before closing (default 2)
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 3,
		RecoveryTimeout:  300 * time.Second,
		SuccessThreshold: 2,
	}
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold < 1 {
		c.FailureThreshold = 3
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = 300 * time.Second
	}
	if c.SuccessThreshold < 1 {
		c.SuccessThreshold = 2
	}
	return c
}

// Breaker is a single source's failure/success state machine.
// All mutations go through one mutex; one instance serves every concurrent
// caller of its source.
type Breaker struct {
	name string
	cfg  Config

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	openedAt    time.Time
	lastFailure time.Time

	now func() time.Time // overridable in tests
}

// New creates a breaker for the named source, starting CLOSED.
func New(name string, cfg Config) *Breaker {
	return &Breaker{
		name:  name,
		cfg:   cfg.withDefaults(),
		state: StateClosed,
		now:   time.Now,
	}
}

// Name returns the source name this breaker guards.
func (b *Breaker) Name() string {
	return b.name
}

// Allow reports whether a request may proceed. While OPEN it lazily
// transitions to HALF_OPEN once the recovery timeout has elapsed, letting
// the current caller through as the probe. Concurrent probes are not
// serialized.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refresh()
	return b.state != StateOpen
}

// State returns the current state, applying the same lazy OPEN → HALF_OPEN
// transition as Allow.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refresh()
	return b.state
}

// refresh applies the lazy OPEN → HALF_OPEN transition. Caller holds the lock.
func (b *Breaker) refresh() {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.RecoveryTimeout {
		b.state = StateHalfOpen
		b.successes = 0
	}
}

// RecordSuccess notes a successful upstream call. In CLOSED it clears the
// failure streak; in HALF_OPEN it counts toward closing. A success landing
// while OPEN (a call that was already in flight when the breaker tripped)
// is ignored.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refresh()
	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.state = StateClosed
			b.failures = 0
			b.successes = 0
		}
	}
}

// RecordFailure notes a failed upstream call. In CLOSED it counts toward
// the failure threshold; in HALF_OPEN it reopens immediately and restarts
// the recovery window.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refresh()
	b.lastFailure = b.now()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.open()
		}
	case StateHalfOpen:
		b.open()
	}
}

// open transitions to OPEN and stamps the window start. Caller holds the lock.
func (b *Breaker) open() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.successes = 0
}

// Reset is an administrative override back to CLOSED with zeroed counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failures = 0
	b.successes = 0
	b.openedAt = time.Time{}
}

// Snapshot is a point-in-time view of a breaker for diagnostics.
type Snapshot struct {
	Name        string    `json:"name"`
	State       State     `json:"state"`
	Failures    int       `json:"consecutive_failures"`
	Successes   int       `json:"half_open_successes,omitempty"`
	LastFailure time.Time `json:"last_failure,omitempty"`
	OpenedAt    time.Time `json:"opened_at,omitempty"`
}

// Stats returns the breaker's current state after lazy transition bookkeeping.
func (b *Breaker) Stats() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refresh()
	return Snapshot{
		Name:        b.name,
		State:       b.state,
		Failures:    b.failures,
		Successes:   b.successes,
		LastFailure: b.lastFailure,
		OpenedAt:    b.openedAt,
	}
}
