package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClock struct {
	t time.Time
}

func (c *fixedClock) Now() time.Time { return c.t }

func (c *fixedClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(t *testing.T) (*Breaker, *fixedClock) {
	t.Helper()
	clock := &fixedClock{t: time.Date(2024, time.June, 3, 10, 0, 0, 0, time.UTC)}
	b := New("yahoo", Config{
		FailureThreshold: 3,
		RecoveryTimeout:  300 * time.Second,
		SuccessThreshold: 2,
	})
	b.now = clock.Now
	return b, clock
}

func TestBreaker_StartsClosed(t *testing.T) {
	b, _ := newTestBreaker(t)

	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
}

func TestBreaker_OpensAtFailureThreshold(t *testing.T) {
	b, _ := newTestBreaker(t)

	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, StateClosed, b.State(), "below threshold stays closed")
	assert.True(t, b.Allow())

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow())
}

func TestBreaker_SuccessResetsFailureStreak(t *testing.T) {
	b, _ := newTestBreaker(t)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()

	// The streak restarted, so two more failures do not open
	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, StateClosed, b.State())

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_LazyHalfOpenAfterRecoveryTimeout(t *testing.T) {
	b, clock := newTestBreaker(t)

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	require.Equal(t, StateOpen, b.State())

	clock.Advance(299 * time.Second)
	assert.False(t, b.Allow(), "still open just before the timeout")

	clock.Advance(2 * time.Second)
	assert.True(t, b.Allow(), "probe allowed after the timeout")
	assert.Equal(t, StateHalfOpen, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(t)

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	clock.Advance(301 * time.Second)
	require.True(t, b.Allow())
	require.Equal(t, StateHalfOpen, b.State())

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow())

	// The recovery window restarted at the half-open failure
	clock.Advance(299 * time.Second)
	assert.False(t, b.Allow())
	clock.Advance(2 * time.Second)
	assert.True(t, b.Allow())
}

func TestBreaker_HalfOpenClosesAfterSuccessThreshold(t *testing.T) {
	b, clock := newTestBreaker(t)

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	clock.Advance(301 * time.Second)
	require.True(t, b.Allow())

	b.RecordSuccess()
	assert.Equal(t, StateHalfOpen, b.State(), "one success is not enough")

	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.State())

	stats := b.Stats()
	assert.Equal(t, 0, stats.Failures)
	assert.Equal(t, 0, stats.Successes)
}

func TestBreaker_Reset(t *testing.T) {
	b, _ := newTestBreaker(t)

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	require.Equal(t, StateOpen, b.State())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())

	stats := b.Stats()
	assert.Equal(t, 0, stats.Failures)
	assert.Equal(t, 0, stats.Successes)
}

func TestBreaker_SuccessWhileOpenIsIgnored(t *testing.T) {
	b, _ := newTestBreaker(t)

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	require.Equal(t, StateOpen, b.State())

	// A call already in flight when the breaker tripped reports back
	b.RecordSuccess()
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_DefaultsApplied(t *testing.T) {
	b := New("stooq", Config{})

	assert.Equal(t, 3, b.cfg.FailureThreshold)
	assert.Equal(t, 300*time.Second, b.cfg.RecoveryTimeout)
	assert.Equal(t, 2, b.cfg.SuccessThreshold)
}

func TestRegistry_SharedInstancePerName(t *testing.T) {
	reg := NewRegistry(DefaultConfig())

	a := reg.Get("yahoo")
	b := reg.Get("yahoo")
	c := reg.Get("finnhub")

	assert.Same(t, a, b, "same name must return the same breaker")
	assert.NotSame(t, a, c)

	a.RecordFailure()
	assert.Equal(t, 1, b.Stats().Failures, "failure recorded through one handle is visible through the other")
}

func TestRegistry_Snapshots(t *testing.T) {
	reg := NewRegistry(DefaultConfig())

	reg.Get("yahoo").RecordFailure()
	reg.Get("alphavantage")

	snaps := reg.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, 1, snaps["yahoo"].Failures)
	assert.Equal(t, StateClosed, snaps["alphavantage"].State)
}

func TestRegistry_Reset(t *testing.T) {
	reg := NewRegistry(DefaultConfig())

	b := reg.Get("yahoo")
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	require.Equal(t, StateOpen, b.State())

	assert.True(t, reg.Reset("yahoo"))
	assert.Equal(t, StateClosed, b.State())

	assert.False(t, reg.Reset("never-registered"))
}
