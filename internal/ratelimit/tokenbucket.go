// Package ratelimit bounds outbound call frequency per upstream source.
// Each source gets its own token bucket sized to the source's published
// free-tier quota, with an optional daily ceiling on top of the per-minute
// rate. State is in-memory only; a restart forgets spent quota, which is
// acceptable because the bucket throttles a live process, not the account.
package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket is a non-blocking token bucket with lazy refill and an
// optional daily call ceiling. Safe for concurrent use.
type TokenBucket struct {
	maxTokens      int
	refillInterval time.Duration
	dailyLimit     int // 0 = no daily ceiling

	mu           sync.Mutex
	tokens       int
	lastRefill   time.Time
	dailyCount   int
	dailyResetAt time.Time

	now func() time.Time // overridable in tests
}

// New creates a bucket allowing perMinute calls per minute and, when
// perDay > 0, at most perDay calls per rolling 24h window. The bucket
// starts full to allow an initial burst.
func New(perMinute, perDay int) *TokenBucket {
	if perMinute < 1 {
		perMinute = 1
	}
	now := time.Now()
	return &TokenBucket{
		maxTokens:      perMinute,
		refillInterval: time.Minute / time.Duration(perMinute),
		dailyLimit:     perDay,
		tokens:         perMinute,
		lastRefill:     now,
		dailyResetAt:   now,
		now:            time.Now,
	}
}

// Acquire attempts to spend one token. It refills lazily from elapsed
// wall-clock time, then returns false without spending anything if the
// daily ceiling is exhausted or no whole token is available.
func (tb *TokenBucket) Acquire() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	tb.refill(now)
	tb.resetDaily(now)

	if tb.dailyLimit > 0 && tb.dailyCount >= tb.dailyLimit {
		return false
	}
	if tb.tokens < 1 {
		return false
	}

	tb.tokens--
	tb.dailyCount++
	return true
}

// WaitTime reports how long until the next call could succeed: zero when a
// token is available now, the time to the next refill tick otherwise. When
// the daily ceiling is spent the daily reset dominates the advisory.
// Callers are not required to block on it.
func (tb *TokenBucket) WaitTime() time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	tb.refill(now)
	tb.resetDaily(now)

	if tb.dailyLimit > 0 && tb.dailyCount >= tb.dailyLimit {
		return tb.dailyResetAt.Add(24 * time.Hour).Sub(now)
	}
	if tb.tokens >= 1 {
		return 0
	}
	return tb.lastRefill.Add(tb.refillInterval).Sub(now)
}

// refill adds floor(elapsed/interval) tokens, capped at maxTokens.
// lastRefill advances by the granted whole intervals so the fractional
// remainder keeps counting toward the next token.
func (tb *TokenBucket) refill(now time.Time) {
	elapsed := now.Sub(tb.lastRefill)
	if elapsed < tb.refillInterval {
		return
	}

	granted := int(elapsed / tb.refillInterval)
	tb.tokens += granted
	if tb.tokens >= tb.maxTokens {
		tb.tokens = tb.maxTokens
		tb.lastRefill = now
		return
	}
	tb.lastRefill = tb.lastRefill.Add(time.Duration(granted) * tb.refillInterval)
}

// resetDaily zeroes the daily counter once at least 24h has elapsed since
// the previous reset.
func (tb *TokenBucket) resetDaily(now time.Time) {
	if now.Sub(tb.dailyResetAt) >= 24*time.Hour {
		tb.dailyCount = 0
		tb.dailyResetAt = now
	}
}

// Snapshot is a point-in-time view of a bucket for diagnostics.
type Snapshot struct {
	Tokens     int           `json:"tokens"`
	MaxTokens  int           `json:"max_tokens"`
	DailyUsed  int           `json:"daily_used"`
	DailyLimit int           `json:"daily_limit,omitempty"`
	Wait       time.Duration `json:"wait_ns"`
}

// Stats returns the bucket's current state after lazy refill bookkeeping.
func (tb *TokenBucket) Stats() Snapshot {
	wait := tb.WaitTime()

	tb.mu.Lock()
	defer tb.mu.Unlock()
	return Snapshot{
		Tokens:     tb.tokens,
		MaxTokens:  tb.maxTokens,
		DailyUsed:  tb.dailyCount,
		DailyLimit: tb.dailyLimit,
		Wait:       wait,
	}
}
