package marketdata

import (
	"time"

	"github.com/aristath/datafeed/internal/breaker"
	"github.com/aristath/datafeed/internal/ratelimit"
)

// Diagnostics is a point-in-time snapshot of source health: breaker states,
// remaining rate-limit quota, the last source that answered each request,
// and cache entry counts. Served by the status endpoint and the fetch CLI.
type Diagnostics struct {
	GeneratedAt  time.Time                     `json:"generated_at"`
	Breakers     map[string]breaker.Snapshot   `json:"breakers"`
	Limiters     map[string]ratelimit.Snapshot `json:"limiters"`
	LastSuccess  map[string]string             `json:"last_success"`
	CacheEntries map[string]int64              `json:"cache_entries,omitempty"`
}

// Diagnostics reports current source health without touching any source.
func (o *Orchestrator) Diagnostics() Diagnostics {
	diag := Diagnostics{
		GeneratedAt: o.now(),
		Breakers:    o.breakers.Snapshots(),
		Limiters:    make(map[string]ratelimit.Snapshot, len(o.limiters)),
		LastSuccess: make(map[string]string),
	}
	for name, tb := range o.limiters {
		diag.Limiters[name] = tb.Stats()
	}
	o.mu.Lock()
	for key, source := range o.lastSuccess {
		diag.LastSuccess[key] = source
	}
	o.mu.Unlock()

	// Counts are best-effort; a cache read failure must not break the
	// status endpoint.
	if counts, err := o.cache.EntryCounts(); err == nil {
		diag.CacheEntries = counts
	}
	return diag
}
