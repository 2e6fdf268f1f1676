// Package marketdata turns several flaky, rate-limited, differently-shaped
// upstream sources into one reliable, normalized, cached data access layer.
// The orchestrator is the single entry point per capability; rate limiting,
// circuit breaking, fallback chains, the fundamentals field merge and the
// stale-cache last resort all live behind it.
package marketdata

import (
	"context"
	"time"

	"github.com/aristath/datafeed/internal/domain"
)

// Capability names a data operation a source can serve.
type Capability string

const (
	CapPriceHistory Capability = "price_history"
	CapIntraday     Capability = "intraday"
	CapFundamentals Capability = "fundamentals"
	CapQuote        Capability = "quote"
	CapSecurityInfo Capability = "security_info"
	CapEarnings     Capability = "earnings"
)

// Source is the base interface every upstream adapter implements.
// Adapters are thin translation shims: they speak their upstream's wire
// format, map fields into the canonical schema, and classify failures into
// the shared taxonomy. Admission control (breaker, limiter) is the
// orchestrator's job, not theirs.
type Source interface {
	// Name is the stable identifier used for chains, breakers, limiters
	// and provenance tags.
	Name() string
	// Available reports whether the adapter can be used at all, e.g.
	// whether its credentials are configured. Unavailable sources are
	// omitted from active chains at registration.
	Available() bool
}

// PriceHistorySource serves daily OHLCV series.
type PriceHistorySource interface {
	Source
	PriceHistory(ctx context.Context, symbol string, period domain.Period) (*domain.PriceHistory, error)
}

// IntradaySource serves intraday OHLCV series.
type IntradaySource interface {
	Source
	Intraday(ctx context.Context, symbol, interval string, period domain.Period) (*domain.PriceHistory, error)
}

// FundamentalsSource serves sparse canonical fundamentals snapshots.
type FundamentalsSource interface {
	Source
	Fundamentals(ctx context.Context, symbol string) (*domain.Fundamentals, error)
}

// QuoteSource serves point-in-time price snapshots.
type QuoteSource interface {
	Source
	Quote(ctx context.Context, symbol string) (*domain.Quote, error)
}

// SecurityInfoSource serves descriptive symbol metadata.
type SecurityInfoSource interface {
	Source
	SecurityInfo(ctx context.Context, symbol string) (*domain.SecurityInfo, error)
}

// EarningsSource serves the next scheduled earnings event. A nil event with
// a nil error means the source answered and nothing is scheduled.
type EarningsSource interface {
	Source
	NextEarnings(ctx context.Context, symbol string) (*domain.EarningsEvent, error)
}

// CallTimeout bounds a single upstream HTTP round trip. There is no
// overarching deadline across a fallback chain; worst case latency is the
// sum of every chain member's timeout before the stale-cache fallback.
const CallTimeout = 15 * time.Second
