package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/datafeed/internal/breaker"
	"github.com/aristath/datafeed/internal/cache"
	"github.com/aristath/datafeed/internal/domain"
	"github.com/aristath/datafeed/internal/ratelimit"
	"github.com/aristath/datafeed/internal/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Provenance tags for responses served from storage rather than a live
// source.
const (
	SourceCache      = "cache"
	SourceStaleCache = "stale_cache"
)

// nativeRetentionYears is how far back cached daily windows are expected to
// reach. Range requests starting earlier bypass the cache entirely so a
// cached 1y or 2y row cannot shadow a deep-history fetch.
const nativeRetentionYears = 2

// Orchestrator routes data requests through prioritized source chains with
// cache-first reads, per-source circuit breaking and rate limiting, and
// stale-cache fallback when every live source fails.
//
// Breakers and limiters are shared singletons keyed by source name, so a
// source tripped while serving one capability stays tripped for all of
// them. Sources without a limiter entry are unthrottled.
type Orchestrator struct {
	registry *Registry
	cache    *cache.Repository
	breakers *breaker.Registry
	limiters map[string]*ratelimit.TokenBucket
	log      zerolog.Logger
	now      func() time.Time

	mu          sync.Mutex
	lastSuccess map[string]string // "capability:symbol" -> source name
}

// NewOrchestrator wires the source registry to its shared cache, breaker
// and limiter state.
func NewOrchestrator(
	registry *Registry,
	repo *cache.Repository,
	breakers *breaker.Registry,
	limiters map[string]*ratelimit.TokenBucket,
	log zerolog.Logger,
) *Orchestrator {
	if limiters == nil {
		limiters = make(map[string]*ratelimit.TokenBucket)
	}
	return &Orchestrator{
		registry:    registry,
		cache:       repo,
		breakers:    breakers,
		limiters:    limiters,
		log:         log.With().Str("component", "orchestrator").Logger(),
		now:         time.Now,
		lastSuccess: make(map[string]string),
	}
}

// preflight runs the per-call guard sequence: adapter availability, then
// circuit breaker, then rate limiter. An unavailable adapter never touches
// its breaker or limiter, and a breaker denial never spends a token.
func (o *Orchestrator) preflight(src Source) error {
	name := src.Name()
	if !src.Available() {
		return &AuthenticationError{Source: name, Reason: "not configured"}
	}
	if !o.breakers.Get(name).Allow() {
		return &ProviderUnavailableError{Source: name, Reason: "circuit breaker open"}
	}
	if tb, ok := o.limiters[name]; ok && !tb.Acquire() {
		return &RateLimitError{Source: name, RetryAfter: tb.WaitTime()}
	}
	return nil
}

// settle reports the outcome of an actual upstream call to the source's
// breaker. Preflight denials never reach here.
func (o *Orchestrator) settle(name string, err error) {
	if err == nil {
		o.breakers.Get(name).RecordSuccess()
		return
	}
	if breakerFailure(err) {
		o.breakers.Get(name).RecordFailure()
	}
}

func (o *Orchestrator) noteSuccess(capability Capability, symbol, source string) {
	o.mu.Lock()
	o.lastSuccess[string(capability)+":"+symbol] = source
	o.mu.Unlock()
}

func (o *Orchestrator) requestLogger(capability Capability, symbol string) zerolog.Logger {
	return o.log.With().
		Str("request_id", uuid.NewString()).
		Str("capability", string(capability)).
		Str("symbol", symbol).
		Logger()
}

// GetOHLCV returns the daily price history for symbol over period, serving
// from cache when a fresh entry covers the request. Live fetches are
// persisted before returning. When every source fails, an expired cache
// entry is served tagged "stale_cache" rather than returning nothing.
func (o *Orchestrator) GetOHLCV(ctx context.Context, symbol string, period domain.Period) (*domain.PriceHistory, error) {
	symbol = domain.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if period == "" {
		period = domain.Period1Y
	}
	if !period.Valid() {
		return nil, fmt.Errorf("invalid period %q", period)
	}

	log := o.requestLogger(CapPriceHistory, symbol)
	defer utils.OperationTimer("get_ohlcv", log)()

	cached, err := o.cache.FreshPriceHistory(symbol, period)
	if err != nil {
		log.Warn().Err(err).Msg("Cache read failed, falling through to sources")
	}
	if cached != nil {
		cached.Bars = trimToPeriod(cached.Bars, period, o.now())
		cached.Period = period
		cached.Source = SourceCache
		log.Debug().Int("bars", len(cached.Bars)).Msg("Served price history from cache")
		return cached, nil
	}

	history, failures := o.fetchDailyHistory(ctx, log, symbol, period)
	if history != nil {
		if err := o.cache.StorePriceHistory(history); err != nil {
			log.Warn().Err(err).Msg("Cache write failed")
		}
		return history, nil
	}

	stale, err := o.cache.StalePriceHistory(symbol, period)
	if err != nil {
		log.Warn().Err(err).Msg("Stale cache read failed")
	}
	if stale != nil {
		stale.Bars = trimToPeriod(stale.Bars, period, o.now())
		stale.Period = period
		stale.Source = SourceStaleCache
		log.Warn().Int("sources_failed", len(failures)).Msg("All sources failed, serving stale cache")
		return stale, nil
	}

	return nil, &AllSourcesExhaustedError{Capability: CapPriceHistory, Symbol: symbol, Failures: failures}
}

// fetchDailyHistory walks the price history chain in priority order and
// returns the first usable series, or nil plus every per-source failure.
func (o *Orchestrator) fetchDailyHistory(ctx context.Context, log zerolog.Logger, symbol string, period domain.Period) (*domain.PriceHistory, []SourceFailure) {
	var failures []SourceFailure
	for _, src := range o.registry.PriceHistoryChain() {
		name := src.Name()
		if err := o.preflight(src); err != nil {
			log.Debug().Str("source", name).Err(err).Msg("Source skipped")
			failures = append(failures, SourceFailure{Source: name, Err: err})
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, CallTimeout)
		history, err := src.PriceHistory(callCtx, symbol, period)
		cancel()
		if err == nil && history == nil {
			err = &ProviderUnavailableError{Source: name, Reason: "empty response"}
		}
		o.settle(name, err)
		if err != nil {
			log.Warn().Str("source", name).Err(err).Msg("Price history fetch failed")
			failures = append(failures, SourceFailure{Source: name, Err: err})
			continue
		}

		bars, dropped := cleanBars(history.Bars)
		if dropped > 0 {
			log.Debug().Str("source", name).Int("dropped", dropped).Msg("Dropped malformed bars")
		}
		if minBarsApply(period) && len(bars) < MinimumUsableBars {
			insufficient := &InsufficientDataError{Source: name, Symbol: symbol, Got: len(bars), Min: MinimumUsableBars}
			log.Warn().Str("source", name).Err(insufficient).Msg("Series below usable minimum")
			failures = append(failures, SourceFailure{Source: name, Err: insufficient})
			continue
		}

		history.Symbol = symbol
		history.Period = period
		history.Source = name
		history.Bars = bars
		o.noteSuccess(CapPriceHistory, symbol, name)
		log.Info().Str("source", name).Int("bars", len(bars)).Msg("Price history fetched")
		return history, failures
	}
	return nil, failures
}

// GetIntraday returns intraday bars for symbol at the given interval.
// Intraday series shift constantly during market hours and are never
// cached.
func (o *Orchestrator) GetIntraday(ctx context.Context, symbol, interval string, period domain.Period) (*domain.PriceHistory, error) {
	symbol = domain.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if !domain.ValidIntradayInterval(interval) {
		return nil, fmt.Errorf("invalid intraday interval %q", interval)
	}
	if period == "" {
		period = domain.Period1D
	}
	if !period.Valid() {
		return nil, fmt.Errorf("invalid period %q", period)
	}

	log := o.requestLogger(CapIntraday, symbol).With().Str("interval", interval).Logger()

	var failures []SourceFailure
	for _, src := range o.registry.IntradayChain() {
		name := src.Name()
		if err := o.preflight(src); err != nil {
			log.Debug().Str("source", name).Err(err).Msg("Source skipped")
			failures = append(failures, SourceFailure{Source: name, Err: err})
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, CallTimeout)
		history, err := src.Intraday(callCtx, symbol, interval, period)
		cancel()
		if err == nil && history == nil {
			err = &ProviderUnavailableError{Source: name, Reason: "empty response"}
		}
		o.settle(name, err)
		if err != nil {
			log.Warn().Str("source", name).Err(err).Msg("Intraday fetch failed")
			failures = append(failures, SourceFailure{Source: name, Err: err})
			continue
		}

		bars, dropped := cleanBars(history.Bars)
		if dropped > 0 {
			log.Debug().Str("source", name).Int("dropped", dropped).Msg("Dropped malformed bars")
		}
		history.Symbol = symbol
		history.Period = period
		history.Interval = interval
		history.Source = name
		history.Bars = bars
		o.noteSuccess(CapIntraday, symbol, name)
		log.Info().Str("source", name).Int("bars", len(bars)).Msg("Intraday series fetched")
		return history, nil
	}
	return nil, &AllSourcesExhaustedError{Capability: CapIntraday, Symbol: symbol, Failures: failures}
}

// GetFundamentals assembles a fundamentals snapshot through the configured
// tiers. The primary is asked for everything; the secondary is asked only
// when the primary's known gap fields are still missing; the fallback fills
// whatever remains. Earlier tiers are never overwritten and per-field
// provenance lands in FieldSources.
func (o *Orchestrator) GetFundamentals(ctx context.Context, symbol string) (*domain.Fundamentals, error) {
	symbol = domain.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}

	log := o.requestLogger(CapFundamentals, symbol)
	defer utils.OperationTimer("get_fundamentals", log)()

	cached, err := o.cache.FreshFundamentals(symbol)
	if err != nil {
		log.Warn().Err(err).Msg("Cache read failed, falling through to sources")
	}
	if cached != nil {
		cached.Source = SourceCache
		log.Debug().Int("fields", cached.FilledCount()).Msg("Served fundamentals from cache")
		return cached, nil
	}

	merged := &domain.Fundamentals{Symbol: symbol}
	var failures []SourceFailure
	firstSource := ""
	primaryOK := false

	if tiers := o.registry.Fundamentals(); tiers != nil {
		call := func(src FundamentalsSource) (*domain.Fundamentals, error) {
			if err := o.preflight(src); err != nil {
				return nil, err
			}
			callCtx, cancel := context.WithTimeout(ctx, CallTimeout)
			f, err := src.Fundamentals(callCtx, symbol)
			cancel()
			o.settle(src.Name(), err)
			return f, err
		}

		if primary := tiers.Primary; primary != nil {
			f, err := call(primary)
			if err != nil {
				log.Warn().Str("source", primary.Name()).Err(err).Msg("Primary fundamentals fetch failed")
				failures = append(failures, SourceFailure{Source: primary.Name(), Err: err})
			} else if f != nil {
				filled := fillMissing(merged, f, primary.Name(), nil)
				primaryOK = true
				firstSource = primary.Name()
				log.Debug().Str("source", primary.Name()).Int("fields", filled).Msg("Primary fundamentals merged")
			}
		}

		if secondary := tiers.Secondary; secondary != nil {
			want := missingFields(merged, nil)
			if primaryOK {
				// The primary answered; only its known gap fields justify
				// spending a call on the secondary.
				want = missingFields(merged, tiers.GapFields)
			}
			if len(want) > 0 {
				f, err := call(secondary)
				if err != nil {
					log.Warn().Str("source", secondary.Name()).Err(err).Msg("Secondary fundamentals fetch failed")
					failures = append(failures, SourceFailure{Source: secondary.Name(), Err: err})
				} else if f != nil {
					filled := fillMissing(merged, f, secondary.Name(), want)
					if firstSource == "" {
						firstSource = secondary.Name()
					}
					log.Debug().Str("source", secondary.Name()).Int("fields", filled).Msg("Secondary fundamentals merged")
				}
			}
		}

		if fallback := tiers.Fallback; fallback != nil {
			if want := missingFields(merged, nil); len(want) > 0 {
				f, err := call(fallback)
				if err != nil {
					log.Warn().Str("source", fallback.Name()).Err(err).Msg("Fallback fundamentals fetch failed")
					failures = append(failures, SourceFailure{Source: fallback.Name(), Err: err})
				} else if f != nil {
					filled := fillMissing(merged, f, fallback.Name(), want)
					if firstSource == "" {
						firstSource = fallback.Name()
					}
					log.Debug().Str("source", fallback.Name()).Int("fields", filled).Msg("Fallback fundamentals merged")
				}
			}
		}
	}

	if !merged.IsEmpty() {
		merged.Source = firstSource
		if err := o.cache.StoreFundamentals(merged); err != nil {
			log.Warn().Err(err).Msg("Cache write failed")
		}
		o.noteSuccess(CapFundamentals, symbol, firstSource)
		log.Info().Str("source", firstSource).Int("fields", merged.FilledCount()).Msg("Fundamentals assembled")
		return merged, nil
	}

	stale, err := o.cache.StaleFundamentals(symbol)
	if err != nil {
		log.Warn().Err(err).Msg("Stale cache read failed")
	}
	if stale != nil {
		stale.Source = SourceStaleCache
		log.Warn().Int("sources_failed", len(failures)).Msg("All sources failed, serving stale fundamentals")
		return stale, nil
	}

	return nil, &AllSourcesExhaustedError{Capability: CapFundamentals, Symbol: symbol, Failures: failures}
}

// GetQuote returns the latest quote for symbol. Quotes are not cached.
func (o *Orchestrator) GetQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	symbol = domain.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}

	log := o.requestLogger(CapQuote, symbol)

	var failures []SourceFailure
	for _, src := range o.registry.QuoteChain() {
		name := src.Name()
		if err := o.preflight(src); err != nil {
			log.Debug().Str("source", name).Err(err).Msg("Source skipped")
			failures = append(failures, SourceFailure{Source: name, Err: err})
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, CallTimeout)
		quote, err := src.Quote(callCtx, symbol)
		cancel()
		if err == nil && quote == nil {
			err = &ProviderUnavailableError{Source: name, Reason: "empty response"}
		}
		o.settle(name, err)
		if err != nil {
			log.Warn().Str("source", name).Err(err).Msg("Quote fetch failed")
			failures = append(failures, SourceFailure{Source: name, Err: err})
			continue
		}

		quote.Symbol = symbol
		quote.Source = name
		o.noteSuccess(CapQuote, symbol, name)
		log.Info().Str("source", name).Float64("price", quote.Price).Msg("Quote fetched")
		return quote, nil
	}
	return nil, &AllSourcesExhaustedError{Capability: CapQuote, Symbol: symbol, Failures: failures}
}

// GetSecurityInfo returns company profile data for symbol.
func (o *Orchestrator) GetSecurityInfo(ctx context.Context, symbol string) (*domain.SecurityInfo, error) {
	symbol = domain.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}

	log := o.requestLogger(CapSecurityInfo, symbol)

	var failures []SourceFailure
	for _, src := range o.registry.SecurityInfoChain() {
		name := src.Name()
		if err := o.preflight(src); err != nil {
			log.Debug().Str("source", name).Err(err).Msg("Source skipped")
			failures = append(failures, SourceFailure{Source: name, Err: err})
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, CallTimeout)
		info, err := src.SecurityInfo(callCtx, symbol)
		cancel()
		if err == nil && info == nil {
			err = &ProviderUnavailableError{Source: name, Reason: "empty response"}
		}
		o.settle(name, err)
		if err != nil {
			log.Warn().Str("source", name).Err(err).Msg("Security info fetch failed")
			failures = append(failures, SourceFailure{Source: name, Err: err})
			continue
		}

		info.Symbol = symbol
		info.Source = name
		o.noteSuccess(CapSecurityInfo, symbol, name)
		log.Info().Str("source", name).Msg("Security info fetched")
		return info, nil
	}
	return nil, &AllSourcesExhaustedError{Capability: CapSecurityInfo, Symbol: symbol, Failures: failures}
}

// GetNextEarnings returns the next scheduled earnings event for symbol. A
// nil event with a nil error means a source answered authoritatively that
// nothing is scheduled; the chain walk stops there.
func (o *Orchestrator) GetNextEarnings(ctx context.Context, symbol string) (*domain.EarningsEvent, error) {
	symbol = domain.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}

	log := o.requestLogger(CapEarnings, symbol)

	var failures []SourceFailure
	for _, src := range o.registry.EarningsChain() {
		name := src.Name()
		if err := o.preflight(src); err != nil {
			log.Debug().Str("source", name).Err(err).Msg("Source skipped")
			failures = append(failures, SourceFailure{Source: name, Err: err})
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, CallTimeout)
		event, err := src.NextEarnings(callCtx, symbol)
		cancel()
		o.settle(name, err)
		if err != nil {
			log.Warn().Str("source", name).Err(err).Msg("Earnings fetch failed")
			failures = append(failures, SourceFailure{Source: name, Err: err})
			continue
		}

		o.noteSuccess(CapEarnings, symbol, name)
		if event == nil {
			log.Debug().Str("source", name).Msg("No upcoming earnings scheduled")
			return nil, nil
		}
		event.Symbol = symbol
		event.Source = name
		log.Info().Str("source", name).Time("report_date", event.ReportDate).Msg("Earnings event fetched")
		return event, nil
	}
	return nil, &AllSourcesExhaustedError{Capability: CapEarnings, Symbol: symbol, Failures: failures}
}

// DownloadRange returns daily bars for symbol between start and end
// inclusive. A zero end means "through today". Recent ranges ride the
// cached path; ranges reaching further back than the native retention
// window are fetched live and never cached, so bulk backfills cannot
// churn the cache.
func (o *Orchestrator) DownloadRange(ctx context.Context, symbol string, start, end time.Time) (*domain.PriceHistory, error) {
	symbol = domain.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if start.IsZero() {
		return nil, fmt.Errorf("start date is required")
	}
	if !end.IsZero() && end.Before(start) {
		return nil, fmt.Errorf("end date %s precedes start date %s",
			end.Format("2006-01-02"), start.Format("2006-01-02"))
	}

	now := o.now()
	period := coveringPeriod(start, now)

	if start.Before(now.AddDate(-nativeRetentionYears, 0, 0)) {
		log := o.requestLogger(CapPriceHistory, symbol).With().Str("mode", "range_bypass").Logger()
		history, failures := o.fetchDailyHistory(ctx, log, symbol, period)
		if history == nil {
			return nil, &AllSourcesExhaustedError{Capability: CapPriceHistory, Symbol: symbol, Failures: failures}
		}
		history.Bars = sliceRange(history.Bars, start, end)
		return history, nil
	}

	history, err := o.GetOHLCV(ctx, symbol, period)
	if err != nil {
		return nil, err
	}
	history.Bars = sliceRange(history.Bars, start, end)
	return history, nil
}

// ResetBreaker force-closes the named source's circuit breaker. Returns
// false when no breaker exists under that name.
func (o *Orchestrator) ResetBreaker(name string) bool {
	return o.breakers.Reset(name)
}
