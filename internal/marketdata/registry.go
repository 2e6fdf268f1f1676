package marketdata

import (
	"github.com/rs/zerolog"
)

// FundamentalsTiers configures the tiered fundamentals merge: the primary
// carries most fields, the secondary fills the primary's chronic gaps with
// one extra call, the fallback sweeps whatever is still missing.
type FundamentalsTiers struct {
	Primary   FundamentalsSource
	Secondary FundamentalsSource
	Fallback  FundamentalsSource

	// GapFields are the canonical fields the primary is known to
	// chronically lack. When the primary succeeds, the secondary is asked
	// only if one of these is still null, and only they are taken from it.
	GapFields []string
}

// Registry holds the active per-capability adapter chains in priority
// order. Sources that report unavailable at registration are omitted from
// the chains entirely, so chain walks never visit a source that could not
// possibly answer.
type Registry struct {
	priceHistory []PriceHistorySource
	intraday     []IntradaySource
	quote        []QuoteSource
	securityInfo []SecurityInfoSource
	earnings     []EarningsSource
	fundamentals *FundamentalsTiers

	log zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		log: log.With().Str("component", "marketdata_registry").Logger(),
	}
}

func (r *Registry) skip(s Source, capability Capability) bool {
	if s == nil {
		return true
	}
	if !s.Available() {
		r.log.Info().
			Str("source", s.Name()).
			Str("capability", string(capability)).
			Msg("Source unavailable, omitted from chain")
		return true
	}
	return false
}

// AddPriceHistory appends sources to the price-history chain in priority order.
func (r *Registry) AddPriceHistory(sources ...PriceHistorySource) {
	for _, s := range sources {
		if r.skip(s, CapPriceHistory) {
			continue
		}
		r.priceHistory = append(r.priceHistory, s)
	}
}

// AddIntraday appends sources to the intraday chain in priority order.
func (r *Registry) AddIntraday(sources ...IntradaySource) {
	for _, s := range sources {
		if r.skip(s, CapIntraday) {
			continue
		}
		r.intraday = append(r.intraday, s)
	}
}

// AddQuote appends sources to the quote chain in priority order.
func (r *Registry) AddQuote(sources ...QuoteSource) {
	for _, s := range sources {
		if r.skip(s, CapQuote) {
			continue
		}
		r.quote = append(r.quote, s)
	}
}

// AddSecurityInfo appends sources to the security-info chain in priority order.
func (r *Registry) AddSecurityInfo(sources ...SecurityInfoSource) {
	for _, s := range sources {
		if r.skip(s, CapSecurityInfo) {
			continue
		}
		r.securityInfo = append(r.securityInfo, s)
	}
}

// AddEarnings appends sources to the earnings chain in priority order.
func (r *Registry) AddEarnings(sources ...EarningsSource) {
	for _, s := range sources {
		if r.skip(s, CapEarnings) {
			continue
		}
		r.earnings = append(r.earnings, s)
	}
}

// SetFundamentals configures the tiered fundamentals sources. Unavailable
// tiers are dropped; a missing primary promotes the secondary, then the
// fallback, so a partially configured deployment still answers.
func (r *Registry) SetFundamentals(tiers FundamentalsTiers) {
	if r.skip(tiers.Primary, CapFundamentals) {
		tiers.Primary = nil
	}
	if r.skip(tiers.Secondary, CapFundamentals) {
		tiers.Secondary = nil
	}
	if r.skip(tiers.Fallback, CapFundamentals) {
		tiers.Fallback = nil
	}

	if tiers.Primary == nil {
		tiers.Primary, tiers.Secondary = tiers.Secondary, nil
		// Promotion invalidates the primary-specific gap list
		tiers.GapFields = nil
	}
	if tiers.Primary == nil {
		tiers.Primary, tiers.Fallback = tiers.Fallback, nil
	}
	if tiers.Primary == nil {
		return
	}
	r.fundamentals = &tiers
}

// PriceHistoryChain returns the active price-history chain.
func (r *Registry) PriceHistoryChain() []PriceHistorySource { return r.priceHistory }

// IntradayChain returns the active intraday chain.
func (r *Registry) IntradayChain() []IntradaySource { return r.intraday }

// QuoteChain returns the active quote chain.
func (r *Registry) QuoteChain() []QuoteSource { return r.quote }

// SecurityInfoChain returns the active security-info chain.
func (r *Registry) SecurityInfoChain() []SecurityInfoSource { return r.securityInfo }

// EarningsChain returns the active earnings chain.
func (r *Registry) EarningsChain() []EarningsSource { return r.earnings }

// Fundamentals returns the active fundamentals tiers, nil when no
// fundamentals source is available.
func (r *Registry) Fundamentals() *FundamentalsTiers { return r.fundamentals }
