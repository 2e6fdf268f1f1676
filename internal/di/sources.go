// Package di: upstream client construction and capability chain assembly.
package di

import (
	"github.com/aristath/datafeed/internal/clients/alphavantage"
	"github.com/aristath/datafeed/internal/clients/finnhub"
	"github.com/aristath/datafeed/internal/clients/stooq"
	"github.com/aristath/datafeed/internal/clients/yahoo"
	"github.com/aristath/datafeed/internal/config"
	"github.com/aristath/datafeed/internal/domain"
	"github.com/aristath/datafeed/internal/marketdata"
	"github.com/rs/zerolog"
)

// fundamentalsGapFields are the canonical fields the Yahoo quote summary
// chronically lacks. When Yahoo is the primary tier, the secondary is
// consulted for exactly these.
var fundamentalsGapFields = []string{
	domain.FieldEPS,
	domain.FieldBeta,
	domain.FieldReturnOnAssets,
}

// sourceSet indexes the constructed clients by source name, one map per
// capability, so chains configured as name lists resolve to the right
// interface type. A source absent from a capability map cannot serve that
// capability at all.
type sourceSet struct {
	priceHistory map[string]marketdata.PriceHistorySource
	intraday     map[string]marketdata.IntradaySource
	quote        map[string]marketdata.QuoteSource
	securityInfo map[string]marketdata.SecurityInfoSource
	earnings     map[string]marketdata.EarningsSource
	fundamentals map[string]marketdata.FundamentalsSource
}

// initSources constructs one client per upstream provider and registers
// them on the capability chains in configured priority order. Sources
// without credentials are dropped by the registry itself; unknown names in
// a chain are logged and skipped.
func initSources(container *Container, cfg *config.Config, log zerolog.Logger) {
	yahooClient := yahoo.NewClient(log)
	avClient := alphavantage.NewClient(cfg.AlphaVantageAPIKey, log)
	finnhubClient := finnhub.NewClient(cfg.FinnhubAPIKey, log)
	stooqClient := stooq.NewClient(log)

	yahooClient.SetTimeout(cfg.HTTPTimeout)
	avClient.SetTimeout(cfg.HTTPTimeout)
	finnhubClient.SetTimeout(cfg.HTTPTimeout)
	stooqClient.SetTimeout(cfg.HTTPTimeout)

	set := sourceSet{
		priceHistory: map[string]marketdata.PriceHistorySource{
			yahoo.SourceName:        yahooClient,
			stooq.SourceName:        stooqClient,
			alphavantage.SourceName: avClient,
		},
		intraday: map[string]marketdata.IntradaySource{
			yahoo.SourceName:        yahooClient,
			alphavantage.SourceName: avClient,
		},
		quote: map[string]marketdata.QuoteSource{
			yahoo.SourceName:        yahooClient,
			finnhub.SourceName:      finnhubClient,
			alphavantage.SourceName: avClient,
		},
		securityInfo: map[string]marketdata.SecurityInfoSource{
			yahoo.SourceName:        yahooClient,
			alphavantage.SourceName: avClient,
			finnhub.SourceName:      finnhubClient,
		},
		earnings: map[string]marketdata.EarningsSource{
			finnhub.SourceName:      finnhubClient,
			alphavantage.SourceName: avClient,
		},
		fundamentals: map[string]marketdata.FundamentalsSource{
			yahoo.SourceName:        yahooClient,
			alphavantage.SourceName: avClient,
			finnhub.SourceName:      finnhubClient,
		},
	}

	registry := marketdata.NewRegistry(log)

	for _, name := range cfg.Chains.PriceHistory {
		src, ok := set.priceHistory[name]
		if !ok {
			warnUnknownSource(log, marketdata.CapPriceHistory, name)
			continue
		}
		registry.AddPriceHistory(src)
	}

	for _, name := range cfg.Chains.Intraday {
		src, ok := set.intraday[name]
		if !ok {
			warnUnknownSource(log, marketdata.CapIntraday, name)
			continue
		}
		registry.AddIntraday(src)
	}

	for _, name := range cfg.Chains.Quote {
		src, ok := set.quote[name]
		if !ok {
			warnUnknownSource(log, marketdata.CapQuote, name)
			continue
		}
		registry.AddQuote(src)
	}

	for _, name := range cfg.Chains.SecurityInfo {
		src, ok := set.securityInfo[name]
		if !ok {
			warnUnknownSource(log, marketdata.CapSecurityInfo, name)
			continue
		}
		registry.AddSecurityInfo(src)
	}

	for _, name := range cfg.Chains.Earnings {
		src, ok := set.earnings[name]
		if !ok {
			warnUnknownSource(log, marketdata.CapEarnings, name)
			continue
		}
		registry.AddEarnings(src)
	}

	registry.SetFundamentals(marketdata.FundamentalsTiers{
		Primary:   lookupFundamentals(set, cfg.Chains.FundamentalsPrimary, log),
		Secondary: lookupFundamentals(set, cfg.Chains.FundamentalsSecondary, log),
		Fallback:  lookupFundamentals(set, cfg.Chains.FundamentalsFallback, log),
		GapFields: fundamentalsGapFields,
	})

	container.Registry = registry
}

// lookupFundamentals resolves a configured tier name. An empty name is a
// deliberately unset tier; an unknown one is logged. Either yields nil,
// which the registry drops.
func lookupFundamentals(set sourceSet, name string, log zerolog.Logger) marketdata.FundamentalsSource {
	if name == "" {
		return nil
	}
	src, ok := set.fundamentals[name]
	if !ok {
		warnUnknownSource(log, marketdata.CapFundamentals, name)
		return nil
	}
	return src
}

func warnUnknownSource(log zerolog.Logger, capability marketdata.Capability, name string) {
	log.Warn().
		Str("capability", string(capability)).
		Str("source", name).
		Msg("Unknown source in configured chain, skipped")
}
