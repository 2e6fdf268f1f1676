package finnhub

import (
	"context"
	"time"

	"github.com/aristath/datafeed/internal/domain"
	"github.com/aristath/datafeed/internal/marketdata"
)

// Name identifies the adapter in chains, breakers and provenance tags.
func (c *Client) Name() string {
	return SourceName
}

// Available reports whether an API key is configured.
func (c *Client) Available() bool {
	return c.apiKey != ""
}

// Quote fetches the latest quote snapshot. Finnhub answers unknown symbols
// with an all-zero payload, which classifies as not found.
func (c *Client) Quote(ctx context.Context, symbol string) (*domain.Quote, error) {
	q, err := c.fetchQuote(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if q.Current <= 0 && q.PreviousClose <= 0 {
		return nil, &marketdata.DataNotFoundError{Source: SourceName, Symbol: symbol}
	}

	quote := &domain.Quote{
		Symbol:        symbol,
		Price:         q.Current,
		PreviousClose: q.PreviousClose,
		Change:        q.Change,
		ChangePercent: q.PercentChange,
		AsOf:          time.Now().UTC(),
		Source:        SourceName,
	}
	if q.Timestamp > 0 {
		quote.AsOf = time.Unix(q.Timestamp, 0).UTC()
	}
	return quote, nil
}

// SecurityInfo maps the company profile onto descriptive metadata.
func (c *Client) SecurityInfo(ctx context.Context, symbol string) (*domain.SecurityInfo, error) {
	profile, err := c.fetchProfile(ctx, symbol)
	if err != nil {
		return nil, err
	}
	// Unknown symbols come back as an empty object
	if profile.Ticker == "" && profile.Name == "" {
		return nil, &marketdata.DataNotFoundError{Source: SourceName, Symbol: symbol}
	}

	info := &domain.SecurityInfo{
		Symbol:   symbol,
		Name:     profile.Name,
		Industry: profile.Industry,
		Exchange: profile.Exchange,
		Country:  profile.Country,
		Currency: profile.Currency,
		Source:   SourceName,
	}
	if profile.MarketCapitalization > 0 {
		v := profile.MarketCapitalization * 1e6
		info.MarketCap = &v
	}
	return info, nil
}

// Fundamentals maps the basic-financials metric map onto the canonical
// schema. Percent-style metrics arrive already in percent form here.
func (c *Client) Fundamentals(ctx context.Context, symbol string) (*domain.Fundamentals, error) {
	metric, err := c.fetchMetrics(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if len(metric) == 0 {
		return nil, &marketdata.DataNotFoundError{Source: SourceName, Symbol: symbol}
	}

	f := &domain.Fundamentals{Symbol: symbol, Source: SourceName}
	marketdata.ApplyFieldMap(f, metricFieldMap(metric), SourceName)
	if f.IsEmpty() {
		return nil, &marketdata.DataNotFoundError{Source: SourceName, Symbol: symbol}
	}
	return f, nil
}

// NextEarnings returns the soonest scheduled earnings event within the next
// quarter. A nil event with a nil error means the calendar answered and
// nothing is scheduled.
func (c *Client) NextEarnings(ctx context.Context, symbol string) (*domain.EarningsEvent, error) {
	now := time.Now().UTC()
	entries, err := c.fetchEarningsCalendar(ctx, symbol, now, now.AddDate(0, 3, 0))
	if err != nil {
		return nil, err
	}

	var next *earningsEntry
	var nextDate time.Time
	for i := range entries {
		date, err := time.Parse("2006-01-02", entries[i].Date)
		if err != nil {
			continue
		}
		if next == nil || date.Before(nextDate) {
			next = &entries[i]
			nextDate = date
		}
	}
	if next == nil {
		return nil, nil
	}

	return &domain.EarningsEvent{
		Symbol:      symbol,
		ReportDate:  nextDate,
		EPSEstimate: next.EPSEstimate,
		EPSActual:   next.EPSActual,
		Source:      SourceName,
	}, nil
}

// metricFieldMap maps the metric payload onto canonical field names.
func metricFieldMap(metric map[string]any) marketdata.FieldMap {
	fields := marketdata.FieldMap{
		domain.FieldPERatio:         metricValue(metric, "peTTM", "peBasicExclExtraTTM"),
		domain.FieldPriceToBook:     metricValue(metric, "pb", "pbQuarterly", "pbAnnual"),
		domain.FieldEPS:             metricValue(metric, "epsTTM", "epsBasicExclExtraItemsTTM"),
		domain.FieldBeta:            metricValue(metric, "beta"),
		domain.FieldReturnOnEquity:  metricValue(metric, "roeTTM", "roeRfy"),
		domain.FieldReturnOnAssets:  metricValue(metric, "roaTTM", "roaRfy"),
		domain.FieldDebtToEquity:    metricValue(metric, "totalDebt/totalEquityQuarterly", "totalDebt/totalEquityAnnual"),
		domain.FieldCurrentRatio:    metricValue(metric, "currentRatioQuarterly", "currentRatioAnnual"),
		domain.FieldRevenueGrowth:   metricValue(metric, "revenueGrowthTTMYoy", "revenueGrowthQuarterlyYoy"),
		domain.FieldEarningsGrowth:  metricValue(metric, "epsGrowthTTMYoy", "epsGrowthQuarterlyYoy"),
		domain.FieldProfitMargin:    metricValue(metric, "netProfitMarginTTM", "netProfitMarginAnnual"),
		domain.FieldOperatingMargin: metricValue(metric, "operatingMarginTTM", "operatingMarginAnnual"),
		domain.FieldDividendYield:   metricValue(metric, "dividendYieldIndicatedAnnual", "currentDividendYieldTTM"),
	}
	// Market cap arrives in millions
	if mcap := metricValue(metric, "marketCapitalization"); mcap != nil {
		v := *mcap * 1e6
		fields[domain.FieldMarketCap] = &v
	}
	return fields
}
