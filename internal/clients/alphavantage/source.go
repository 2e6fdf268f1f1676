package alphavantage

import (
	"context"
	"errors"
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

// intradayIntervals maps canonical interval names onto the upstream
// vocabulary.
var intradayIntervals = map[string]string{
	domain.Interval1Min:  "1min",
	domain.Interval5Min:  "5min",
	domain.Interval15Min: "15min",
	domain.Interval30Min: "30min",
	domain.Interval60Min: "60min",
}

// PriceHistory fetches a daily OHLCV series. The compact output covers 100
// sessions, enough for anything up to 3mo; longer periods need the full
// dump, trimmed back to the requested window. YTD can reach back almost a
// year, so it always takes the full dump.
func (c *Client) PriceHistory(ctx context.Context, symbol string, period domain.Period) (*domain.PriceHistory, error) {
	full := period == domain.PeriodYTD || period.Covers(domain.Period6M)
	prices, err := c.DailySeries(ctx, symbol, full)
	if err != nil {
		return nil, classify(symbol, err)
	}

	bars := toBars(prices, period)
	if len(bars) == 0 {
		return nil, &marketdata.DataNotFoundError{Source: SourceName, Symbol: symbol}
	}
	return &domain.PriceHistory{
		Symbol: symbol,
		Period: period,
		Source: SourceName,
		Bars:   bars,
	}, nil
}

// Intraday fetches an intraday OHLCV series at the given bar interval.
func (c *Client) Intraday(ctx context.Context, symbol, interval string, period domain.Period) (*domain.PriceHistory, error) {
	upstream, ok := intradayIntervals[interval]
	if !ok {
		return nil, &marketdata.DataNotFoundError{Source: SourceName, Symbol: symbol}
	}

	prices, err := c.IntradaySeries(ctx, symbol, upstream)
	if err != nil {
		return nil, classify(symbol, err)
	}

	bars := toBars(prices, period)
	if len(bars) == 0 {
		return nil, &marketdata.DataNotFoundError{Source: SourceName, Symbol: symbol}
	}
	return &domain.PriceHistory{
		Symbol:   symbol,
		Period:   period,
		Interval: interval,
		Source:   SourceName,
		Bars:     bars,
	}, nil
}

// Fundamentals maps the company overview onto the canonical schema. This is
// the richest free fundamentals surface: it fills eps, beta and
// return_on_assets, the fields the primary tier never reports.
func (c *Client) Fundamentals(ctx context.Context, symbol string) (*domain.Fundamentals, error) {
	overview, err := c.CompanyOverview(ctx, symbol)
	if err != nil {
		return nil, classify(symbol, err)
	}

	f := &domain.Fundamentals{Symbol: symbol, Source: SourceName}
	marketdata.ApplyFieldMap(f, overviewFieldMap(overview), SourceName)
	if f.IsEmpty() {
		return nil, &marketdata.DataNotFoundError{Source: SourceName, Symbol: symbol}
	}
	return f, nil
}

// Quote fetches the latest quote snapshot.
func (c *Client) Quote(ctx context.Context, symbol string) (*domain.Quote, error) {
	gq, err := c.GlobalQuote(ctx, symbol)
	if err != nil {
		return nil, classify(symbol, err)
	}
	if gq.Price <= 0 {
		return nil, &marketdata.DataNotFoundError{Source: SourceName, Symbol: symbol}
	}

	quote := &domain.Quote{
		Symbol:        symbol,
		Price:         gq.Price,
		PreviousClose: gq.PreviousClose,
		Change:        gq.Change,
		ChangePercent: gq.ChangePercent,
		AsOf:          time.Now().UTC(),
		Source:        SourceName,
	}
	if !gq.LatestTradingDay.IsZero() {
		quote.AsOf = gq.LatestTradingDay
	}
	return quote, nil
}

// SecurityInfo maps the company overview's descriptive fields.
func (c *Client) SecurityInfo(ctx context.Context, symbol string) (*domain.SecurityInfo, error) {
	overview, err := c.CompanyOverview(ctx, symbol)
	if err != nil {
		return nil, classify(symbol, err)
	}

	info := &domain.SecurityInfo{
		Symbol:           symbol,
		Name:             overview.Name,
		Sector:           overview.Sector,
		Industry:         overview.Industry,
		Exchange:         overview.Exchange,
		Country:          overview.Country,
		Currency:         overview.Currency,
		QuoteType:        overview.AssetType,
		FiftyTwoWeekHigh: overview.FiftyTwoWeekHigh,
		FiftyTwoWeekLow:  overview.FiftyTwoWeekLow,
		Source:           SourceName,
	}
	if overview.MarketCapitalization > 0 {
		v := float64(overview.MarketCapitalization)
		info.MarketCap = &v
	}
	return info, nil
}

// NextEarnings returns the soonest scheduled earnings event. A nil event
// with a nil error means the calendar answered and nothing is scheduled.
func (c *Client) NextEarnings(ctx context.Context, symbol string) (*domain.EarningsEvent, error) {
	entries, err := c.EarningsCalendar(ctx, symbol)
	if err != nil {
		return nil, classify(symbol, err)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	next := entries[0]
	event := &domain.EarningsEvent{
		Symbol:      symbol,
		ReportDate:  next.ReportDate,
		FiscalEnd:   next.FiscalDateEnding,
		EPSEstimate: next.Estimate,
		Source:      SourceName,
	}
	return event, nil
}

// toBars reverses a newest-first series into canonical oldest-first order,
// dropping rows outside the requested period.
func toBars(prices []DailyPrice, period domain.Period) []domain.Bar {
	cutoff, bounded := period.CutoffFrom(time.Now())

	bars := make([]domain.Bar, 0, len(prices))
	for i := len(prices) - 1; i >= 0; i-- {
		p := prices[i]
		if bounded && p.Date.Before(cutoff) {
			continue
		}
		bars = append(bars, domain.Bar{
			Date:   p.Date,
			Open:   p.Open,
			High:   p.High,
			Low:    p.Low,
			Close:  p.Close,
			Volume: p.Volume,
		})
	}
	return bars
}

// overviewFieldMap maps the OVERVIEW payload onto canonical field names.
func overviewFieldMap(o *CompanyOverview) marketdata.FieldMap {
	fields := marketdata.FieldMap{
		domain.FieldPERatio:         o.PERatio,
		domain.FieldForwardPE:       o.ForwardPE,
		domain.FieldPEGRatio:        o.PEGRatio,
		domain.FieldPriceToBook:     o.PriceToBookRatio,
		domain.FieldEPS:             o.EPS,
		domain.FieldBeta:            o.Beta,
		domain.FieldReturnOnEquity:  o.ReturnOnEquityTTM,
		domain.FieldReturnOnAssets:  o.ReturnOnAssetsTTM,
		domain.FieldProfitMargin:    o.ProfitMargin,
		domain.FieldOperatingMargin: o.OperatingMarginTTM,
		domain.FieldRevenueGrowth:   o.QuarterlyRevenueGrowthYOY,
		domain.FieldEarningsGrowth:  o.QuarterlyEarningsGrowthYOY,
		domain.FieldDividendYield:   o.DividendYield,
	}
	if o.MarketCapitalization > 0 {
		v := float64(o.MarketCapitalization)
		fields[domain.FieldMarketCap] = &v
	}
	return fields
}

// classify sorts client errors into the shared taxonomy.
func classify(symbol string, err error) error {
	var (
		rateLimit  ErrRateLimitExceeded
		invalidKey ErrInvalidAPIKey
		notFound   ErrSymbolNotFound
	)
	switch {
	case errors.As(err, &rateLimit):
		return &marketdata.RateLimitError{Source: SourceName}
	case errors.As(err, &invalidKey):
		return &marketdata.AuthenticationError{Source: SourceName, Reason: "API key rejected"}
	case errors.As(err, &notFound):
		return &marketdata.DataNotFoundError{Source: SourceName, Symbol: symbol}
	}
	return &marketdata.ProviderUnavailableError{Source: SourceName, Err: err}
}
