package yahoo

import (
	"context"
	"strings"
	"time"

	"github.com/aristath/datafeed/internal/domain"
	"github.com/aristath/datafeed/internal/marketdata"
	"github.com/wnjoon/go-yfinance/pkg/models"
	"github.com/wnjoon/go-yfinance/pkg/ticker"
	"gonum.org/v1/gonum/stat"
)

// Name identifies the adapter in chains, breakers and provenance tags.
func (c *Client) Name() string {
	return SourceName
}

// Available is always true: the chart API is keyless.
func (c *Client) Available() bool {
	return true
}

// PriceHistory fetches a daily OHLCV series. Period names map directly onto
// the chart API's range vocabulary.
func (c *Client) PriceHistory(ctx context.Context, symbol string, period domain.Period) (*domain.PriceHistory, error) {
	d, err := c.fetchChart(ctx, symbol, "1d", string(period))
	if err != nil {
		return nil, err
	}
	bars := d.bars()
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
	d, err := c.fetchChart(ctx, symbol, interval, string(period))
	if err != nil {
		return nil, err
	}
	bars := d.bars()
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

// Quote builds a snapshot from chart metadata, which carries the regular
// market price and previous close without a separate quote endpoint.
func (c *Client) Quote(ctx context.Context, symbol string) (*domain.Quote, error) {
	d, err := c.fetchChart(ctx, symbol, "1d", "1d")
	if err != nil {
		return nil, err
	}
	meta := d.Meta
	if meta.RegularMarketPrice <= 0 {
		return nil, &marketdata.DataNotFoundError{Source: SourceName, Symbol: symbol}
	}

	quote := &domain.Quote{
		Symbol: symbol,
		Price:  meta.RegularMarketPrice,
		AsOf:   time.Now().UTC(),
		Source: SourceName,
	}
	if meta.RegularMarketTime > 0 {
		quote.AsOf = time.Unix(meta.RegularMarketTime, 0).UTC()
	}

	prev := meta.ChartPreviousClose
	if prev <= 0 {
		prev = meta.PreviousClose
	}
	if prev > 0 {
		quote.PreviousClose = prev
		quote.Change = quote.Price - prev
		quote.ChangePercent = quote.Change / prev * 100
	}
	return quote, nil
}

// SecurityInfo combines chart metadata (exchange, currency, 52-week band,
// average volume) with the quote summary surface (name, industry, country,
// quote type, market cap). A summary failure degrades to chart-only
// metadata rather than failing the lookup.
func (c *Client) SecurityInfo(ctx context.Context, symbol string) (*domain.SecurityInfo, error) {
	d, err := c.fetchChart(ctx, symbol, "1d", "3mo")
	if err != nil {
		return nil, err
	}
	info := securityInfoFromChart(symbol, d)

	summary, err := c.fetchInfo(ctx, symbol)
	if err != nil {
		c.log.Debug().Err(err).Str("symbol", symbol).Msg("Quote summary unavailable, serving chart metadata only")
		return info, nil
	}
	applyInfo(info, summary)
	return info, nil
}

// Fundamentals maps the quote summary payload onto the canonical schema.
func (c *Client) Fundamentals(ctx context.Context, symbol string) (*domain.Fundamentals, error) {
	info, err := c.fetchInfo(ctx, symbol)
	if err != nil {
		return nil, err
	}

	f := &domain.Fundamentals{Symbol: symbol, Source: SourceName}
	marketdata.ApplyFieldMap(f, infoFieldMap(info), SourceName)
	if f.IsEmpty() {
		return nil, &marketdata.DataNotFoundError{Source: SourceName, Symbol: symbol}
	}
	return f, nil
}

// fetchInfo pulls the quote summary via go-yfinance. The library manages
// its own HTTP session, so ctx only gates entry.
func (c *Client) fetchInfo(ctx context.Context, symbol string) (*models.Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, &marketdata.ProviderUnavailableError{Source: SourceName, Err: err}
	}

	t, err := ticker.New(symbol)
	if err != nil {
		return nil, classifySummaryError(symbol, err)
	}
	defer t.Close()

	info, err := t.Info()
	if err != nil {
		return nil, classifySummaryError(symbol, err)
	}
	if info == nil {
		return nil, &marketdata.DataNotFoundError{Source: SourceName, Symbol: symbol}
	}
	return info, nil
}

// classifySummaryError sorts opaque go-yfinance errors into the taxonomy by
// message shape.
func classifySummaryError(symbol string, err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "not found") || strings.Contains(msg, "404"):
		return &marketdata.DataNotFoundError{Source: SourceName, Symbol: symbol}
	case strings.Contains(msg, "too many requests") || strings.Contains(msg, "429"):
		return &marketdata.RateLimitError{Source: SourceName}
	}
	return &marketdata.ProviderUnavailableError{Source: SourceName, Err: err}
}

// securityInfoFromChart extracts the metadata the chart response carries on
// its own: exchange, currency, the 52-week band and a trailing average
// volume over the returned bars.
func securityInfoFromChart(symbol string, d *chartData) *domain.SecurityInfo {
	info := &domain.SecurityInfo{
		Symbol:   symbol,
		Exchange: d.Meta.ExchangeName,
		Currency: d.Meta.Currency,
		Source:   SourceName,
	}
	if d.Meta.FiftyTwoWeekHigh > 0 {
		v := d.Meta.FiftyTwoWeekHigh
		info.FiftyTwoWeekHigh = &v
	}
	if d.Meta.FiftyTwoWeekLow > 0 {
		v := d.Meta.FiftyTwoWeekLow
		info.FiftyTwoWeekLow = &v
	}

	volumes := make([]float64, 0, len(d.Timestamp))
	for _, bar := range d.bars() {
		if bar.Volume > 0 {
			volumes = append(volumes, float64(bar.Volume))
		}
	}
	if len(volumes) > 0 {
		avg := int64(stat.Mean(volumes, nil))
		info.AverageVolume = &avg
	}
	return info
}

// applyInfo fills descriptive fields from the quote summary, preferring
// chart values where both surfaces report one.
func applyInfo(dst *domain.SecurityInfo, info *models.Info) {
	if info.LongName != "" {
		dst.Name = info.LongName
	} else if info.ShortName != "" {
		dst.Name = info.ShortName
	}
	if dst.Industry == "" {
		dst.Industry = info.Industry
	}
	if dst.Country == "" {
		dst.Country = info.Country
	}
	if dst.QuoteType == "" {
		dst.QuoteType = info.QuoteType
	}
	if dst.Exchange == "" {
		dst.Exchange = info.Exchange
	}
	if info.MarketCap > 0 {
		v := float64(info.MarketCap)
		dst.MarketCap = &v
	}
}

// infoFieldMap maps the quote summary payload onto canonical field names.
// This surface does not expose eps, beta or return_on_assets; those gaps
// are what the secondary fundamentals tier exists to fill. Zero values are
// treated as not-reported, matching how the upstream omits fields.
func infoFieldMap(info *models.Info) marketdata.FieldMap {
	fields := marketdata.FieldMap{}
	pos := func(name string, v float64) {
		if v > 0 {
			val := v
			fields[name] = &val
		}
	}
	nonzero := func(name string, v float64) {
		if v != 0 {
			val := v
			fields[name] = &val
		}
	}

	pos(domain.FieldPERatio, info.TrailingPE)
	pos(domain.FieldForwardPE, info.ForwardPE)
	pos(domain.FieldPEGRatio, info.PegRatio)
	pos(domain.FieldPriceToBook, info.PriceToBook)
	pos(domain.FieldReturnOnEquity, info.ReturnOnEquity)
	pos(domain.FieldDebtToEquity, info.DebtToEquity)
	pos(domain.FieldCurrentRatio, info.CurrentRatio)
	nonzero(domain.FieldRevenueGrowth, info.RevenueGrowth)
	nonzero(domain.FieldEarningsGrowth, info.EarningsGrowth)
	pos(domain.FieldProfitMargin, info.ProfitMargins)
	pos(domain.FieldOperatingMargin, info.OperatingMargins)
	pos(domain.FieldDividendYield, info.DividendYield)
	if info.MarketCap > 0 {
		v := float64(info.MarketCap)
		fields[domain.FieldMarketCap] = &v
	}
	return fields
}
