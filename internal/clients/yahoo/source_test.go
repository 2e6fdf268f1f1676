package yahoo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aristath/datafeed/internal/domain"
	"github.com/aristath/datafeed/internal/marketdata"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wnjoon/go-yfinance/pkg/models"
)

// chartPayload mirrors a real v8 chart response: columnar arrays with a
// null session in the middle, adjclose present for daily bars.
const chartPayload = `{
	"chart": {
		"result": [{
			"meta": {
				"currency": "USD",
				"symbol": "AAPL",
				"exchangeName": "NMS",
				"regularMarketPrice": 227.52,
				"chartPreviousClose": 225.77,
				"regularMarketTime": 1724443200,
				"fiftyTwoWeekHigh": 237.23,
				"fiftyTwoWeekLow": 164.08
			},
			"timestamp": [1724067000, 1724153400, 1724239800, 1724326200],
			"indicators": {
				"quote": [{
					"open":   [225.72, 226.52, null, 227.79],
					"high":   [227.17, 227.98, null, 228.34],
					"low":    [225.45, 225.05, null, 226.01],
					"close":  [226.51, 226.40, null, 227.52],
					"volume": [40687800, 38677300, null, 36311800]
				}],
				"adjclose": [{
					"adjclose": [226.21, 226.10, null, 227.22]
				}]
			}
		}],
		"error": null
	}
}`

const chartNotFoundPayload = `{
	"chart": {
		"result": null,
		"error": {"code": "Not Found", "description": "No data found, symbol may be delisted"}
	}
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(zerolog.Nop())
	client.baseURL = server.URL
	return client
}

func TestPriceHistory_ParsesChartPayload(t *testing.T) {
	var gotPath, gotQuery string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Write([]byte(chartPayload))
	})

	history, err := client.PriceHistory(context.Background(), "AAPL", domain.Period1Y)
	require.NoError(t, err)

	assert.Equal(t, "/v8/finance/chart/AAPL", gotPath)
	assert.Contains(t, gotQuery, "interval=1d")
	assert.Contains(t, gotQuery, "range=1y")

	assert.Equal(t, "AAPL", history.Symbol)
	assert.Equal(t, domain.Period1Y, history.Period)
	assert.Equal(t, SourceName, history.Source)

	// The null session is skipped, not emitted as a zero bar
	require.Len(t, history.Bars, 3)
	first := history.Bars[0]
	assert.Equal(t, time.Unix(1724067000, 0).UTC(), first.Date)
	assert.InDelta(t, 225.72, first.Open, 1e-9)
	assert.InDelta(t, 226.51, first.Close, 1e-9)
	assert.Equal(t, int64(40687800), first.Volume)
	require.NotNil(t, first.AdjClose)
	assert.InDelta(t, 226.21, *first.AdjClose, 1e-9)
}

func TestPriceHistory_HTTPNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.PriceHistory(context.Background(), "NOPE", domain.Period1Y)
	var notFound *marketdata.DataNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "NOPE", notFound.Symbol)
	assert.Equal(t, SourceName, notFound.Source)
}

func TestPriceHistory_APIErrorPayloadClassifiedNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chartNotFoundPayload))
	})

	_, err := client.PriceHistory(context.Background(), "DELISTED", domain.Period1Y)
	var notFound *marketdata.DataNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestPriceHistory_ThrottleClassifiedRateLimit(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.PriceHistory(context.Background(), "AAPL", domain.Period1Y)
	var limited *marketdata.RateLimitError
	require.ErrorAs(t, err, &limited)
}

func TestPriceHistory_ServerErrorClassifiedUnavailable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	})

	_, err := client.PriceHistory(context.Background(), "AAPL", domain.Period1Y)
	var unavailable *marketdata.ProviderUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Contains(t, unavailable.Reason, "status 502")
}

func TestPriceHistory_SendsBrowserUserAgent(t *testing.T) {
	var gotAgent string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
		w.Write([]byte(chartPayload))
	})

	_, err := client.PriceHistory(context.Background(), "AAPL", domain.Period1M)
	require.NoError(t, err)
	assert.Contains(t, gotAgent, "Mozilla/5.0")
}

func TestIntraday_PassesIntervalThrough(t *testing.T) {
	var gotQuery string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(chartPayload))
	})

	history, err := client.Intraday(context.Background(), "AAPL", domain.Interval5Min, domain.Period1D)
	require.NoError(t, err)
	assert.Contains(t, gotQuery, "interval=5m")
	assert.Contains(t, gotQuery, "range=1d")
	assert.Equal(t, domain.Interval5Min, history.Interval)
	assert.Len(t, history.Bars, 3)
}

func TestQuote_FromChartMeta(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chartPayload))
	})

	quote, err := client.Quote(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, "AAPL", quote.Symbol)
	assert.InDelta(t, 227.52, quote.Price, 1e-9)
	assert.InDelta(t, 225.77, quote.PreviousClose, 1e-9)
	assert.InDelta(t, 1.75, quote.Change, 1e-9)
	assert.InDelta(t, 0.7751, quote.ChangePercent, 1e-3)
	assert.Equal(t, time.Unix(1724443200, 0).UTC(), quote.AsOf)
	assert.Equal(t, SourceName, quote.Source)
}

func TestQuote_ZeroPriceClassifiedNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":{"result":[{"meta":{"symbol":"HALT"}}],"error":null}}`))
	})

	_, err := client.Quote(context.Background(), "HALT")
	var notFound *marketdata.DataNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestSecurityInfoFromChart_BandAndAverageVolume(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chartPayload))
	})

	d, err := client.fetchChart(context.Background(), "AAPL", "1d", "3mo")
	require.NoError(t, err)

	info := securityInfoFromChart("AAPL", d)
	assert.Equal(t, "NMS", info.Exchange)
	assert.Equal(t, "USD", info.Currency)
	require.NotNil(t, info.FiftyTwoWeekHigh)
	assert.InDelta(t, 237.23, *info.FiftyTwoWeekHigh, 1e-9)
	require.NotNil(t, info.FiftyTwoWeekLow)
	assert.InDelta(t, 164.08, *info.FiftyTwoWeekLow, 1e-9)

	// Mean of the three non-null session volumes
	require.NotNil(t, info.AverageVolume)
	assert.Equal(t, int64((40687800+38677300+36311800)/3), *info.AverageVolume)
}

func TestInfoFieldMap_CanonicalNamesAndGaps(t *testing.T) {
	info := &models.Info{
		TrailingPE:       27.5,
		ForwardPE:        24.1,
		PegRatio:         2.1,
		PriceToBook:      46.3,
		ReturnOnEquity:   1.474,
		DebtToEquity:     176.35,
		CurrentRatio:     0.95,
		RevenueGrowth:    0.049,
		EarningsGrowth:   -0.072,
		ProfitMargins:    0.2644,
		OperatingMargins: 0.2982,
		DividendYield:    0.0044,
		MarketCap:        3450000000000,
	}

	f := &domain.Fundamentals{Symbol: "AAPL"}
	marketdata.ApplyFieldMap(f, infoFieldMap(info), SourceName)

	require.NotNil(t, f.PERatio)
	assert.InDelta(t, 27.5, *f.PERatio, 1e-9)
	require.NotNil(t, f.MarketCap)
	assert.InDelta(t, 3.45e12, *f.MarketCap, 1)

	// Ratio-form upstream values land in percent form
	require.NotNil(t, f.ProfitMargin)
	assert.InDelta(t, 26.44, *f.ProfitMargin, 1e-9)
	require.NotNil(t, f.RevenueGrowth)
	assert.InDelta(t, 4.9, *f.RevenueGrowth, 1e-9)
	require.NotNil(t, f.EarningsGrowth)
	assert.InDelta(t, -7.2, *f.EarningsGrowth, 1e-9)
	require.NotNil(t, f.DividendYield)
	assert.InDelta(t, 0.44, *f.DividendYield, 1e-9)

	// This surface never reports the secondary tier's gap fields
	assert.Nil(t, f.EPS)
	assert.Nil(t, f.Beta)
	assert.Nil(t, f.ReturnOnAssets)

	assert.Equal(t, SourceName, f.FieldSources[domain.FieldPERatio])
}

func TestInfoFieldMap_ZeroValuesDropped(t *testing.T) {
	fields := infoFieldMap(&models.Info{})
	assert.Empty(t, fields)
}

func TestClassifySummaryError(t *testing.T) {
	var notFound *marketdata.DataNotFoundError
	assert.ErrorAs(t, classifySummaryError("X", assert.AnError), new(*marketdata.ProviderUnavailableError))
	require.ErrorAs(t, classifySummaryError("X", errNotFound{}), &notFound)

	var limited *marketdata.RateLimitError
	require.ErrorAs(t, classifySummaryError("X", errThrottled{}), &limited)
}

type errNotFound struct{}

func (errNotFound) Error() string { return "symbol not found: 404" }

type errThrottled struct{}

func (errThrottled) Error() string { return "request failed: 429 Too Many Requests" }
