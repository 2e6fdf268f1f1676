// Package yahoo implements the Yahoo Finance source adapter. Daily and
// intraday series, quotes and the 52-week band ride the public v8 chart
// API; fundamentals and descriptive metadata come from the quote summary
// surface via go-yfinance. Yahoo is keyless, so the adapter is always
// available.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aristath/datafeed/internal/domain"
	"github.com/aristath/datafeed/internal/marketdata"
	"github.com/rs/zerolog"
)

// SourceName is the identifier this adapter registers under.
const SourceName = "yahoo"

const (
	defaultBaseURL = "https://query1.finance.yahoo.com"
	// The chart API rejects requests without a browser-looking agent
	userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"
)

// Client speaks the v8 chart API.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient creates a chart API client.
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.With().Str("client", "yahoo").Logger(),
	}
}

// SetTimeout overrides the per-request HTTP timeout.
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.http.Timeout = d
	}
}

type chartMeta struct {
	Currency           string  `json:"currency"`
	Symbol             string  `json:"symbol"`
	ExchangeName       string  `json:"exchangeName"`
	RegularMarketPrice float64 `json:"regularMarketPrice"`
	ChartPreviousClose float64 `json:"chartPreviousClose"`
	PreviousClose      float64 `json:"previousClose"`
	RegularMarketTime  int64   `json:"regularMarketTime"`
	FiftyTwoWeekHigh   float64 `json:"fiftyTwoWeekHigh"`
	FiftyTwoWeekLow    float64 `json:"fiftyTwoWeekLow"`
}

// chartData is one result element of a chart response. Price arrays use
// pointers because Yahoo emits JSON nulls for halted or missing sessions.
type chartData struct {
	Meta       chartMeta `json:"meta"`
	Timestamp  []int64   `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*int64   `json:"volume"`
		} `json:"quote"`
		AdjClose []struct {
			AdjClose []*float64 `json:"adjclose"`
		} `json:"adjclose"`
	} `json:"indicators"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResponse struct {
	Chart struct {
		Result []chartData `json:"result"`
		Error  *chartError `json:"error"`
	} `json:"chart"`
}

// fetchChart runs one chart API request and classifies every failure mode
// into the shared error taxonomy.
func (c *Client) fetchChart(ctx context.Context, symbol, interval, rng string) (*chartData, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=%s&range=%s",
		c.baseURL, url.PathEscape(symbol), url.QueryEscape(interval), url.QueryEscape(rng))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &marketdata.ProviderUnavailableError{Source: SourceName, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &marketdata.ProviderUnavailableError{Source: SourceName, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &marketdata.ProviderUnavailableError{Source: SourceName, Err: err}
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, &marketdata.DataNotFoundError{Source: SourceName, Symbol: symbol}
	case http.StatusTooManyRequests:
		return nil, &marketdata.RateLimitError{Source: SourceName}
	default:
		return nil, &marketdata.ProviderUnavailableError{
			Source: SourceName,
			Reason: fmt.Sprintf("status %d: %s", resp.StatusCode, truncateBody(body)),
		}
	}

	var parsed chartResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &marketdata.ProviderUnavailableError{Source: SourceName, Reason: "malformed chart payload", Err: err}
	}
	if apiErr := parsed.Chart.Error; apiErr != nil {
		if strings.EqualFold(apiErr.Code, "Not Found") {
			return nil, &marketdata.DataNotFoundError{Source: SourceName, Symbol: symbol}
		}
		return nil, &marketdata.ProviderUnavailableError{Source: SourceName, Reason: apiErr.Description}
	}
	if len(parsed.Chart.Result) == 0 {
		return nil, &marketdata.DataNotFoundError{Source: SourceName, Symbol: symbol}
	}
	return &parsed.Chart.Result[0], nil
}

// bars converts the columnar chart arrays into Bar rows, skipping null
// sessions the way Yahoo reports them.
func (d *chartData) bars() []domain.Bar {
	if len(d.Indicators.Quote) == 0 {
		return nil
	}
	quote := d.Indicators.Quote[0]

	var adj []*float64
	if len(d.Indicators.AdjClose) > 0 {
		adj = d.Indicators.AdjClose[0].AdjClose
	}

	bars := make([]domain.Bar, 0, len(d.Timestamp))
	for i, ts := range d.Timestamp {
		if i >= len(quote.Open) || i >= len(quote.High) || i >= len(quote.Low) || i >= len(quote.Close) {
			continue
		}
		if quote.Open[i] == nil || quote.High[i] == nil || quote.Low[i] == nil || quote.Close[i] == nil {
			continue
		}

		bar := domain.Bar{
			Date:  time.Unix(ts, 0).UTC(),
			Open:  *quote.Open[i],
			High:  *quote.High[i],
			Low:   *quote.Low[i],
			Close: *quote.Close[i],
		}
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			bar.Volume = *quote.Volume[i]
		}
		if i < len(adj) && adj[i] != nil {
			v := *adj[i]
			bar.AdjClose = &v
		}
		bars = append(bars, bar)
	}
	return bars
}

func truncateBody(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
