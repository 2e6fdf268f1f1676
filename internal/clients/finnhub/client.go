// Package finnhub implements the Finnhub source adapter and the optional
// real-time trade stream. The free REST tier serves quotes, company
// profiles, the basic-financials metric map and the earnings calendar;
// candle history is premium-only, so this source never joins price chains.
package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/aristath/datafeed/internal/marketdata"
	"github.com/rs/zerolog"
)

// SourceName is the identifier this adapter registers under.
const SourceName = "finnhub"

const defaultBaseURL = "https://finnhub.io/api/v1"

// Client talks to the Finnhub REST API.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient creates a Finnhub client. An empty API key produces a client
// that reports itself unavailable rather than failing calls.
func NewClient(apiKey string, log zerolog.Logger) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.With().Str("client", "finnhub").Logger(),
	}
}

// SetTimeout overrides the per-request HTTP timeout.
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.http.Timeout = d
	}
}

// fetch runs one API request and decodes the JSON payload into out,
// classifying every failure mode into the shared error taxonomy.
func (c *Client) fetch(ctx context.Context, path string, params url.Values, out any) error {
	u := c.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &marketdata.ProviderUnavailableError{Source: SourceName, Err: err}
	}
	req.Header.Set("X-Finnhub-Token", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &marketdata.ProviderUnavailableError{Source: SourceName, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &marketdata.ProviderUnavailableError{Source: SourceName, Err: err}
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return &marketdata.AuthenticationError{Source: SourceName, Reason: "API key rejected"}
	case http.StatusTooManyRequests:
		return &marketdata.RateLimitError{Source: SourceName}
	case http.StatusNotFound:
		return &marketdata.DataNotFoundError{Source: SourceName, Symbol: params.Get("symbol")}
	default:
		return &marketdata.ProviderUnavailableError{
			Source: SourceName,
			Reason: fmt.Sprintf("status %d", resp.StatusCode),
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &marketdata.ProviderUnavailableError{Source: SourceName, Reason: "malformed payload", Err: err}
	}
	return nil
}

// quoteResponse is the /quote payload. Unknown symbols answer with all
// zeros rather than an error.
type quoteResponse struct {
	Current       float64 `json:"c"`
	Change        float64 `json:"d"`
	PercentChange float64 `json:"dp"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PreviousClose float64 `json:"pc"`
	Timestamp     int64   `json:"t"`
}

func (c *Client) fetchQuote(ctx context.Context, symbol string) (*quoteResponse, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var quote quoteResponse
	if err := c.fetch(ctx, "/quote", params, &quote); err != nil {
		return nil, err
	}
	return &quote, nil
}

// companyProfile is the /stock/profile2 payload. MarketCapitalization is
// reported in millions.
type companyProfile struct {
	Country              string  `json:"country"`
	Currency             string  `json:"currency"`
	Exchange             string  `json:"exchange"`
	Industry             string  `json:"finnhubIndustry"`
	MarketCapitalization float64 `json:"marketCapitalization"`
	Name                 string  `json:"name"`
	ShareOutstanding     float64 `json:"shareOutstanding"`
	Ticker               string  `json:"ticker"`
}

func (c *Client) fetchProfile(ctx context.Context, symbol string) (*companyProfile, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var profile companyProfile
	if err := c.fetch(ctx, "/stock/profile2", params, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// metricsResponse is the /stock/metric payload. The metric map mixes
// numbers, strings and nulls, so values are extracted defensively.
type metricsResponse struct {
	Metric map[string]any `json:"metric"`
}

func (c *Client) fetchMetrics(ctx context.Context, symbol string) (map[string]any, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("metric", "all")

	var parsed metricsResponse
	if err := c.fetch(ctx, "/stock/metric", params, &parsed); err != nil {
		return nil, err
	}
	return parsed.Metric, nil
}

// earningsEntry is one row of the /calendar/earnings payload. Estimates
// and actuals are null before they are known.
type earningsEntry struct {
	Date        string   `json:"date"`
	EPSActual   *float64 `json:"epsActual"`
	EPSEstimate *float64 `json:"epsEstimate"`
	Hour        string   `json:"hour"`
	Quarter     int      `json:"quarter"`
	Symbol      string   `json:"symbol"`
	Year        int      `json:"year"`
}

type earningsCalendarResponse struct {
	EarningsCalendar []earningsEntry `json:"earningsCalendar"`
}

func (c *Client) fetchEarningsCalendar(ctx context.Context, symbol string, from, to time.Time) ([]earningsEntry, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("from", from.Format("2006-01-02"))
	params.Set("to", to.Format("2006-01-02"))

	var parsed earningsCalendarResponse
	if err := c.fetch(ctx, "/calendar/earnings", params, &parsed); err != nil {
		return nil, err
	}
	return parsed.EarningsCalendar, nil
}

// metricValue extracts the first numeric hit among the given metric keys.
// Finnhub renames metrics between plan generations, so lookups carry
// fallback key spellings.
func metricValue(metric map[string]any, keys ...string) *float64 {
	for _, key := range keys {
		raw, ok := metric[key]
		if !ok || raw == nil {
			continue
		}
		if v, ok := raw.(float64); ok {
			value := v
			return &value
		}
	}
	return nil
}
