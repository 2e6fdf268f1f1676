// Package alphavantage implements the Alpha Vantage source adapter. The
// free tier is narrow (25 requests per day) so the adapter stays thin:
// admission control belongs to the shared rate limiter and responses are
// cached by the orchestrator, never here. Every payload value arrives as a
// string, including numbers, hence the parse helpers.
package alphavantage

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// SourceName is the identifier this adapter registers under.
const SourceName = "alphavantage"

const defaultBaseURL = "https://www.alphavantage.co"

// ClientInterface captures the upstream calls the adapter layer consumes.
type ClientInterface interface {
	DailySeries(ctx context.Context, symbol string, full bool) ([]DailyPrice, error)
	IntradaySeries(ctx context.Context, symbol, interval string) ([]DailyPrice, error)
	CompanyOverview(ctx context.Context, symbol string) (*CompanyOverview, error)
	GlobalQuote(ctx context.Context, symbol string) (*GlobalQuote, error)
	EarningsCalendar(ctx context.Context, symbol string) ([]EarningsCalendarEntry, error)
}

// Client talks to the Alpha Vantage query API.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient creates an Alpha Vantage client. An empty API key produces a
// client that reports itself unavailable rather than failing calls.
func NewClient(apiKey string, log zerolog.Logger) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.With().Str("client", "alphavantage").Logger(),
	}
}

// SetTimeout overrides the per-request HTTP timeout.
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.http.Timeout = d
	}
}

// --- error types -----------------------------------------------------------

// ErrRateLimitExceeded signals the upstream throttled the request, either
// per-minute or because the daily ceiling is spent.
type ErrRateLimitExceeded struct{}

func (e ErrRateLimitExceeded) Error() string {
	return "alphavantage: rate limit exceeded"
}

// ErrInvalidAPIKey signals rejected credentials.
type ErrInvalidAPIKey struct{}

func (e ErrInvalidAPIKey) Error() string {
	return "alphavantage: invalid API key"
}

// ErrSymbolNotFound signals an empty payload for an unknown symbol.
type ErrSymbolNotFound struct {
	Symbol string
}

func (e ErrSymbolNotFound) Error() string {
	return fmt.Sprintf("alphavantage: symbol not found: %s", e.Symbol)
}

// --- transport -------------------------------------------------------------

// fetch runs one query API request. Alpha Vantage reports most failures
// inside a 200 body, so the payload is screened before parsing.
func (c *Client) fetch(ctx context.Context, params url.Values) ([]byte, error) {
	params.Set("apikey", c.apiKey)
	u := c.baseURL + "/query?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("alphavantage: build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("alphavantage: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("alphavantage: read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return nil, ErrRateLimitExceeded{}
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, ErrInvalidAPIKey{}
	default:
		return nil, fmt.Errorf("alphavantage: unexpected status %d", resp.StatusCode)
	}

	if err := c.checkAPIError(body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkAPIError detects the error envelopes Alpha Vantage hides inside 200
// responses: "Note" and "Information" for throttling, "Error Message" for
// bad calls, and a plain-text premium upsell once the daily budget is gone.
func (c *Client) checkAPIError(body []byte) error {
	trimmed := bytes.TrimSpace(body)
	if !bytes.HasPrefix(trimmed, []byte("{")) {
		if bytes.Contains(trimmed, []byte("Thank you for using Alpha Vantage")) {
			return ErrRateLimitExceeded{}
		}
		return nil
	}

	var envelope struct {
		Note         string `json:"Note"`
		Information  string `json:"Information"`
		ErrorMessage string `json:"Error Message"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		// Not an envelope; let the endpoint parser complain instead
		return nil
	}

	switch {
	case envelope.Note != "":
		return ErrRateLimitExceeded{}
	case envelope.Information != "":
		// The free tier reports daily ceiling exhaustion via Information
		return ErrRateLimitExceeded{}
	case envelope.ErrorMessage != "":
		if strings.Contains(strings.ToLower(envelope.ErrorMessage), "apikey") {
			return ErrInvalidAPIKey{}
		}
		return fmt.Errorf("alphavantage: %s", envelope.ErrorMessage)
	}
	return nil
}

// --- endpoints -------------------------------------------------------------

// DailyPrice is one OHLCV row from a time series endpoint. Intraday rows
// reuse the shape; Date then carries the bar timestamp.
type DailyPrice struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// DailySeries fetches the daily OHLCV series for a symbol, newest first.
// full selects the complete 20+ year history instead of the latest 100 rows.
func (c *Client) DailySeries(ctx context.Context, symbol string, full bool) ([]DailyPrice, error) {
	params := url.Values{}
	params.Set("function", "TIME_SERIES_DAILY")
	params.Set("symbol", symbol)
	params.Set("outputsize", "compact")
	if full {
		params.Set("outputsize", "full")
	}

	c.log.Debug().Str("symbol", symbol).Bool("full", full).Msg("Fetching daily series")
	body, err := c.fetch(ctx, params)
	if err != nil {
		return nil, err
	}

	prices, err := parseDailyTimeSeries(body)
	if err != nil {
		return nil, err
	}
	if len(prices) == 0 {
		return nil, ErrSymbolNotFound{Symbol: symbol}
	}
	return prices, nil
}

// IntradaySeries fetches intraday OHLCV bars, newest first. interval uses
// the upstream vocabulary: 1min, 5min, 15min, 30min, 60min.
func (c *Client) IntradaySeries(ctx context.Context, symbol, interval string) ([]DailyPrice, error) {
	params := url.Values{}
	params.Set("function", "TIME_SERIES_INTRADAY")
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("outputsize", "compact")

	c.log.Debug().Str("symbol", symbol).Str("interval", interval).Msg("Fetching intraday series")
	body, err := c.fetch(ctx, params)
	if err != nil {
		return nil, err
	}

	prices, err := parseIntradayTimeSeries(body)
	if err != nil {
		return nil, err
	}
	if len(prices) == 0 {
		return nil, ErrSymbolNotFound{Symbol: symbol}
	}
	return prices, nil
}

// CompanyOverview fetches fundamentals and descriptive metadata.
func (c *Client) CompanyOverview(ctx context.Context, symbol string) (*CompanyOverview, error) {
	params := url.Values{}
	params.Set("function", "OVERVIEW")
	params.Set("symbol", symbol)

	c.log.Debug().Str("symbol", symbol).Msg("Fetching company overview")
	body, err := c.fetch(ctx, params)
	if err != nil {
		return nil, err
	}

	overview, err := parseCompanyOverview(body)
	if err != nil {
		return nil, err
	}
	// Unknown symbols come back as an empty object
	if overview.Symbol == "" {
		return nil, ErrSymbolNotFound{Symbol: symbol}
	}
	return overview, nil
}

// GlobalQuote fetches the latest quote snapshot for a symbol.
func (c *Client) GlobalQuote(ctx context.Context, symbol string) (*GlobalQuote, error) {
	params := url.Values{}
	params.Set("function", "GLOBAL_QUOTE")
	params.Set("symbol", symbol)

	c.log.Debug().Str("symbol", symbol).Msg("Fetching global quote")
	body, err := c.fetch(ctx, params)
	if err != nil {
		return nil, err
	}

	quote, err := parseGlobalQuote(body)
	if err != nil {
		return nil, err
	}
	if quote.Symbol == "" {
		return nil, ErrSymbolNotFound{Symbol: symbol}
	}
	return quote, nil
}

// EarningsCalendar fetches upcoming earnings events for a symbol over the
// next three months, soonest first. This endpoint answers in CSV.
func (c *Client) EarningsCalendar(ctx context.Context, symbol string) ([]EarningsCalendarEntry, error) {
	params := url.Values{}
	params.Set("function", "EARNINGS_CALENDAR")
	params.Set("symbol", symbol)
	params.Set("horizon", "3month")

	c.log.Debug().Str("symbol", symbol).Msg("Fetching earnings calendar")
	body, err := c.fetch(ctx, params)
	if err != nil {
		return nil, err
	}
	return parseEarningsCalendar(body)
}

// --- payload types ---------------------------------------------------------

// CompanyOverview holds the OVERVIEW payload. Numeric fields are pointers:
// Alpha Vantage reports "None" or "-" for metrics it does not track, and
// that must stay distinguishable from a genuine zero.
type CompanyOverview struct {
	Symbol    string
	AssetType string
	Name      string
	Exchange  string
	Currency  string
	Country   string
	Sector    string
	Industry  string

	MarketCapitalization int64

	PERatio                    *float64
	ForwardPE                  *float64
	PEGRatio                   *float64
	PriceToBookRatio           *float64
	EPS                        *float64
	Beta                       *float64
	ReturnOnEquityTTM          *float64
	ReturnOnAssetsTTM          *float64
	ProfitMargin               *float64
	OperatingMarginTTM         *float64
	QuarterlyRevenueGrowthYOY  *float64
	QuarterlyEarningsGrowthYOY *float64
	DividendYield              *float64
	FiftyTwoWeekHigh           *float64
	FiftyTwoWeekLow            *float64
}

// GlobalQuote holds the GLOBAL_QUOTE payload.
type GlobalQuote struct {
	Symbol           string
	Open             float64
	High             float64
	Low              float64
	Price            float64
	Volume           int64
	LatestTradingDay time.Time
	PreviousClose    float64
	Change           float64
	ChangePercent    float64
}

// EarningsCalendarEntry is one upcoming earnings event.
type EarningsCalendarEntry struct {
	Symbol           string
	Name             string
	ReportDate       time.Time
	FiscalDateEnding time.Time
	Estimate         *float64
	Currency         string
}

// --- parsers ---------------------------------------------------------------

func parseDailyTimeSeries(body []byte) ([]DailyPrice, error) {
	var parsed struct {
		Series map[string]map[string]string `json:"Time Series (Daily)"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("alphavantage: parse daily series: %w", err)
	}
	return seriesToPrices(parsed.Series, parseDate), nil
}

// parseIntradayTimeSeries handles the interval-dependent series key
// ("Time Series (5min)" and friends) by scanning for the prefix.
func parseIntradayTimeSeries(body []byte) ([]DailyPrice, error) {
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(body, &sections); err != nil {
		return nil, fmt.Errorf("alphavantage: parse intraday series: %w", err)
	}

	for key, raw := range sections {
		if !strings.HasPrefix(key, "Time Series (") {
			continue
		}
		var series map[string]map[string]string
		if err := json.Unmarshal(raw, &series); err != nil {
			return nil, fmt.Errorf("alphavantage: parse intraday series: %w", err)
		}
		return seriesToPrices(series, parseDateTime), nil
	}
	return nil, nil
}

// seriesToPrices flattens a date-keyed series map and sorts it newest first.
func seriesToPrices(series map[string]map[string]string, parseTS func(string) time.Time) []DailyPrice {
	dates := make([]string, 0, len(series))
	for date := range series {
		dates = append(dates, date)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))

	prices := make([]DailyPrice, 0, len(dates))
	for _, date := range dates {
		row := series[date]
		ts := parseTS(date)
		if ts.IsZero() {
			continue
		}
		prices = append(prices, DailyPrice{
			Date:   ts,
			Open:   parseFloat64(row["1. open"]),
			High:   parseFloat64(row["2. high"]),
			Low:    parseFloat64(row["3. low"]),
			Close:  parseFloat64(row["4. close"]),
			Volume: parseInt64(row["5. volume"]),
		})
	}
	return prices
}

func parseGlobalQuote(body []byte) (*GlobalQuote, error) {
	var parsed struct {
		Quote map[string]string `json:"Global Quote"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("alphavantage: parse global quote: %w", err)
	}

	q := parsed.Quote
	return &GlobalQuote{
		Symbol:           q["01. symbol"],
		Open:             parseFloat64(q["02. open"]),
		High:             parseFloat64(q["03. high"]),
		Low:              parseFloat64(q["04. low"]),
		Price:            parseFloat64(q["05. price"]),
		Volume:           parseInt64(q["06. volume"]),
		LatestTradingDay: parseDate(q["07. latest trading day"]),
		PreviousClose:    parseFloat64(q["08. previous close"]),
		Change:           parseFloat64(q["09. change"]),
		ChangePercent:    parseFloat64(q["10. change percent"]),
	}, nil
}

func parseCompanyOverview(body []byte) (*CompanyOverview, error) {
	var raw map[string]string
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("alphavantage: parse company overview: %w", err)
	}

	return &CompanyOverview{
		Symbol:    raw["Symbol"],
		AssetType: raw["AssetType"],
		Name:      raw["Name"],
		Exchange:  raw["Exchange"],
		Currency:  raw["Currency"],
		Country:   raw["Country"],
		Sector:    raw["Sector"],
		Industry:  raw["Industry"],

		MarketCapitalization: parseInt64(raw["MarketCapitalization"]),

		PERatio:                    parseFloat64Ptr(raw["PERatio"]),
		ForwardPE:                  parseFloat64Ptr(raw["ForwardPE"]),
		PEGRatio:                   parseFloat64Ptr(raw["PEGRatio"]),
		PriceToBookRatio:           parseFloat64Ptr(raw["PriceToBookRatio"]),
		EPS:                        parseFloat64Ptr(raw["EPS"]),
		Beta:                       parseFloat64Ptr(raw["Beta"]),
		ReturnOnEquityTTM:          parseFloat64Ptr(raw["ReturnOnEquityTTM"]),
		ReturnOnAssetsTTM:          parseFloat64Ptr(raw["ReturnOnAssetsTTM"]),
		ProfitMargin:               parseFloat64Ptr(raw["ProfitMargin"]),
		OperatingMarginTTM:         parseFloat64Ptr(raw["OperatingMarginTTM"]),
		QuarterlyRevenueGrowthYOY:  parseFloat64Ptr(raw["QuarterlyRevenueGrowthYOY"]),
		QuarterlyEarningsGrowthYOY: parseFloat64Ptr(raw["QuarterlyEarningsGrowthYOY"]),
		DividendYield:              parseFloat64Ptr(raw["DividendYield"]),
		FiftyTwoWeekHigh:           parseFloat64Ptr(raw["52WeekHigh"]),
		FiftyTwoWeekLow:            parseFloat64Ptr(raw["52WeekLow"]),
	}, nil
}

// parseEarningsCalendar reads the CSV calendar payload. Header columns:
// symbol,name,reportDate,fiscalDateEnding,estimate,currency.
func parseEarningsCalendar(body []byte) ([]EarningsCalendarEntry, error) {
	reader := csv.NewReader(bytes.NewReader(body))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("alphavantage: parse earnings calendar: %w", err)
	}
	if len(records) < 2 {
		return nil, nil
	}

	col := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		col[strings.TrimSpace(name)] = i
	}
	field := func(record []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	entries := make([]EarningsCalendarEntry, 0, len(records)-1)
	for _, record := range records[1:] {
		report := parseDate(field(record, "reportDate"))
		if report.IsZero() {
			continue
		}
		entries = append(entries, EarningsCalendarEntry{
			Symbol:           field(record, "symbol"),
			Name:             field(record, "name"),
			ReportDate:       report,
			FiscalDateEnding: parseDate(field(record, "fiscalDateEnding")),
			Estimate:         parseFloat64Ptr(field(record, "estimate")),
			Currency:         field(record, "currency"),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ReportDate.Before(entries[j].ReportDate)
	})
	return entries, nil
}

// --- value parsing ---------------------------------------------------------

// parseFloat64 parses a numeric string, tolerating the None/null/- markers
// and trailing percent signs the API mixes in. Unparseable input yields 0.
func parseFloat64(s string) float64 {
	s = strings.TrimSpace(s)
	switch s {
	case "", "None", "null", "-", ".":
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil {
		return 0
	}
	return v
}

// parseFloat64Ptr parses a numeric string where absence must stay
// distinguishable from zero.
func parseFloat64Ptr(s string) *float64 {
	s = strings.TrimSpace(s)
	switch s {
	case "", "None", "null", "-", ".":
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil {
		return nil
	}
	return &v
}

// parseInt64 parses an integer string, falling back through float for the
// scientific notation and decimal forms large counters arrive in.
func parseInt64(s string) int64 {
	s = strings.TrimSpace(s)
	switch s {
	case "", "None", "null", "-":
		return 0
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f)
	}
	return 0
}

// parseDate parses a YYYY-MM-DD date, returning the zero time on failure.
func parseDate(s string) time.Time {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}
	}
	return t
}

// parseDateTime parses an intraday timestamp, accepting a bare date too.
func parseDateTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	return parseDate(s)
}
