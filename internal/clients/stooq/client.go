// Package stooq implements the Stooq source adapter. Stooq serves daily
// OHLCV history as plain CSV with no API key, which makes it a natural
// middle fallback between Yahoo and the quota-bound Alpha Vantage. It
// serves nothing but daily price history.
package stooq

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/datafeed/internal/domain"
	"github.com/aristath/datafeed/internal/marketdata"
	"github.com/rs/zerolog"
)

// SourceName is the identifier this adapter registers under.
const SourceName = "stooq"

const defaultBaseURL = "https://stooq.com"

// Client fetches CSV history from Stooq.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient creates a Stooq client.
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.With().Str("client", "stooq").Logger(),
	}
}

// SetTimeout overrides the per-request HTTP timeout.
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.http.Timeout = d
	}
}

// Name identifies the adapter in chains, breakers and provenance tags.
func (c *Client) Name() string {
	return SourceName
}

// Available is always true: Stooq is keyless.
func (c *Client) Available() bool {
	return true
}

// PriceHistory fetches the daily OHLCV series. Stooq always returns the
// complete history, so the series is trimmed to the requested period.
func (c *Client) PriceHistory(ctx context.Context, symbol string, period domain.Period) (*domain.PriceHistory, error) {
	body, err := c.fetchCSV(ctx, symbol)
	if err != nil {
		return nil, err
	}

	bars, err := parseCSV(body)
	if err != nil {
		return nil, &marketdata.ProviderUnavailableError{Source: SourceName, Reason: "malformed CSV payload", Err: err}
	}
	if len(bars) == 0 {
		return nil, &marketdata.DataNotFoundError{Source: SourceName, Symbol: symbol}
	}

	if cutoff, bounded := period.CutoffFrom(time.Now()); bounded {
		firstInside := len(bars)
		for i, bar := range bars {
			if !bar.Date.Before(cutoff) {
				firstInside = i
				break
			}
		}
		bars = bars[firstInside:]
	}
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

// fetchCSV runs one download request and classifies failures.
func (c *Client) fetchCSV(ctx context.Context, symbol string) ([]byte, error) {
	u := fmt.Sprintf("%s/q/d/l/?s=%s&i=d", c.baseURL, url.QueryEscape(stooqSymbol(symbol)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &marketdata.ProviderUnavailableError{Source: SourceName, Err: err}
	}

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
			Reason: fmt.Sprintf("status %d", resp.StatusCode),
		}
	}

	// Unknown symbols answer 200 with a plain "No data" body. Daily
	// download throttling answers 200 with "Exceeded the daily hits limit".
	trimmed := strings.TrimSpace(string(body))
	if strings.EqualFold(trimmed, "No data") {
		return nil, &marketdata.DataNotFoundError{Source: SourceName, Symbol: symbol}
	}
	if strings.Contains(trimmed, "Exceeded the daily hits limit") {
		return nil, &marketdata.RateLimitError{Source: SourceName}
	}
	return body, nil
}

// stooqSymbol converts a canonical symbol to Stooq's vocabulary: lowercase
// with a market suffix, defaulting bare tickers to the US market.
func stooqSymbol(symbol string) string {
	s := strings.ToLower(strings.TrimSpace(symbol))
	if s == "" {
		return s
	}
	if !strings.Contains(s, ".") {
		s += ".us"
	}
	return s
}

// parseCSV reads the download payload: a Date,Open,High,Low,Close,Volume
// header followed by ascending daily rows. Rows with unparseable dates or
// prices are skipped.
func parseCSV(body []byte) ([]domain.Bar, error) {
	reader := csv.NewReader(strings.NewReader(string(body)))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, nil
	}

	bars := make([]domain.Bar, 0, len(records)-1)
	for _, record := range records[1:] {
		if len(record) < 5 {
			continue
		}
		date, err := time.Parse("2006-01-02", strings.TrimSpace(record[0]))
		if err != nil {
			continue
		}

		open, err1 := strconv.ParseFloat(record[1], 64)
		high, err2 := strconv.ParseFloat(record[2], 64)
		low, err3 := strconv.ParseFloat(record[3], 64)
		closePrice, err4 := strconv.ParseFloat(record[4], 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			continue
		}

		bar := domain.Bar{
			Date:  date,
			Open:  open,
			High:  high,
			Low:   low,
			Close: closePrice,
		}
		if len(record) > 5 {
			if volume, err := strconv.ParseFloat(record[5], 64); err == nil {
				bar.Volume = int64(volume)
			}
		}
		bars = append(bars, bar)
	}
	return bars, nil
}
