// Package domain provides core domain models and types.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Period represents a named lookback window for historical price data.
// Periods follow the range vocabulary used by the upstream chart APIs.
type Period string

const (
	Period1D  Period = "1d"
	Period5D  Period = "5d"
	Period1M  Period = "1mo"
	Period3M  Period = "3mo"
	Period6M  Period = "6mo"
	PeriodYTD Period = "ytd"
	Period1Y  Period = "1y"
	Period2Y  Period = "2y"
	Period5Y  Period = "5y"
	Period10Y Period = "10y"
	PeriodMax Period = "max"
)

// periodRank orders periods by the span they cover. A cached series fetched
// for a higher-ranked period fully contains every lower-ranked request.
// YTD sits between 6mo and 1y: a ytd request reaches back at most one year,
// so 1y and wider always contain it. The rank says nothing about what a ytd
// series itself contains; Covers handles that separately.
var periodRank = map[Period]int{
	Period1D:  1,
	Period5D:  2,
	Period1M:  3,
	Period3M:  4,
	Period6M:  5,
	PeriodYTD: 6,
	Period1Y:  7,
	Period2Y:  8,
	Period5Y:  9,
	Period10Y: 10,
	PeriodMax: 11,
}

// ParsePeriod validates a period string and returns the typed value.
func ParsePeriod(s string) (Period, error) {
	p := Period(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := periodRank[p]; !ok {
		return "", fmt.Errorf("unknown period: %q", s)
	}
	return p, nil
}

// Valid reports whether the period is one of the known range names.
func (p Period) Valid() bool {
	_, ok := periodRank[p]
	return ok
}

// Covers reports whether a series fetched for period p contains all data a
// request for period other would need. A YTD series is anchored to Jan 1 and
// holds only weeks of data early in the year, so it covers nothing but
// another YTD request.
func (p Period) Covers(other Period) bool {
	pr, ok1 := periodRank[p]
	or, ok2 := periodRank[other]
	if !ok1 || !ok2 {
		return false
	}
	if p == PeriodYTD {
		return other == PeriodYTD
	}
	return pr >= or
}

// CutoffFrom returns the earliest bar date a request for this period needs,
// relative to now. The second return is false when the period is unbounded
// (max) and no trimming applies.
func (p Period) CutoffFrom(now time.Time) (time.Time, bool) {
	switch p {
	case Period1D:
		return now.AddDate(0, 0, -1), true
	case Period5D:
		// Five trading days span a full calendar week plus weekend
		return now.AddDate(0, 0, -7), true
	case Period1M:
		return now.AddDate(0, -1, 0), true
	case Period3M:
		return now.AddDate(0, -3, 0), true
	case Period6M:
		return now.AddDate(0, -6, 0), true
	case PeriodYTD:
		return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location()), true
	case Period1Y:
		return now.AddDate(-1, 0, 0), true
	case Period2Y:
		return now.AddDate(-2, 0, 0), true
	case Period5Y:
		return now.AddDate(-5, 0, 0), true
	case Period10Y:
		return now.AddDate(-10, 0, 0), true
	default:
		return time.Time{}, false
	}
}

// Intraday bar intervals supported by the upstream chart APIs.
const (
	Interval1Min  = "1m"
	Interval5Min  = "5m"
	Interval15Min = "15m"
	Interval30Min = "30m"
	Interval60Min = "60m"
)

// ValidIntradayInterval reports whether the interval is one we pass upstream.
func ValidIntradayInterval(interval string) bool {
	switch interval {
	case Interval1Min, Interval5Min, Interval15Min, Interval30Min, Interval60Min:
		return true
	}
	return false
}

// Bar represents a single OHLCV price point.
type Bar struct {
	Date     time.Time `json:"date"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	AdjClose *float64  `json:"adj_close,omitempty"`
	Volume   int64     `json:"volume"`
}

// PriceHistory holds an ordered OHLCV series for one symbol.
// Bars are sorted oldest first. Interval is empty for daily series.
type PriceHistory struct {
	Symbol   string `json:"symbol"`
	Period   Period `json:"period"`
	Interval string `json:"interval,omitempty"`
	Source   string `json:"source,omitempty"`
	Bars     []Bar  `json:"bars"`
}

// Quote represents a point-in-time price snapshot.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	PreviousClose float64   `json:"previous_close"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	AsOf          time.Time `json:"as_of"`
	Source        string    `json:"source,omitempty"`
}

// SecurityInfo holds descriptive metadata for a symbol. String fields are
// empty and pointer fields nil when the upstream source does not report them.
type SecurityInfo struct {
	Symbol           string   `json:"symbol"`
	Name             string   `json:"name,omitempty"`
	Sector           string   `json:"sector,omitempty"`
	Industry         string   `json:"industry,omitempty"`
	Exchange         string   `json:"exchange,omitempty"`
	Country          string   `json:"country,omitempty"`
	Currency         string   `json:"currency,omitempty"`
	QuoteType        string   `json:"quote_type,omitempty"`
	FiftyTwoWeekHigh *float64 `json:"fifty_two_week_high,omitempty"`
	FiftyTwoWeekLow  *float64 `json:"fifty_two_week_low,omitempty"`
	AverageVolume    *int64   `json:"average_volume,omitempty"`
	MarketCap        *float64 `json:"market_cap,omitempty"`
	Source           string   `json:"source,omitempty"`
}

// EarningsEvent represents one entry from an earnings calendar.
type EarningsEvent struct {
	Symbol      string    `json:"symbol"`
	ReportDate  time.Time `json:"report_date"`
	FiscalEnd   time.Time `json:"fiscal_end,omitempty"`
	EPSEstimate *float64  `json:"eps_estimate,omitempty"`
	EPSActual   *float64  `json:"eps_actual,omitempty"`
	Source      string    `json:"source,omitempty"`
}

// NormalizeSymbol canonicalizes a user-supplied symbol for lookups and cache
// keys: surrounding whitespace is stripped and the ticker is uppercased.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
