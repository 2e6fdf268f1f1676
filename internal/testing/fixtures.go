package testing

import (
	"time"

	"github.com/aristath/datafeed/internal/domain"
)

// DailyBars returns n ascending daily OHLCV bars ending yesterday. Prices
// climb by one unit per day so assertions can target specific bars.
func DailyBars(n int) []domain.Bar {
	bars := make([]domain.Bar, n)
	start := time.Now().AddDate(0, 0, -n)
	for i := 0; i < n; i++ {
		adj := 100.5 + float64(i)
		bars[i] = domain.Bar{
			Date:     start.AddDate(0, 0, i),
			Open:     100.0 + float64(i),
			High:     101.5 + float64(i),
			Low:      99.5 + float64(i),
			Close:    100.5 + float64(i),
			AdjClose: &adj,
			Volume:   1_000_000 + int64(i)*1000,
		}
	}
	return bars
}

// PriceHistoryFixture returns a daily series with n bars attributed to the
// given source.
func PriceHistoryFixture(symbol, source string, period domain.Period, n int) *domain.PriceHistory {
	return &domain.PriceHistory{
		Symbol: symbol,
		Period: period,
		Source: source,
		Bars:   DailyBars(n),
	}
}

// QuoteFixture returns a plausible quote snapshot.
func QuoteFixture(symbol, source string) *domain.Quote {
	return &domain.Quote{
		Symbol:        symbol,
		Price:         227.52,
		PreviousClose: 225.77,
		Change:        1.75,
		ChangePercent: 0.7751,
		AsOf:          time.Now().Add(-time.Minute),
		Source:        source,
	}
}

// FundamentalsFixture returns a partial fundamentals snapshot with
// provenance tags, the shape a single adapter would produce.
func FundamentalsFixture(symbol, source string) *domain.Fundamentals {
	f := &domain.Fundamentals{Symbol: symbol, Source: source}
	f.SetField(domain.FieldPERatio, 34.2, source)
	f.SetField(domain.FieldEPS, 6.64, source)
	f.SetField(domain.FieldReturnOnEquity, 147.25, source)
	f.SetField(domain.FieldProfitMargin, 26.44, source)
	f.SetField(domain.FieldMarketCap, 3.45e12, source)
	return f
}

// SecurityInfoFixture returns descriptive metadata for a symbol.
func SecurityInfoFixture(symbol, source string) *domain.SecurityInfo {
	return &domain.SecurityInfo{
		Symbol:           symbol,
		Name:             "Test Corporation",
		Sector:           "Technology",
		Industry:         "Consumer Electronics",
		Exchange:         "NMS",
		Country:          "United States",
		Currency:         "USD",
		QuoteType:        "EQUITY",
		FiftyTwoWeekHigh: FloatPtr(260.10),
		FiftyTwoWeekLow:  FloatPtr(169.21),
		AverageVolume:    IntPtr(54_000_000),
		MarketCap:        FloatPtr(3.45e12),
		Source:           source,
	}
}

// EarningsFixture returns an earnings event scheduled daysAhead from now.
func EarningsFixture(symbol, source string, daysAhead int) *domain.EarningsEvent {
	report := time.Now().AddDate(0, 0, daysAhead)
	return &domain.EarningsEvent{
		Symbol:      symbol,
		ReportDate:  time.Date(report.Year(), report.Month(), report.Day(), 0, 0, 0, 0, time.UTC),
		EPSEstimate: FloatPtr(1.54),
		Source:      source,
	}
}

// FloatPtr returns a pointer to the given float64.
func FloatPtr(f float64) *float64 {
	return &f
}

// IntPtr returns a pointer to the given int64.
func IntPtr(i int64) *int64 {
	return &i
}
