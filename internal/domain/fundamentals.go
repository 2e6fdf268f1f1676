package domain

// Canonical fundamental field names. These are the merge keys used when
// combining partial snapshots from multiple sources, and the keys of
// Fundamentals.FieldSources. Ratio-style metrics (margins, growth, returns,
// yield) are stored in percent form.
const (
	FieldPERatio         = "pe_ratio"
	FieldForwardPE       = "forward_pe"
	FieldPEGRatio        = "peg_ratio"
	FieldPriceToBook     = "price_to_book"
	FieldEPS             = "eps"
	FieldBeta            = "beta"
	FieldReturnOnEquity  = "return_on_equity"
	FieldReturnOnAssets  = "return_on_assets"
	FieldDebtToEquity    = "debt_to_equity"
	FieldCurrentRatio    = "current_ratio"
	FieldRevenueGrowth   = "revenue_growth"
	FieldEarningsGrowth  = "earnings_growth"
	FieldProfitMargin    = "profit_margin"
	FieldOperatingMargin = "operating_margin"
	FieldMarketCap       = "market_cap"
	FieldDividendYield   = "dividend_yield"
)

// FundamentalFields lists every metric field in canonical order.
var FundamentalFields = []string{
	FieldPERatio,
	FieldForwardPE,
	FieldPEGRatio,
	FieldPriceToBook,
	FieldEPS,
	FieldBeta,
	FieldReturnOnEquity,
	FieldReturnOnAssets,
	FieldDebtToEquity,
	FieldCurrentRatio,
	FieldRevenueGrowth,
	FieldEarningsGrowth,
	FieldProfitMargin,
	FieldOperatingMargin,
	FieldMarketCap,
	FieldDividendYield,
}

// Fundamentals holds valuation and financial-health metrics for one symbol.
// Every metric is optional; nil means the contributing sources did not report
// it. FieldSources records which source supplied each non-nil field.
type Fundamentals struct {
	Symbol string `json:"symbol"`
	// Source is the primary provenance tag: the first successful adapter,
	// or "cache"/"stale_cache" when served from storage.
	Source string `json:"source,omitempty"`

	PERatio         *float64 `json:"pe_ratio,omitempty"`
	ForwardPE       *float64 `json:"forward_pe,omitempty"`
	PEGRatio        *float64 `json:"peg_ratio,omitempty"`
	PriceToBook     *float64 `json:"price_to_book,omitempty"`
	EPS             *float64 `json:"eps,omitempty"`
	Beta            *float64 `json:"beta,omitempty"`
	ReturnOnEquity  *float64 `json:"return_on_equity,omitempty"`
	ReturnOnAssets  *float64 `json:"return_on_assets,omitempty"`
	DebtToEquity    *float64 `json:"debt_to_equity,omitempty"`
	CurrentRatio    *float64 `json:"current_ratio,omitempty"`
	RevenueGrowth   *float64 `json:"revenue_growth,omitempty"`
	EarningsGrowth  *float64 `json:"earnings_growth,omitempty"`
	ProfitMargin    *float64 `json:"profit_margin,omitempty"`
	OperatingMargin *float64 `json:"operating_margin,omitempty"`
	MarketCap       *float64 `json:"market_cap,omitempty"`
	DividendYield   *float64 `json:"dividend_yield,omitempty"`

	FieldSources map[string]string `json:"field_sources,omitempty"`
}

// fieldPtr returns the address of the named metric field, nil for unknown names.
func (f *Fundamentals) fieldPtr(name string) **float64 {
	switch name {
	case FieldPERatio:
		return &f.PERatio
	case FieldForwardPE:
		return &f.ForwardPE
	case FieldPEGRatio:
		return &f.PEGRatio
	case FieldPriceToBook:
		return &f.PriceToBook
	case FieldEPS:
		return &f.EPS
	case FieldBeta:
		return &f.Beta
	case FieldReturnOnEquity:
		return &f.ReturnOnEquity
	case FieldReturnOnAssets:
		return &f.ReturnOnAssets
	case FieldDebtToEquity:
		return &f.DebtToEquity
	case FieldCurrentRatio:
		return &f.CurrentRatio
	case FieldRevenueGrowth:
		return &f.RevenueGrowth
	case FieldEarningsGrowth:
		return &f.EarningsGrowth
	case FieldProfitMargin:
		return &f.ProfitMargin
	case FieldOperatingMargin:
		return &f.OperatingMargin
	case FieldMarketCap:
		return &f.MarketCap
	case FieldDividendYield:
		return &f.DividendYield
	}
	return nil
}

// Value returns the named metric, nil when unset or unknown.
func (f *Fundamentals) Value(name string) *float64 {
	p := f.fieldPtr(name)
	if p == nil {
		return nil
	}
	return *p
}

// SetValue assigns the named metric. Unknown names are ignored.
func (f *Fundamentals) SetValue(name string, v *float64) {
	p := f.fieldPtr(name)
	if p == nil {
		return
	}
	*p = v
}

// SetField assigns the named metric and records its source.
func (f *Fundamentals) SetField(name string, v float64, source string) {
	p := f.fieldPtr(name)
	if p == nil {
		return
	}
	val := v
	*p = &val
	if source != "" {
		if f.FieldSources == nil {
			f.FieldSources = make(map[string]string)
		}
		f.FieldSources[name] = source
	}
}

// FilledCount returns how many metric fields are set.
func (f *Fundamentals) FilledCount() int {
	count := 0
	for _, name := range FundamentalFields {
		if f.Value(name) != nil {
			count++
		}
	}
	return count
}

// IsEmpty reports whether no metric field is set.
func (f *Fundamentals) IsEmpty() bool {
	return f.FilledCount() == 0
}
