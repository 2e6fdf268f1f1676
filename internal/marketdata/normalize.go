package marketdata

import (
	"math"

	"github.com/aristath/datafeed/internal/domain"
)

// FieldMap is one adapter's sparse contribution to the canonical
// fundamentals schema: canonical field name to value, nil for
// not-reported. Adapters build these declaratively from their upstream
// payloads; nothing source-specific leaks past this boundary.
type FieldMap map[string]*float64

// percentFields are the canonical fields stored in percent form. Upstreams
// disagree on units for these: some report 0.253, others 25.3.
var percentFields = map[string]bool{
	domain.FieldReturnOnEquity:  true,
	domain.FieldReturnOnAssets:  true,
	domain.FieldRevenueGrowth:   true,
	domain.FieldEarningsGrowth:  true,
	domain.FieldProfitMargin:    true,
	domain.FieldOperatingMargin: true,
	domain.FieldDividendYield:   true,
}

// normalizePercent scales ratio-form values to percent. The magnitude
// heuristic misreads genuine sub-1% percents and >100% growth reported as
// a ratio; upstream tolerance treats that as acceptable margin of error.
func normalizePercent(v float64) float64 {
	if math.Abs(v) < 1 {
		return v * 100
	}
	return v
}

// ApplyFieldMap writes every non-nil entry of fields into f, tagging each
// with the contributing source and normalizing percent-style fields.
// Unknown field names are dropped at this boundary.
func ApplyFieldMap(f *domain.Fundamentals, fields FieldMap, source string) {
	for name, value := range fields {
		if value == nil {
			continue
		}
		v := *value
		if percentFields[name] {
			v = normalizePercent(v)
		}
		f.SetField(name, v, source)
	}
}
