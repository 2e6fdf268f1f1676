package marketdata

import "github.com/aristath/datafeed/internal/domain"

// fillMissing copies into dst every field of src that dst still lacks,
// recording src's provenance for each field it contributes. Fields already
// filled in dst are never overwritten; earlier (higher-priority) sources
// always win. When only is non-empty the fill is restricted to those
// fields, otherwise every canonical field is considered.
// Returns the number of fields filled.
func fillMissing(dst, src *domain.Fundamentals, source string, only []string) int {
	if src == nil {
		return 0
	}

	names := only
	if len(names) == 0 {
		names = domain.FundamentalFields
	}

	filled := 0
	for _, name := range names {
		if dst.Value(name) != nil {
			continue
		}
		v := src.Value(name)
		if v == nil {
			continue
		}
		dst.SetField(name, *v, source)
		filled++
	}
	return filled
}

// missingFields returns the subset of names still null in f. With no names
// given it checks the full canonical field set.
func missingFields(f *domain.Fundamentals, names []string) []string {
	if len(names) == 0 {
		names = domain.FundamentalFields
	}

	var missing []string
	for _, name := range names {
		if f.Value(name) == nil {
			missing = append(missing, name)
		}
	}
	return missing
}
