package marketdata

import (
	"testing"

	"github.com/aristath/datafeed/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestApplyFieldMap(t *testing.T) {
	f := &domain.Fundamentals{Symbol: "TEST"}
	ApplyFieldMap(f, FieldMap{
		domain.FieldPERatio:        floatPtr(24.3),
		domain.FieldReturnOnEquity: floatPtr(0.56),  // ratio form, must scale
		domain.FieldProfitMargin:   floatPtr(25.31), // already percent form
		domain.FieldEPS:            nil,             // not reported
		"shares_float":             floatPtr(1e9),   // not a canonical field
	}, "alpha")

	assert.Equal(t, 24.3, *f.Value(domain.FieldPERatio))
	assert.Equal(t, 56.0, *f.Value(domain.FieldReturnOnEquity))
	assert.Equal(t, 25.31, *f.Value(domain.FieldProfitMargin))
	assert.Nil(t, f.Value(domain.FieldEPS))
	assert.Equal(t, 3, f.FilledCount(), "unknown names must be dropped")
	assert.Equal(t, "alpha", f.FieldSources[domain.FieldReturnOnEquity])
}

func TestNormalizePercent(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"ratio scales up", 0.253, 25.3},
		{"percent passes through", 25.3, 25.3},
		{"negative ratio scales up", -0.12, -12.0},
		{"negative percent passes through", -12.0, -12.0},
		{"zero stays zero", 0, 0},
		{"exactly one passes through", 1.0, 1.0},
		{"sub-percent yield scales, documented misread risk", 0.0044, 0.44},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, normalizePercent(tt.in), 1e-9)
		})
	}
}

func TestApplyFieldMap_NonPercentFieldsNeverScaled(t *testing.T) {
	f := &domain.Fundamentals{Symbol: "TEST"}
	ApplyFieldMap(f, FieldMap{
		domain.FieldBeta:    floatPtr(0.85),
		domain.FieldPERatio: floatPtr(0.5),
	}, "alpha")

	assert.Equal(t, 0.85, *f.Value(domain.FieldBeta))
	assert.Equal(t, 0.5, *f.Value(domain.FieldPERatio))
}
