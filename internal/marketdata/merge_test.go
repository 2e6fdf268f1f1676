package marketdata

import (
	"testing"

	"github.com/aristath/datafeed/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFillMissing_EarlierSourceWins(t *testing.T) {
	primary := fundWith(map[string]float64{
		domain.FieldPERatio: 1,
	})
	secondary := fundWith(map[string]float64{
		domain.FieldPERatio: 2,
		domain.FieldEPS:     3,
	})

	merged := &domain.Fundamentals{Symbol: "TEST"}
	require.Equal(t, 1, fillMissing(merged, primary, "primary", nil))
	require.Equal(t, 1, fillMissing(merged, secondary, "secondary", nil))

	assert.Equal(t, 1.0, *merged.Value(domain.FieldPERatio))
	assert.Equal(t, 3.0, *merged.Value(domain.FieldEPS))
	assert.Equal(t, "primary", merged.FieldSources[domain.FieldPERatio])
	assert.Equal(t, "secondary", merged.FieldSources[domain.FieldEPS])
}

func TestFillMissing_RestrictedToRequestedFields(t *testing.T) {
	src := fundWith(map[string]float64{
		domain.FieldEPS:       4.2,
		domain.FieldMarketCap: 3e11,
		domain.FieldBeta:      1.1,
	})

	merged := &domain.Fundamentals{Symbol: "TEST"}
	filled := fillMissing(merged, src, "narrow", []string{domain.FieldEPS, domain.FieldBeta})

	assert.Equal(t, 2, filled)
	assert.Equal(t, 4.2, *merged.Value(domain.FieldEPS))
	assert.Equal(t, 1.1, *merged.Value(domain.FieldBeta))
	assert.Nil(t, merged.Value(domain.FieldMarketCap))
}

func TestFillMissing_NilSource(t *testing.T) {
	merged := &domain.Fundamentals{Symbol: "TEST"}
	assert.Zero(t, fillMissing(merged, nil, "ghost", nil))
	assert.True(t, merged.IsEmpty())
}

func TestMissingFields(t *testing.T) {
	f := fundWith(map[string]float64{
		domain.FieldPERatio: 10,
		domain.FieldEPS:     2,
	})

	missing := missingFields(f, []string{domain.FieldPERatio, domain.FieldEPS, domain.FieldBeta})
	assert.Equal(t, []string{domain.FieldBeta}, missing)

	all := missingFields(f, nil)
	assert.Len(t, all, len(domain.FundamentalFields)-2)
	assert.NotContains(t, all, domain.FieldPERatio)
	assert.NotContains(t, all, domain.FieldEPS)

	assert.Empty(t, missingFields(f, []string{domain.FieldPERatio}))
}
