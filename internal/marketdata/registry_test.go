package marketdata

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_OmitsUnavailableSources(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	configured := &fakeHistorySource{name: "alpha", available: true}
	unconfigured := &fakeHistorySource{name: "beta", available: false}
	reg.AddPriceHistory(configured, unconfigured, nil)

	chain := reg.PriceHistoryChain()
	require.Len(t, chain, 1)
	assert.Equal(t, "alpha", chain[0].Name())
}

func TestRegistry_PreservesPriority(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	reg.AddQuote(
		&fakeQuoteSource{name: "alpha", available: true},
		&fakeQuoteSource{name: "beta", available: true},
		&fakeQuoteSource{name: "gamma", available: true},
	)

	chain := reg.QuoteChain()
	require.Len(t, chain, 3)
	assert.Equal(t, "alpha", chain[0].Name())
	assert.Equal(t, "beta", chain[1].Name())
	assert.Equal(t, "gamma", chain[2].Name())
}

func TestSetFundamentals_DropsUnavailableTiers(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	reg.SetFundamentals(FundamentalsTiers{
		Primary:   &fakeFundamentalsSource{name: "alpha", available: true},
		Secondary: &fakeFundamentalsSource{name: "beta", available: false},
		Fallback:  &fakeFundamentalsSource{name: "gamma", available: true},
		GapFields: []string{"eps"},
	})

	tiers := reg.Fundamentals()
	require.NotNil(t, tiers)
	assert.Equal(t, "alpha", tiers.Primary.Name())
	assert.Nil(t, tiers.Secondary)
	assert.Equal(t, "gamma", tiers.Fallback.Name())
	assert.Equal(t, []string{"eps"}, tiers.GapFields)
}

func TestSetFundamentals_PromotesSecondaryWhenPrimaryMissing(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	reg.SetFundamentals(FundamentalsTiers{
		Primary:   &fakeFundamentalsSource{name: "alpha", available: false},
		Secondary: &fakeFundamentalsSource{name: "beta", available: true},
		GapFields: []string{"eps"},
	})

	tiers := reg.Fundamentals()
	require.NotNil(t, tiers)
	assert.Equal(t, "beta", tiers.Primary.Name())
	assert.Nil(t, tiers.Secondary)
	assert.Nil(t, tiers.GapFields, "gap list belongs to the original primary")
}

func TestSetFundamentals_PromotesFallbackAsLastResort(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	reg.SetFundamentals(FundamentalsTiers{
		Fallback: &fakeFundamentalsSource{name: "gamma", available: true},
	})

	tiers := reg.Fundamentals()
	require.NotNil(t, tiers)
	assert.Equal(t, "gamma", tiers.Primary.Name())
	assert.Nil(t, tiers.Secondary)
	assert.Nil(t, tiers.Fallback)
}

func TestSetFundamentals_NothingAvailable(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	reg.SetFundamentals(FundamentalsTiers{
		Primary: &fakeFundamentalsSource{name: "alpha", available: false},
	})
	assert.Nil(t, reg.Fundamentals())
}
