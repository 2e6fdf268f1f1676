package di

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aristath/datafeed/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testConfig mirrors the config.Load defaults over a temp data directory.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	return &config.Config{
		DataDir:     t.TempDir(),
		Port:        8090,
		LogLevel:    "info",
		HTTPTimeout: 15 * time.Second,

		Limits: config.LimitsConfig{
			Yahoo:        config.SourceLimit{PerMinute: 30},
			AlphaVantage: config.SourceLimit{PerMinute: 5, PerDay: 25},
			Finnhub:      config.SourceLimit{PerMinute: 60},
			Stooq:        config.SourceLimit{PerMinute: 30},
		},
		Breaker: config.BreakerConfig{
			FailureThreshold: 3,
			RecoveryTimeout:  5 * time.Minute,
			SuccessThreshold: 2,
		},
		Chains: config.ChainsConfig{
			PriceHistory: []string{"yahoo", "stooq", "alphavantage"},
			Intraday:     []string{"yahoo", "alphavantage"},
			Quote:        []string{"yahoo", "finnhub", "alphavantage"},
			SecurityInfo: []string{"yahoo", "alphavantage", "finnhub"},
			Earnings:     []string{"finnhub", "alphavantage"},

			FundamentalsPrimary:   "yahoo",
			FundamentalsSecondary: "alphavantage",
			FundamentalsFallback:  "finnhub",
		},
		Cache: config.CacheConfig{
			FundamentalsTTL:  7 * 24 * time.Hour,
			CloseBuffer:      time.Hour,
			CleanupRetention: 30 * 24 * time.Hour,
		},
	}
}

func wireContainer(t *testing.T, cfg *config.Config) *Container {
	t.Helper()

	container, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { container.Close() })
	return container
}

func TestWire_AssemblesCoreServices(t *testing.T) {
	cfg := testConfig(t)
	container := wireContainer(t, cfg)

	require.NotNil(t, container.CacheDB)
	require.NotNil(t, container.Cache)
	require.NotNil(t, container.Breakers)
	require.NotNil(t, container.Registry)
	require.NotNil(t, container.Orchestrator)
	require.NotNil(t, container.CleanupJob)
	require.NotNil(t, container.MaintenanceJob)

	// The cache database lands inside the data directory.
	_, err := os.Stat(filepath.Join(cfg.DataDir, "cache.db"))
	require.NoError(t, err)

	// One limiter per known source.
	assert.Len(t, container.Limiters, 4)
	for _, name := range []string{"yahoo", "alphavantage", "finnhub", "stooq"} {
		assert.Contains(t, container.Limiters, name)
	}

	// Backups and stream are off by default.
	assert.Nil(t, container.Backups)
	assert.Nil(t, container.BackupJob)
	assert.Nil(t, container.Stream)
}

func TestWire_KeylessConfigDropsCredentialedSources(t *testing.T) {
	cfg := testConfig(t) // no Alpha Vantage or Finnhub keys
	container := wireContainer(t, cfg)

	reg := container.Registry

	// Yahoo and Stooq are keyless; the credentialed sources fall out.
	assert.Len(t, reg.PriceHistoryChain(), 2)
	assert.Len(t, reg.IntradayChain(), 1)
	assert.Len(t, reg.QuoteChain(), 1)
	assert.Len(t, reg.SecurityInfoChain(), 1)
	assert.Empty(t, reg.EarningsChain())

	tiers := reg.Fundamentals()
	require.NotNil(t, tiers)
	require.NotNil(t, tiers.Primary)
	assert.Equal(t, "yahoo", tiers.Primary.Name())
	assert.Nil(t, tiers.Secondary)
	assert.Nil(t, tiers.Fallback)
}

func TestWire_FullCredentialsFillEveryChain(t *testing.T) {
	cfg := testConfig(t)
	cfg.AlphaVantageAPIKey = "test-av-key"
	cfg.FinnhubAPIKey = "test-fh-key"
	container := wireContainer(t, cfg)

	reg := container.Registry
	assert.Len(t, reg.PriceHistoryChain(), 3)
	assert.Len(t, reg.IntradayChain(), 2)
	assert.Len(t, reg.QuoteChain(), 3)
	assert.Len(t, reg.SecurityInfoChain(), 3)
	assert.Len(t, reg.EarningsChain(), 2)

	tiers := reg.Fundamentals()
	require.NotNil(t, tiers)
	require.NotNil(t, tiers.Secondary)
	require.NotNil(t, tiers.Fallback)
	assert.Equal(t, "alphavantage", tiers.Secondary.Name())
	assert.Equal(t, "finnhub", tiers.Fallback.Name())
	assert.NotEmpty(t, tiers.GapFields)
}

func TestWire_UnknownChainSourceSkipped(t *testing.T) {
	cfg := testConfig(t)
	cfg.Chains.Quote = []string{"bloomberg", "yahoo"}
	container := wireContainer(t, cfg)

	chain := container.Registry.QuoteChain()
	require.Len(t, chain, 1)
	assert.Equal(t, "yahoo", chain[0].Name())
}

func TestWire_BackupEnabledBuildsServiceAndJob(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backup = config.BackupConfig{
		Enabled:         true,
		Bucket:          "datafeed-backups",
		Endpoint:        "https://example.r2.cloudflarestorage.com",
		Region:          "auto",
		AccessKeyID:     "test-access",
		SecretAccessKey: "test-secret",
		RetentionDays:   30,
		Schedule:        "0 30 2 * * *",
	}
	container := wireContainer(t, cfg)

	require.NotNil(t, container.Backups)
	require.NotNil(t, container.BackupJob)
	assert.Equal(t, "backup", container.BackupJob.Name())
}

func TestWire_StreamEnabledConstructsStream(t *testing.T) {
	cfg := testConfig(t)
	cfg.FinnhubAPIKey = "test-fh-key"
	cfg.Stream = config.StreamConfig{Enabled: true, Symbols: []string{"AAPL", "MSFT"}}
	container := wireContainer(t, cfg)

	require.NotNil(t, container.Stream)
}
