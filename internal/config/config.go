// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/aristath/datafeed/internal/utils"
	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the cache database and backup staging (always absolute)
	Port     int    // Operational HTTP API port
	LogLevel string
	DevMode  bool // Pretty (console) logging instead of JSON

	// Upstream credentials. Sources without a configured key are dropped
	// from their capability chains at registration time.
	AlphaVantageAPIKey string
	FinnhubAPIKey      string

	// Per-call network timeout for upstream HTTP requests.
	HTTPTimeout time.Duration

	Limits  LimitsConfig
	Breaker BreakerConfig
	Chains  ChainsConfig
	Cache   CacheConfig
	Backup  BackupConfig
	Stream  StreamConfig
}

// SourceLimit is one source's free-tier call budget.
// PerDay == 0 means no daily ceiling.
type SourceLimit struct {
	PerMinute int
	PerDay    int
}

// LimitsConfig holds the per-source rate limit budgets.
type LimitsConfig struct {
	Yahoo        SourceLimit
	AlphaVantage SourceLimit
	Finnhub      SourceLimit
	Stooq        SourceLimit
}

// BreakerConfig holds circuit breaker tuning shared by all sources.
type BreakerConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	SuccessThreshold int
}

// ChainsConfig holds the ordered source chains per capability.
type ChainsConfig struct {
	PriceHistory []string
	Intraday     []string
	Quote        []string
	SecurityInfo []string
	Earnings     []string

	// Fundamentals uses a tiered merge rather than first-success-wins.
	FundamentalsPrimary   string
	FundamentalsSecondary string
	FundamentalsFallback  string
}

// CacheConfig holds TTL and cleanup tuning for the persistent cache.
type CacheConfig struct {
	FundamentalsTTL  time.Duration // Multi-day window; quarterly data changes slowly
	CloseBuffer      time.Duration // Propagation buffer added to the next market close
	CleanupRetention time.Duration // How long past expiry a stale row stays readable
}

// BackupConfig holds S3-compatible backup settings (R2 works via Endpoint).
type BackupConfig struct {
	Enabled         bool
	Bucket          string
	Endpoint        string // Custom endpoint for S3-compatible stores; empty = AWS
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	RetentionDays   int
	Schedule        string // cron spec
}

// StreamConfig holds the optional Finnhub live-trade stream settings.
type StreamConfig struct {
	Enabled bool
	Symbols []string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Determine data directory, resolve to absolute, ensure it exists.
	dataDir := getEnv("DATAFEED_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("PORT", 8090),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),

		AlphaVantageAPIKey: getEnv("ALPHAVANTAGE_API_KEY", ""),
		FinnhubAPIKey:      getEnv("FINNHUB_API_KEY", ""),

		HTTPTimeout: time.Duration(getEnvAsInt("HTTP_TIMEOUT_SECONDS", 15)) * time.Second,

		Limits: LimitsConfig{
			// Yahoo has no published quota; 30/min keeps us clear of
			// the unofficial throttling observed in practice.
			Yahoo:        SourceLimit{PerMinute: getEnvAsInt("YAHOO_RPM", 30), PerDay: getEnvAsInt("YAHOO_RPD", 0)},
			AlphaVantage: SourceLimit{PerMinute: getEnvAsInt("ALPHAVANTAGE_RPM", 5), PerDay: getEnvAsInt("ALPHAVANTAGE_RPD", 25)},
			Finnhub:      SourceLimit{PerMinute: getEnvAsInt("FINNHUB_RPM", 60), PerDay: getEnvAsInt("FINNHUB_RPD", 0)},
			Stooq:        SourceLimit{PerMinute: getEnvAsInt("STOOQ_RPM", 30), PerDay: getEnvAsInt("STOOQ_RPD", 0)},
		},

		Breaker: BreakerConfig{
			FailureThreshold: getEnvAsInt("BREAKER_FAILURE_THRESHOLD", 3),
			RecoveryTimeout:  time.Duration(getEnvAsInt("BREAKER_RECOVERY_SECONDS", 300)) * time.Second,
			SuccessThreshold: getEnvAsInt("BREAKER_SUCCESS_THRESHOLD", 2),
		},

		Chains: ChainsConfig{
			PriceHistory: getEnvAsList("CHAIN_PRICE_HISTORY", "yahoo,stooq,alphavantage"),
			Intraday:     getEnvAsList("CHAIN_INTRADAY", "yahoo,alphavantage"),
			Quote:        getEnvAsList("CHAIN_QUOTE", "yahoo,finnhub,alphavantage"),
			SecurityInfo: getEnvAsList("CHAIN_SECURITY_INFO", "yahoo,alphavantage,finnhub"),
			Earnings:     getEnvAsList("CHAIN_EARNINGS", "finnhub,alphavantage"),

			FundamentalsPrimary:   getEnv("FUNDAMENTALS_PRIMARY", "yahoo"),
			FundamentalsSecondary: getEnv("FUNDAMENTALS_SECONDARY", "alphavantage"),
			FundamentalsFallback:  getEnv("FUNDAMENTALS_FALLBACK", "finnhub"),
		},

		Cache: CacheConfig{
			FundamentalsTTL:  time.Duration(getEnvAsInt("CACHE_FUNDAMENTALS_TTL_DAYS", 7)) * 24 * time.Hour,
			CloseBuffer:      time.Duration(getEnvAsInt("CACHE_CLOSE_BUFFER_MINUTES", 60)) * time.Minute,
			CleanupRetention: time.Duration(getEnvAsInt("CACHE_CLEANUP_RETENTION_DAYS", 30)) * 24 * time.Hour,
		},

		Backup: BackupConfig{
			Enabled:         getEnvAsBool("BACKUP_ENABLED", false),
			Bucket:          getEnv("BACKUP_S3_BUCKET", ""),
			Endpoint:        getEnv("BACKUP_S3_ENDPOINT", ""),
			Region:          getEnv("BACKUP_S3_REGION", "auto"),
			AccessKeyID:     getEnv("BACKUP_S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("BACKUP_S3_SECRET_ACCESS_KEY", ""),
			RetentionDays:   getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
			Schedule:        getEnv("BACKUP_SCHEDULE", "0 30 2 * * *"), // 02:30 daily
		},

		Stream: StreamConfig{
			Enabled: getEnvAsBool("STREAM_ENABLED", false),
			Symbols: getEnvAsList("STREAM_SYMBOLS", ""),
		},
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Breaker.FailureThreshold < 1 {
		return fmt.Errorf("breaker failure threshold must be >= 1, got %d", c.Breaker.FailureThreshold)
	}
	if c.Breaker.SuccessThreshold < 1 {
		return fmt.Errorf("breaker success threshold must be >= 1, got %d", c.Breaker.SuccessThreshold)
	}
	if c.Breaker.RecoveryTimeout <= 0 {
		return fmt.Errorf("breaker recovery timeout must be positive, got %s", c.Breaker.RecoveryTimeout)
	}

	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http timeout must be positive, got %s", c.HTTPTimeout)
	}

	if c.Backup.Enabled {
		if c.Backup.Bucket == "" {
			return fmt.Errorf("BACKUP_S3_BUCKET is required when backups are enabled")
		}
		if c.Backup.AccessKeyID == "" || c.Backup.SecretAccessKey == "" {
			return fmt.Errorf("BACKUP_S3_ACCESS_KEY_ID and BACKUP_S3_SECRET_ACCESS_KEY are required when backups are enabled")
		}
	}

	if c.Stream.Enabled {
		if c.FinnhubAPIKey == "" {
			return fmt.Errorf("FINNHUB_API_KEY is required when the live stream is enabled")
		}
		if len(c.Stream.Symbols) == 0 {
			return fmt.Errorf("STREAM_SYMBOLS is required when the live stream is enabled")
		}
	}

	// API keys themselves are optional: sources without credentials are
	// dropped from their chains rather than failing startup.

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsList(key, defaultValue string) []string {
	return utils.ParseCSV(getEnv(key, defaultValue))
}
