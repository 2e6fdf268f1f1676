// Package di provides dependency injection wiring and initialization.
package di

import (
	"context"
	"fmt"

	"github.com/aristath/datafeed/internal/backup"
	"github.com/aristath/datafeed/internal/breaker"
	"github.com/aristath/datafeed/internal/cache"
	"github.com/aristath/datafeed/internal/clients/alphavantage"
	"github.com/aristath/datafeed/internal/clients/finnhub"
	"github.com/aristath/datafeed/internal/clients/stooq"
	"github.com/aristath/datafeed/internal/clients/yahoo"
	"github.com/aristath/datafeed/internal/config"
	"github.com/aristath/datafeed/internal/database"
	"github.com/aristath/datafeed/internal/marketdata"
	"github.com/aristath/datafeed/internal/ratelimit"
	"github.com/aristath/datafeed/internal/scheduler"
	"github.com/rs/zerolog"
)

// Wire initializes all dependencies and returns a fully configured container.
// This is the main entry point for dependency injection.
// Order of operations:
// 1. Open the cache database and apply its schema
// 2. Initialize the cache repository
// 3. Initialize reliability state (breakers, limiters)
// 4. Construct upstream clients and build the capability chains
// 5. Initialize the orchestrator
// 6. Initialize background jobs (cleanup, maintenance, optional backup)
// 7. Construct the optional live trade stream
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	if err := initDatabase(container, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	initCache(container, cfg)
	initReliability(container, cfg)
	initSources(container, cfg, log)

	container.Orchestrator = marketdata.NewOrchestrator(
		container.Registry,
		container.Cache,
		container.Breakers,
		container.Limiters,
		log,
	)

	if err := initJobs(container, cfg, log); err != nil {
		container.CacheDB.Close()
		return nil, fmt.Errorf("failed to initialize jobs: %w", err)
	}

	if cfg.Stream.Enabled {
		container.Stream = finnhub.NewTradeStream(cfg.FinnhubAPIKey, cfg.Stream.Symbols, log)
	}

	log.Info().Msg("Dependency injection wiring completed successfully")

	return container, nil
}

// initDatabase opens cache.db under the data directory and ensures the
// cache schema exists.
func initDatabase(container *Container, cfg *config.Config) error {
	db, err := database.New(database.Config{
		Path:    cfg.DataDir + "/cache.db",
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		return err
	}

	if err := cache.EnsureSchema(db.Conn()); err != nil {
		db.Close()
		return fmt.Errorf("failed to apply cache schema: %w", err)
	}

	container.CacheDB = db
	return nil
}

// initCache builds the typed cache repository with the configured TTL policy.
func initCache(container *Container, cfg *config.Config) {
	container.Cache = cache.NewRepository(container.CacheDB.Conn(), cache.Options{
		FundamentalsTTL: cfg.Cache.FundamentalsTTL,
		CloseBuffer:     cfg.Cache.CloseBuffer,
	})
}

// initReliability builds the shared breaker registry and the per-source
// token buckets. Every source gets a limiter even if it never joins a
// chain; an unused bucket costs nothing.
func initReliability(container *Container, cfg *config.Config) {
	container.Breakers = breaker.NewRegistry(breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		RecoveryTimeout:  cfg.Breaker.RecoveryTimeout,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
	})

	container.Limiters = map[string]*ratelimit.TokenBucket{
		yahoo.SourceName:        ratelimit.New(cfg.Limits.Yahoo.PerMinute, cfg.Limits.Yahoo.PerDay),
		alphavantage.SourceName: ratelimit.New(cfg.Limits.AlphaVantage.PerMinute, cfg.Limits.AlphaVantage.PerDay),
		finnhub.SourceName:      ratelimit.New(cfg.Limits.Finnhub.PerMinute, cfg.Limits.Finnhub.PerDay),
		stooq.SourceName:        ratelimit.New(cfg.Limits.Stooq.PerMinute, cfg.Limits.Stooq.PerDay),
	}
}

// initJobs builds the background jobs. The backup service only exists when
// backups are enabled; its S3 client construction can fail on bad config.
func initJobs(container *Container, cfg *config.Config, log zerolog.Logger) error {
	container.CleanupJob = cache.NewCleanupJob(container.Cache, cfg.Cache.CleanupRetention, log)
	container.MaintenanceJob = scheduler.NewDatabaseMaintenanceJob(container.CacheDB, log)

	if !cfg.Backup.Enabled {
		return nil
	}

	store, err := backup.NewS3Client(context.Background(), cfg.Backup, log)
	if err != nil {
		return fmt.Errorf("failed to initialize backup store: %w", err)
	}

	container.Backups = backup.NewService(store, container.CacheDB, cfg.DataDir, cfg.Backup.RetentionDays, log)
	container.BackupJob = backup.NewJob(container.Backups, log)
	return nil
}
