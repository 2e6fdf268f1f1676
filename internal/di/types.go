/**
 * Package di provides dependency injection type definitions.
 *
 * This package defines the Container type which holds all application
 * dependencies. The Container is the single source of truth for all
 * service instances and is shared by both binaries: the long-running
 * daemon (cmd/server) and the one-shot CLI (cmd/fetch).
 */
package di

import (
	"github.com/aristath/datafeed/internal/backup"
	"github.com/aristath/datafeed/internal/breaker"
	"github.com/aristath/datafeed/internal/cache"
	"github.com/aristath/datafeed/internal/clients/finnhub"
	"github.com/aristath/datafeed/internal/database"
	"github.com/aristath/datafeed/internal/marketdata"
	"github.com/aristath/datafeed/internal/ratelimit"
	"github.com/aristath/datafeed/internal/scheduler"
)

/**
 * Container holds all dependencies for the application.
 *
 * This is the single source of truth for all service instances.
 * The container is created by Wire() and handed to the binaries.
 *
 * Architecture:
 * - Database: one SQLite cache database (WAL mode, cache profile)
 * - Cache: typed repository over price_history and fundamentals
 * - Reliability: shared circuit breakers and per-source rate limiters
 * - Sources: capability chains of upstream adapters, in priority order
 * - Orchestrator: the cache-first fallback engine over the chains
 * - Jobs: background maintenance registered on the scheduler by cmd/server
 *
 * All dependencies are injected via constructor injection.
 */
type Container struct {
	// CacheDB is the single cache database. Everything persistent lives here.
	CacheDB *database.DB

	// Cache is the typed repository over CacheDB.
	Cache *cache.Repository

	// Reliability state shared by all capability chains.
	Breakers *breaker.Registry
	Limiters map[string]*ratelimit.TokenBucket

	// Registry holds the per-capability source chains; the Orchestrator
	// walks them.
	Registry     *marketdata.Registry
	Orchestrator *marketdata.Orchestrator

	// Jobs. cmd/server registers these on its cron scheduler; cmd/fetch
	// ignores them.
	CleanupJob     *cache.CleanupJob
	MaintenanceJob *scheduler.DatabaseMaintenanceJob

	// Backup service and its job. Both nil when backups are disabled.
	Backups   *backup.Service
	BackupJob *backup.Job

	// Stream is the optional live trade stream. Nil when disabled. The
	// container only constructs it; cmd/server owns Start/Stop.
	Stream *finnhub.TradeStream
}

// Close releases everything the container owns. The scheduler, HTTP server
// and stream are stopped by cmd/server before this runs, so only the
// database handle needs explicit teardown.
func (c *Container) Close() error {
	if c.CacheDB != nil {
		return c.CacheDB.Close()
	}
	return nil
}
