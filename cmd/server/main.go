// Package main is the entry point for the datafeed daemon.
//
// The daemon turns a set of flaky free-tier market data providers into one
// reliable, normalized, cached data layer:
// - Every read goes through the orchestrator (cache first, then the
//   per-capability fallback chains, stale cache as a last resort)
// - A cron scheduler runs nightly cache cleanup and database maintenance,
//   plus optional S3 backups
// - An operational HTTP server exposes health, diagnostics and backup
//   endpoints
// - An optional Finnhub WebSocket stream keeps a warm last-trade cache
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/datafeed/internal/config"
	"github.com/aristath/datafeed/internal/di"
	"github.com/aristath/datafeed/internal/scheduler"
	"github.com/aristath/datafeed/internal/server"
	"github.com/aristath/datafeed/internal/version"
	"github.com/aristath/datafeed/pkg/logger"
)

// Nightly maintenance windows. Both sit outside US market hours so cleanup
// never competes with the evening fetch traffic; maintenance follows
// cleanup so the WAL checkpoint sees the deletions.
const (
	cacheCleanupSchedule  = "0 0 3 * * *"  // 03:00 daily
	dbMaintenanceSchedule = "0 15 3 * * *" // 03:15 daily
)

// main orchestrates the daemon startup sequence:
// 1. Loads configuration from environment variables (.env supported)
// 2. Initializes structured logging
// 3. Wires all dependencies via the DI container
// 4. Registers background jobs on the cron scheduler
// 5. Starts the optional live trade stream
// 6. Starts the operational HTTP server
// 7. Waits for SIGINT/SIGTERM and shuts everything down in reverse order
func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use a fallback logger so the configuration error itself gets logged.
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Str("version", version.Version).Msg("Starting datafeed")

	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	// Background jobs. The backup job only exists when backups are enabled.
	sched := scheduler.New(log)
	if err := sched.AddJob(cacheCleanupSchedule, container.CleanupJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule cache cleanup")
	}
	if err := sched.AddJob(dbMaintenanceSchedule, container.MaintenanceJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule database maintenance")
	}
	if container.BackupJob != nil {
		if err := sched.AddJob(cfg.Backup.Schedule, container.BackupJob); err != nil {
			log.Fatal().Err(err).Msg("Failed to schedule backups")
		}
	}
	sched.Start()

	// Optional live trade stream. Failure to connect is not fatal: the
	// stream keeps reconnecting in the background and the REST chains are
	// unaffected either way.
	if container.Stream != nil {
		if err := container.Stream.Start(); err != nil {
			log.Error().Err(err).Msg("Live trade stream failed to start, continuing without it")
		} else {
			log.Info().Msg("Live trade stream started")
		}
	}

	srv := server.New(server.Config{
		Log:          log,
		Port:         cfg.Port,
		DevMode:      cfg.DevMode,
		DataDir:      cfg.DataDir,
		Orchestrator: container.Orchestrator,
		Breakers:     container.Breakers,
		Backups:      container.Backups,
		Stream:       container.Stream,
	})

	// Start server in a goroutine so the main thread can wait for signals.
	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Block until SIGINT (Ctrl+C) or SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	// Teardown mirrors startup in reverse: stream, scheduler, then the
	// HTTP server; the deferred container.Close releases the database.
	if container.Stream != nil {
		if err := container.Stream.Stop(); err != nil {
			log.Error().Err(err).Msg("Error stopping live trade stream")
		}
	}

	sched.Stop()

	// In-flight HTTP requests get up to 10 seconds to finish.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
