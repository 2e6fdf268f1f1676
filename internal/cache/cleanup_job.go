package cache

import (
	"time"

	"github.com/rs/zerolog"
)

// CleanupJob removes long-expired entries from all cache tables.
// Entries expired less than the retention floor ago are kept: they are the
// stale fallback served when every upstream source fails, and deleting them
// too eagerly would turn a source outage into a data outage.
// It should be scheduled to run daily.
type CleanupJob struct {
	repo      *Repository
	retention time.Duration
	log       zerolog.Logger
}

// NewCleanupJob creates a cache cleanup job. retention is how long past
// expiry a row stays readable before deletion.
func NewCleanupJob(repo *Repository, retention time.Duration, log zerolog.Logger) *CleanupJob {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &CleanupJob{
		repo:      repo,
		retention: retention,
		log:       log.With().Str("job", "cache_cleanup").Logger(),
	}
}

// Run executes the cleanup job, removing entries expired for longer than
// the retention floor.
func (j *CleanupJob) Run() error {
	cutoff := time.Now().Add(-j.retention)

	results, err := j.repo.DeleteAllExpiredBefore(cutoff)
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to delete expired cache entries")
		return err
	}

	var totalDeleted int64
	for table, count := range results {
		if count > 0 {
			j.log.Info().
				Str("table", table).
				Int64("deleted", count).
				Msg("Cleaned up long-expired cache entries")
			totalDeleted += count
		}
	}

	if totalDeleted > 0 {
		j.log.Info().
			Int64("total_deleted", totalDeleted).
			Time("cutoff", cutoff).
			Msg("Cache cleanup completed")
	}

	return nil
}

// Name returns the job name for scheduling and logging.
func (j *CleanupJob) Name() string {
	return "cache_cleanup"
}
