package scheduler

import (
	"context"
	"time"

	"github.com/aristath/datafeed/internal/database"
	"github.com/rs/zerolog"
)

// walFrameWarnThreshold is the WAL size, in frames, above which the nightly
// status log escalates to a warning. At the default 4KB page size this is
// roughly 4MB of unconsolidated WAL.
const walFrameWarnThreshold = 1000

// DatabaseMaintenanceJob keeps the cache database healthy: it reports WAL
// checkpoint status, truncates the WAL back to minimal size and verifies
// the file still passes an integrity check. Scheduled nightly, after the
// cache cleanup job has deleted its rows.
type DatabaseMaintenanceJob struct {
	db  *database.DB
	log zerolog.Logger
}

// NewDatabaseMaintenanceJob creates a maintenance job for the given database.
func NewDatabaseMaintenanceJob(db *database.DB, log zerolog.Logger) *DatabaseMaintenanceJob {
	return &DatabaseMaintenanceJob{
		db:  db,
		log: log.With().Str("job", "db_maintenance").Logger(),
	}
}

// Name returns the job name
func (j *DatabaseMaintenanceJob) Name() string {
	return "db_maintenance"
}

// Run executes the maintenance pass.
func (j *DatabaseMaintenanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// PRAGMA wal_checkpoint returns: busy, log, checkpointed
	var busy, frames, checkpointed int
	err := j.db.Conn().QueryRowContext(ctx, "PRAGMA wal_checkpoint(PASSIVE)").Scan(&busy, &frames, &checkpointed)
	if err != nil {
		j.log.Warn().Err(err).Msg("Failed to check WAL checkpoint status")
	} else if frames > walFrameWarnThreshold {
		j.log.Warn().
			Int("wal_frames", frames).
			Int("checkpointed", checkpointed).
			Msg("WAL file is large")
	} else {
		j.log.Debug().
			Int("wal_frames", frames).
			Msg("WAL checkpoint status OK")
	}

	if err := j.db.WALCheckpoint("TRUNCATE"); err != nil {
		j.log.Error().Err(err).Msg("WAL truncate checkpoint failed")
		return err
	}

	if err := j.db.HealthCheck(ctx); err != nil {
		j.log.Error().Err(err).Msg("Database integrity check failed")
		return err
	}

	j.log.Info().Msg("Database maintenance completed")
	return nil
}
