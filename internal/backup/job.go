package backup

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// jobTimeout bounds one complete backup run including the upload.
const jobTimeout = 30 * time.Minute

// Job runs a full backup cycle on a cron schedule: snapshot, upload, rotate.
type Job struct {
	service *Service
	log     zerolog.Logger
}

// NewJob wraps a backup service as a schedulable job.
func NewJob(service *Service, log zerolog.Logger) *Job {
	return &Job{
		service: service,
		log:     log.With().Str("job", "backup").Logger(),
	}
}

// Name returns the job name
func (j *Job) Name() string {
	return "backup"
}

// Run executes one backup cycle. Rotation failures are logged but do not
// fail the run; the archive is already safely uploaded.
func (j *Job) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if err := j.service.CreateAndUploadBackup(ctx); err != nil {
		return err
	}

	if err := j.service.RotateOldBackups(ctx); err != nil {
		j.log.Error().Err(err).Msg("Backup rotation failed")
	}
	return nil
}
