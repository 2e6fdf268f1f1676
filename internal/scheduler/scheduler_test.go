package scheduler

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name string
	runs atomic.Int64
	err  error
}

func (j *countingJob) Run() error {
	j.runs.Add(1)
	return j.err
}

func (j *countingJob) Name() string { return j.name }

func TestAddJob_RejectsInvalidSchedule(t *testing.T) {
	s := New(zerolog.Nop())

	err := s.AddJob("not a cron spec", &countingJob{name: "bad"})
	require.Error(t, err)
}

func TestRunNow_ExecutesImmediatelyAndPropagatesError(t *testing.T) {
	s := New(zerolog.Nop())

	ok := &countingJob{name: "ok"}
	require.NoError(t, s.RunNow(ok))
	assert.Equal(t, int64(1), ok.runs.Load())

	failing := &countingJob{name: "failing", err: errors.New("boom")}
	err := s.RunNow(failing)
	require.Error(t, err)
	assert.Equal(t, int64(1), failing.runs.Load())
}

func TestScheduler_FiresRegisteredJob(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{name: "tick"}

	require.NoError(t, s.AddJob("@every 100ms", job))

	s.Start()
	time.Sleep(550 * time.Millisecond)
	s.Stop()

	assert.GreaterOrEqual(t, job.runs.Load(), int64(2), "job should fire repeatedly while started")

	settled := job.runs.Load()
	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, settled, job.runs.Load(), "no more runs after Stop")
}

func TestScheduler_JobErrorDoesNotStopSchedule(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{name: "flaky", err: errors.New("transient")}

	require.NoError(t, s.AddJob("@every 100ms", job))

	s.Start()
	time.Sleep(550 * time.Millisecond)
	s.Stop()

	assert.GreaterOrEqual(t, job.runs.Load(), int64(2), "failing job keeps its schedule")
}
