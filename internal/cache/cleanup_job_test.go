package cache

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestCleanupJob_RemovesOnlyLongExpiredEntries(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db, Options{})
	now := time.Now()

	// Expired two months ago: past the retention floor, gone after the run.
	repo.now = func() time.Time { return now.AddDate(0, 0, -60) }
	require.NoError(t, repo.StoreFundamentals(newFundamentals("ANCIENT")))

	// Expired recently: still within the floor, kept as a stale fallback.
	repo.now = func() time.Time { return now.AddDate(0, 0, -10) }
	require.NoError(t, repo.StoreFundamentals(newFundamentals("RECENT")))

	repo.now = time.Now
	job := NewCleanupJob(repo, 30*24*time.Hour, zerolog.Nop())
	assert.Equal(t, "cache_cleanup", job.Name())
	require.NoError(t, job.Run())

	gone, err := repo.StaleFundamentals("ANCIENT")
	require.NoError(t, err)
	assert.Nil(t, gone)

	kept, err := repo.StaleFundamentals("RECENT")
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestNewCleanupJob_DefaultsRetention(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	job := NewCleanupJob(NewRepository(db, Options{}), 0, zerolog.Nop())
	assert.Equal(t, 30*24*time.Hour, job.retention)
}

func TestCleanupJob_EmptyCacheIsNoop(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	job := NewCleanupJob(NewRepository(db, Options{}), time.Hour, zerolog.Nop())
	require.NoError(t, job.Run())
}
