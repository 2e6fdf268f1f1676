package backup

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testhelpers "github.com/aristath/datafeed/internal/testing"
)

type fakeStore struct {
	mu        sync.Mutex
	uploads   map[string][]byte
	objects   []ObjectInfo
	deleted   []string
	uploadErr error
	listErr   error
	deleteErr error
}

func (f *fakeStore) Upload(ctx context.Context, key string, body io.Reader) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploads == nil {
		f.uploads = make(map[string][]byte)
	}
	f.uploads[key] = data
	return nil
}

func (f *fakeStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ObjectInfo
	for _, obj := range f.objects {
		if strings.HasPrefix(obj.Key, prefix) {
			out = append(out, obj)
		}
	}
	for key, data := range f.uploads {
		if strings.HasPrefix(key, prefix) {
			out = append(out, ObjectInfo{Key: key, Size: int64(len(data))})
		}
	}
	return out, nil
}

func (f *fakeStore) Delete(ctx context.Context, key string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	return nil
}

func archiveKey(ts time.Time) string {
	return fmt.Sprintf("%s%s.tar.gz", archivePrefix, ts.UTC().Format(archiveTimestampLayout))
}

func extractArchive(t *testing.T, data []byte) map[string][]byte {
	t.Helper()

	gz, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer gz.Close()

	files := make(map[string][]byte)
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		content, err := io.ReadAll(tr)
		require.NoError(t, err)
		files[hdr.Name] = content
	}
	return files
}

func TestCreateAndUploadBackup_ArchiveContents(t *testing.T) {
	db, cleanup := testhelpers.NewCacheDB(t)
	defer cleanup()

	_, err := db.Conn().Exec(
		`INSERT INTO fundamentals (symbol, payload, source, schema_version, cached_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		"AAPL", `{"pe_ratio":34.2}`, "yahoo", 1, 100, 200,
	)
	require.NoError(t, err)

	store := &fakeStore{}
	dataDir := t.TempDir()
	svc := NewService(store, db, dataDir, 30, zerolog.Nop())

	require.NoError(t, svc.CreateAndUploadBackup(context.Background()))

	require.Len(t, store.uploads, 1)
	var key string
	var payload []byte
	for k, v := range store.uploads {
		key, payload = k, v
	}

	assert.True(t, strings.HasPrefix(key, archivePrefix), "archive key %q should carry the backup prefix", key)
	assert.True(t, strings.HasSuffix(key, ".tar.gz"))

	files := extractArchive(t, payload)
	require.Contains(t, files, "cache.db")
	require.Contains(t, files, "backup-metadata.json")

	var meta Metadata
	require.NoError(t, json.Unmarshal(files["backup-metadata.json"], &meta))
	require.Len(t, meta.Databases, 1)

	dbMeta := meta.Databases[0]
	assert.Equal(t, "cache", dbMeta.Name)
	assert.Equal(t, "cache.db", dbMeta.Filename)
	assert.Equal(t, int64(len(files["cache.db"])), dbMeta.SizeBytes)
	assert.Equal(t, fmt.Sprintf("sha256:%x", sha256.Sum256(files["cache.db"])), dbMeta.Checksum)
	assert.Equal(t, "1.0.0", meta.Version)
	assert.NotEmpty(t, meta.AppVersion)
	assert.False(t, meta.Timestamp.IsZero())

	// Snapshot is a standalone database containing the cached row.
	assert.Contains(t, string(files["cache.db"]), "AAPL")

	_, err = os.Stat(filepath.Join(dataDir, "backup-staging"))
	assert.True(t, os.IsNotExist(err), "staging directory should be removed after the run")
}

func TestCreateAndUploadBackup_UploadFailurePropagates(t *testing.T) {
	db, cleanup := testhelpers.NewCacheDB(t)
	defer cleanup()

	store := &fakeStore{uploadErr: errors.New("bucket unreachable")}
	svc := NewService(store, db, t.TempDir(), 30, zerolog.Nop())

	err := svc.CreateAndUploadBackup(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket unreachable")
}

func TestListBackups_ParsesSortsAndSkipsForeignKeys(t *testing.T) {
	now := time.Now()
	store := &fakeStore{objects: []ObjectInfo{
		{Key: archiveKey(now.Add(-48 * time.Hour)), Size: 100},
		{Key: archiveKey(now.Add(-2 * time.Hour)), Size: 300},
		{Key: archiveKey(now.Add(-24 * time.Hour)), Size: 200},
		{Key: archivePrefix + "not-a-timestamp.tar.gz", Size: 1},
		{Key: archivePrefix + "2026-01-01-000000.txt", Size: 1},
	}}
	svc := NewService(store, nil, t.TempDir(), 30, zerolog.Nop())

	backups, err := svc.ListBackups(context.Background())
	require.NoError(t, err)
	require.Len(t, backups, 3, "malformed and foreign keys are skipped")

	assert.True(t, backups[0].Timestamp.After(backups[1].Timestamp))
	assert.True(t, backups[1].Timestamp.After(backups[2].Timestamp))
	assert.Equal(t, int64(300), backups[0].SizeBytes)
	assert.Equal(t, int64(2), backups[0].AgeHours)
	assert.Equal(t, int64(48), backups[2].AgeHours)
}

func TestRotateOldBackups_RetentionWithMinimumFloor(t *testing.T) {
	now := time.Now()
	store := &fakeStore{objects: []ObjectInfo{
		{Key: archiveKey(now.Add(-1 * 24 * time.Hour))},
		{Key: archiveKey(now.Add(-2 * 24 * time.Hour))},
		{Key: archiveKey(now.Add(-3 * 24 * time.Hour))},
		{Key: archiveKey(now.Add(-40 * 24 * time.Hour))},
		{Key: archiveKey(now.Add(-50 * 24 * time.Hour))},
	}}
	svc := NewService(store, nil, t.TempDir(), 30, zerolog.Nop())

	require.NoError(t, svc.RotateOldBackups(context.Background()))
	require.Len(t, store.deleted, 2)
	assert.Contains(t, store.deleted, archiveKey(now.Add(-40*24*time.Hour)))
	assert.Contains(t, store.deleted, archiveKey(now.Add(-50*24*time.Hour)))
}

func TestRotateOldBackups_MinimumSurvivesRegardlessOfAge(t *testing.T) {
	now := time.Now()
	store := &fakeStore{objects: []ObjectInfo{
		{Key: archiveKey(now.Add(-100 * 24 * time.Hour))},
		{Key: archiveKey(now.Add(-200 * 24 * time.Hour))},
		{Key: archiveKey(now.Add(-300 * 24 * time.Hour))},
	}}
	svc := NewService(store, nil, t.TempDir(), 30, zerolog.Nop())

	require.NoError(t, svc.RotateOldBackups(context.Background()))
	assert.Empty(t, store.deleted, "the newest three always survive")
}

func TestRotateOldBackups_ZeroRetentionKeepsEverything(t *testing.T) {
	now := time.Now()
	store := &fakeStore{objects: []ObjectInfo{
		{Key: archiveKey(now.Add(-100 * 24 * time.Hour))},
		{Key: archiveKey(now.Add(-200 * 24 * time.Hour))},
		{Key: archiveKey(now.Add(-300 * 24 * time.Hour))},
		{Key: archiveKey(now.Add(-400 * 24 * time.Hour))},
		{Key: archiveKey(now.Add(-500 * 24 * time.Hour))},
	}}
	svc := NewService(store, nil, t.TempDir(), 0, zerolog.Nop())

	require.NoError(t, svc.RotateOldBackups(context.Background()))
	assert.Empty(t, store.deleted)
}

func TestJob_RotationFailureDoesNotFailRun(t *testing.T) {
	db, cleanup := testhelpers.NewCacheDB(t)
	defer cleanup()

	// Upload succeeds; the follow-up rotation list fails.
	store := &fakeStore{listErr: errors.New("list throttled")}
	svc := NewService(store, db, t.TempDir(), 30, zerolog.Nop())
	job := NewJob(svc, zerolog.Nop())

	assert.Equal(t, "backup", job.Name())
	require.NoError(t, job.Run(), "rotation failures are logged, not returned")
	assert.Len(t, store.uploads, 1)
}
