// Package testing provides shared test helpers for the datafeed project:
// throwaway SQLite databases, canned domain payloads and a scriptable
// source stub.
package testing

import (
	"database/sql"
	"fmt"
	"os"
	"testing"

	"github.com/aristath/datafeed/internal/cache"
	"github.com/aristath/datafeed/internal/database"
	_ "modernc.org/sqlite"
)

// NewCacheDB creates a file-backed throwaway database with the cache schema
// applied. Returns the database and an idempotent cleanup function.
func NewCacheDB(t *testing.T) (*database.DB, func()) {
	t.Helper()

	db, cleanup := NewTestDB(t, "cache")
	if err := cache.EnsureSchema(db.Conn()); err != nil {
		cleanup()
		t.Fatalf("Failed to apply cache schema: %v", err)
	}
	return db, cleanup
}

// NewTestDB creates a file-backed throwaway database with no schema.
// A temporary file is used rather than :memory: so tests exercise the same
// WAL and synchronous settings production runs with.
func NewTestDB(t *testing.T, name string) (*database.DB, func()) {
	t.Helper()

	tmpPath, cleanupFile := CreateTempDBFile(t, name)

	db, err := database.New(database.Config{
		Path:    tmpPath,
		Profile: database.ProfileCache,
		Name:    name,
	})
	if err != nil {
		cleanupFile()
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}

	return db, func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
		cleanupFile()
	}
}

// NewTestDBWithSchema creates a file-backed throwaway database and executes
// the given schema SQL on it.
func NewTestDBWithSchema(t *testing.T, name string, schema string) (*database.DB, func()) {
	t.Helper()

	db, cleanup := NewTestDB(t, name)
	if schema != "" {
		if _, err := db.Conn().Exec(schema); err != nil {
			cleanup()
			t.Fatalf("Failed to execute schema for test database %s: %v", name, err)
		}
	}
	return db, cleanup
}

// CreateTempDBFile creates a temporary database file for testing.
// Returns the file path and a cleanup function that removes the file along
// with its WAL sidecar files.
func CreateTempDBFile(t *testing.T, name string) (string, func()) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", fmt.Sprintf("test_%s_*.db", name))
	if err != nil {
		t.Fatalf("Failed to create temporary database file: %v", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	return tmpPath, func() {
		for _, p := range []string{tmpPath, tmpPath + "-wal", tmpPath + "-shm"} {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				t.Logf("Warning: Failed to remove temporary database file %s: %v", p, err)
			}
		}
	}
}

// GetRawConnection returns the raw *sql.DB from a database.DB instance, for
// tests that need direct access to the underlying connection.
func GetRawConnection(db *database.DB) *sql.DB {
	return db.Conn()
}
