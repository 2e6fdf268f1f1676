// Package cache provides the persistent TTL store for normalized market
// data. Price history and fundamentals are cached per symbol and survive
// process restarts; expired rows stay readable as the orchestrator's last
// resort until the cleanup job's retention floor passes.
package cache

import (
	"database/sql"
	"fmt"
)

// Schema is the cache database schema. Payloads are stored as opaque blobs
// (msgpack for bars, JSON for fundamentals) with per-row codec versioning,
// so a normalization change invalidates old rows instead of mis-decoding
// them.
const Schema = `
CREATE TABLE IF NOT EXISTS price_history (
	symbol TEXT PRIMARY KEY,
	payload BLOB NOT NULL,
	source TEXT NOT NULL,
	period TEXT NOT NULL,
	row_count INTEGER NOT NULL,
	schema_version INTEGER NOT NULL,
	cached_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_price_history_expires ON price_history(expires_at);

CREATE TABLE IF NOT EXISTS fundamentals (
	symbol TEXT PRIMARY KEY,
	payload TEXT NOT NULL,
	source TEXT NOT NULL,
	schema_version INTEGER NOT NULL,
	cached_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fundamentals_expires ON fundamentals(expires_at);
`

// EnsureSchema creates the cache tables if they do not exist yet.
func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("failed to apply cache schema: %w", err)
	}
	return nil
}
