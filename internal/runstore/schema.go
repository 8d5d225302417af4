package runstore

import (
	"context"
	"database/sql"
	"fmt"
)

// SchemaVersion is the current schema version.
const SchemaVersion = 1

// schemaV1 is the initial schema for the run store.
const schemaV1 = `
-- Completed simulation runs
CREATE TABLE IF NOT EXISTS runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    label TEXT NOT NULL,
    seed INTEGER NOT NULL,
    n INTEGER NOT NULL,
    n_days INTEGER NOT NULL,
    pars TEXT NOT NULL,    -- JSON of the full parameter set
    summary TEXT NOT NULL, -- JSON of the model's summary stats
    created_at TEXT NOT NULL
);

-- Per-day series values, one row per (run, series, day)
CREATE TABLE IF NOT EXISTS series (
    run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    day INTEGER NOT NULL,
    value REAL NOT NULL,
    PRIMARY KEY (run_id, name, day)
);
CREATE INDEX IF NOT EXISTS idx_series_run_name ON series(run_id, name);

-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// InitSchema creates the schema if needed and records the version.
func InitSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaV1); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	_, err := db.ExecContext(ctx,
		`INSERT OR REPLACE INTO schema_meta (key, value) VALUES ('version', ?)`,
		fmt.Sprintf("%d", SchemaVersion))
	if err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return nil
}
