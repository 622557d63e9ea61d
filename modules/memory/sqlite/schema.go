package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaVersion = 1

// schemaStatements are executed in order to create the database schema.
// All use IF NOT EXISTS for idempotent re-application.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id                  TEXT    PRIMARY KEY,
		seq                 INTEGER NOT NULL,
		summary             TEXT    NOT NULL,
		importance          INTEGER NOT NULL DEFAULT 3,
		message_ids         TEXT    NOT NULL DEFAULT '[0]',
		embedding           BLOB,
		characters_involved TEXT    NOT NULL DEFAULT '[]',
		witnesses           TEXT    NOT NULL DEFAULT '[]',
		is_secret           INTEGER NOT NULL DEFAULT 0,
		location            TEXT    NOT NULL DEFAULT '',
		created_at          TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
	)`,

	`CREATE INDEX IF NOT EXISTS idx_events_seq ON events(seq)`,

	`CREATE INDEX IF NOT EXISTS idx_events_missing_embedding ON events(seq) WHERE embedding IS NULL`,
}

// migrate creates or updates the database schema to the latest version.
func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("sqlite: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("sqlite: read schema version: %w", err)
	}

	if current >= schemaVersion {
		return nil
	}

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: migrate: %w\nstatement: %s", err, stmt)
		}
	}

	if _, err := db.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("sqlite: record schema version: %w", err)
	}

	return nil
}
