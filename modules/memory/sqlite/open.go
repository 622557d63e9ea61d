package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver registration
)

// open opens the database at path, applies cfg's pragmas and migrates the
// schema.
func open(ctx context.Context, path string, cfg Config) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlite: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}

	// SQLite handles one writer at a time; limit pool to 1 connection
	// so PRAGMAs apply consistently.
	db.SetMaxOpenConns(1)

	for _, pragma := range cfg.pragmas() {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// OpenStore opens a standalone event store at path with default settings.
// Close the returned store when done.
func OpenStore(ctx context.Context, path string) (*Store, error) {
	var cfg Config
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	db, err := open(ctx, path, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}
