package shared

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// MemoryDatabase is the path that selects an in-memory database.
const MemoryDatabase = ":memory:"

// sqliteParams apply to file databases.
const sqliteParams = "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"

// NewDatabase opens the SQLite database at path, creating its directory if needed.
func NewDatabase(path string) (*sql.DB, error) {
	dsn := path
	if path != MemoryDatabase {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dsn = "file:" + path + sqliteParams
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// ConfigureDatabase sets connection pool limits.
func ConfigureDatabase(db *sql.DB, maxOpenConns, maxIdleConns int) {
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
}

// OpenDatabase opens the configured database, sizes its pool and applies pending migrations.
//
// An in-memory database is pinned to a single connection.
func OpenDatabase(ctx context.Context, cfg DatabaseConfig) (*sql.DB, error) {
	db, err := NewDatabase(cfg.Path)
	if err != nil {
		return nil, err
	}

	maxOpen, maxIdle := cfg.MaxOpenConns, cfg.MaxIdleConns
	if cfg.Path == MemoryDatabase {
		maxOpen, maxIdle = 1, 1
	}
	ConfigureDatabase(db, maxOpen, maxIdle)

	if _, err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}
