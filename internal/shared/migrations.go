package shared

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strconv"
	"time"
)

//go:embed sql/*.sql
var migrationFiles embed.FS

// migrationName matches files like 0001_presence_up.sql.
var migrationName = regexp.MustCompile(`^(\d{4})_([a-z0-9_]+)_(up|down)\.sql$`)

// Migration is one schema step with its up and down scripts.
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// AppliedMigration is a row of schema_migrations.
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
}

// Migrations returns the embedded migrations ordered by version.
// Every version must ship both an up and a down script.
func Migrations() ([]Migration, error) {
	entries, err := migrationFiles.ReadDir("sql")
	if err != nil {
		return nil, fmt.Errorf("failed to read migration directory: %w", err)
	}

	byVersion := make(map[int]*Migration)
	for _, entry := range entries {
		m := migrationName.FindStringSubmatch(entry.Name())
		if entry.IsDir() || m == nil {
			continue
		}
		version, _ := strconv.Atoi(m[1])

		content, err := migrationFiles.ReadFile(path.Join("sql", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", entry.Name(), err)
		}

		mig, ok := byVersion[version]
		if !ok {
			mig = &Migration{Version: version, Name: m[2]}
			byVersion[version] = mig
		} else if mig.Name != m[2] {
			return nil, fmt.Errorf("migration %04d has conflicting names %q and %q", version, mig.Name, m[2])
		}
		if m[3] == "up" {
			mig.Up = string(content)
		} else {
			mig.Down = string(content)
		}
	}

	out := make([]Migration, 0, len(byVersion))
	for _, mig := range byVersion {
		if mig.Up == "" || mig.Down == "" {
			return nil, fmt.Errorf("incomplete migration %04d_%s", mig.Version, mig.Name)
		}
		out = append(out, *mig)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Migrate applies pending migrations in order and returns the versions it applied.
func Migrate(ctx context.Context, db *sql.DB) ([]int, error) {
	migrations, err := Migrations()
	if err != nil {
		return nil, err
	}
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return nil, err
	}

	applied, err := AppliedMigrations(ctx, db)
	if err != nil {
		return nil, err
	}
	done := make(map[int]bool, len(applied))
	for _, a := range applied {
		done[a.Version] = true
	}

	var versions []int
	for _, mig := range migrations {
		if done[mig.Version] {
			continue
		}
		err := inTx(ctx, db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, mig.Up); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version, name) VALUES (?, ?)", mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return versions, fmt.Errorf("failed to apply migration %04d_%s: %w", mig.Version, mig.Name, err)
		}
		versions = append(versions, mig.Version)
	}
	return versions, nil
}

// RollbackMigration reverts the newest applied migration and returns it.
func RollbackMigration(ctx context.Context, db *sql.DB) (Migration, error) {
	migrations, err := Migrations()
	if err != nil {
		return Migration{}, err
	}
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return Migration{}, err
	}

	applied, err := AppliedMigrations(ctx, db)
	if err != nil {
		return Migration{}, err
	}
	if len(applied) == 0 {
		return Migration{}, ErrNothingToRollback
	}
	current := applied[len(applied)-1].Version

	for _, mig := range migrations {
		if mig.Version != current {
			continue
		}
		err := inTx(ctx, db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, mig.Down); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = ?", mig.Version)
			return err
		})
		if err != nil {
			return Migration{}, fmt.Errorf("failed to roll back migration %04d_%s: %w", mig.Version, mig.Name, err)
		}
		return mig, nil
	}
	return Migration{}, fmt.Errorf("applied migration %04d is not embedded in this build", current)
}

// AppliedMigrations lists recorded migrations, oldest first.
func AppliedMigrations(ctx context.Context, db *sql.DB) ([]AppliedMigration, error) {
	rows, err := db.QueryContext(ctx, "SELECT version, name, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to list applied migrations: %w", err)
	}
	defer rows.Close()

	var out []AppliedMigration
	for rows.Next() {
		var a AppliedMigration
		if err := rows.Scan(&a.Version, &a.Name, &a.AppliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func ensureMigrationsTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

// inTx runs fn in a transaction, committing only when fn succeeds.
func inTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
