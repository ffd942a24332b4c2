package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ytrpc/internal/shared"
)

// SetupConfig writes config.toml (or the --config path) from the embedded template.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	if err := shared.CreateConfigFile(configPath); err != nil {
		return err
	}
	r.logger.Info("config file created", "path", configPath)
	return r.writePlain("✓ Wrote %s\n", configPath)
}

// SetupDatabase initializes the database and runs migrations.
//
// A missing config file is created from the template first.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	config := r.config
	if _, err := os.Stat(configPath); err != nil {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
		} else if loaded, err := shared.LoadConfig(configPath); err == nil {
			config = loaded
		}
	}
	r.config = config

	if cmd.Bool("rollback") {
		return r.rollbackDatabase(ctx)
	}

	r.logger.Info("initializing database", "path", config.Database.Path)

	db, err := r.openDatabase()
	if err != nil {
		return fmt.Errorf("failed to set up database: %w", err)
	}
	defer db.Close()

	applied, err := shared.AppliedMigrations(ctx, db)
	if err != nil {
		return err
	}
	r.logger.Infof("setup complete for database: %v", config.Database.Path)
	return r.writePlain("✓ Database at schema version %d\n", schemaVersion(applied))
}

func (r *Runner) rollbackDatabase(ctx context.Context) error {
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	mig, err := shared.RollbackMigration(ctx, db)
	if err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}
	r.logger.Warn("migration rolled back", "version", mig.Version, "name", mig.Name)
	return r.writePlain("✓ Rolled back %04d_%s\n", mig.Version, mig.Name)
}

func schemaVersion(applied []shared.AppliedMigration) int {
	if len(applied) == 0 {
		return 0
	}
	return applied[len(applied)-1].Version
}
