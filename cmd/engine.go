package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ytrpc/internal/formatter"
	"github.com/desertthunder/ytrpc/internal/models"
	"github.com/desertthunder/ytrpc/internal/repositories"
	"github.com/desertthunder/ytrpc/internal/shared"
)

// Status prints the running engine's status snapshot.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	s, err := r.engine.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch status: %w", err)
	}
	return r.writeStatus(cmd, s)
}

// Connect asks an idle engine to connect.
func (r *Runner) Connect(ctx context.Context, cmd *cli.Command) error {
	s, err := r.engine.Connect(ctx)
	if err != nil {
		return fmt.Errorf("connect failed: %w", err)
	}
	return r.writeStatus(cmd, s)
}

// Reconnect issues a manual reconnect.
func (r *Runner) Reconnect(ctx context.Context, cmd *cli.Command) error {
	s, err := r.engine.Reconnect(ctx)
	if err != nil {
		return fmt.Errorf("reconnect failed: %w", err)
	}
	return r.writeStatus(cmd, s)
}

// Disconnect issues a manual disconnect.
func (r *Runner) Disconnect(ctx context.Context, cmd *cli.Command) error {
	s, err := r.engine.Disconnect(ctx)
	if err != nil {
		return fmt.Errorf("disconnect failed: %w", err)
	}
	return r.writeStatus(cmd, s)
}

func (r *Runner) writeStatus(cmd *cli.Command, s models.StatusSnapshot) error {
	if cmd.Bool("json") {
		return r.writeJSON(s, cmd.Bool("pretty"))
	}
	_, err := r.output.Write(formatter.StatusToText(s))
	return err
}

// History lists confirmed presences from the engine, or from the database with --local.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	limit := int(cmd.Int("limit"))

	var (
		entries []models.HistoryEntry
		err     error
	)
	if cmd.Bool("local") {
		entries, err = r.localHistory(ctx, limit)
	} else {
		entries, err = r.engine.History(ctx, limit)
	}
	if err != nil {
		return fmt.Errorf("failed to fetch history: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(entries, cmd.Bool("pretty"))
	}

	if path := cmd.String("output"); path != "" {
		if err := formatter.WriteHistoryExport(entries, cmd.String("format"), path); err != nil {
			return err
		}
		r.logger.Info("history exported", "path", path, "entries", len(entries))
		return nil
	}

	data, err := formatter.Render(cmd.String("format"), entries)
	if err != nil {
		return err
	}
	_, err = r.output.Write(data)
	return err
}

func (r *Runner) localHistory(ctx context.Context, limit int) ([]models.HistoryEntry, error) {
	db, err := r.openDatabase()
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return repositories.NewHistoryRepository(db).List(ctx, limit)
}

// PrefsAutoReconnect shows or sets the auto-reconnect preference.
//
// The preference lives in the database, so a running engine picks it up on its next retry decision.
func (r *Runner) PrefsAutoReconnect(ctx context.Context, cmd *cli.Command) error {
	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	settings := repositories.NewSettingsRepository(db)

	value := strings.ToLower(strings.TrimSpace(cmd.StringArg("value")))
	if value == "" {
		enabled, err := settings.AutoReconnect(ctx)
		if err != nil {
			return err
		}
		return r.writePlain("auto-reconnect: %s\n", onOff(enabled))
	}

	var enabled bool
	switch value {
	case "on", "true", "yes", "1":
		enabled = true
	case "off", "false", "no", "0":
		enabled = false
	default:
		return fmt.Errorf("%w: expected on or off, got %q", shared.ErrInvalidArgument, value)
	}

	if err := settings.SetAutoReconnect(ctx, enabled); err != nil {
		return err
	}
	r.logger.Info("preference saved", "auto_reconnect", enabled)
	return r.writePlain("auto-reconnect: %s\n", onOff(enabled))
}

// openDatabase opens the configured database and brings its schema up to date.
func (r *Runner) openDatabase() (*sql.DB, error) {
	r.logger.Debug("opening database", "path", r.config.Database.Path)
	return shared.OpenDatabase(context.Background(), r.config.Database)
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
