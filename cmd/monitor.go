package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ytrpc/internal/shared"
	"github.com/desertthunder/ytrpc/internal/ui"
)

// Monitor launches the live status TUI against the running engine.
func (r *Runner) Monitor(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, f, err := shared.NewFileLogger(cmd.String("log-file"))
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	defer f.Close()
	fileLogger.SetLevel(r.config.Log.ParsedLevel())
	r.SetLogger(fileLogger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := ui.NewModel(ctx, r.engine)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
