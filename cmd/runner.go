package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ytrpc/internal/services"
	"github.com/desertthunder/ytrpc/internal/shared"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	input      io.Reader
	engine     *services.EngineClient
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	Input      io.Reader
	// Engine overrides the client built from Config.Server.
	Engine *services.EngineClient
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	r := &Runner{
		config:     opts.Config,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		input:      opts.Input,
		engine:     opts.Engine,
	}
	if r.engine == nil {
		r.engine = services.NewEngineClient(r.config.Server.BaseURL(), r.httpClient)
	}
	return r
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		runCommand, statusCommand, connectCommand, reconnectCommand, disconnectCommand,
		historyCommand, prefsCommand, monitorCommand, setupCommand, hostCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// LoadConfig replaces the runner's config when --config points at a file other than the default.
func (r *Runner) LoadConfig(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if !cmd.IsSet("config") {
		return ctx, nil
	}

	config, err := shared.LoadConfig(cmd.String("config"))
	if err != nil {
		return ctx, err
	}
	r.config = config
	r.engine = services.NewEngineClient(config.Server.BaseURL(), r.httpClient)
	r.logger.SetLevel(config.Log.ParsedLevel())
	return ctx, nil
}

// SetLogger replaces the logger used by commands.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
