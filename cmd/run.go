package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ytrpc/internal/metrics"
	"github.com/desertthunder/ytrpc/internal/presence"
	"github.com/desertthunder/ytrpc/internal/reconnect"
	"github.com/desertthunder/ytrpc/internal/repositories"
	"github.com/desertthunder/ytrpc/internal/server"
	"github.com/desertthunder/ytrpc/internal/supervisor"
	"github.com/desertthunder/ytrpc/internal/tracks"
)

const pruneInterval = 24 * time.Hour

// Run wires the supervisor, track sources and HTTP surface, and blocks until interrupted.
func (r *Runner) Run(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := r.config
	logger := r.logger

	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	settings := repositories.NewSettingsRepository(db)
	history := repositories.NewHistoryRepository(db)
	recorder := metrics.NewPrometheusRecorder(nil).WithRuntimeCollectors()

	dialer, err := r.hostDialer(cmd.String("host"))
	if err != nil {
		return err
	}

	sup := supervisor.New(r.supervisorConfig(!cmd.Bool("no-connect")), supervisor.Deps{
		Dialer:      dialer,
		Logger:      logger,
		Policies:    reconnect.DefaultPolicies(),
		Preferences: settings,
		History:     history,
		Metrics:     recorder,
	})
	debouncer := tracks.NewDebouncer(sup, cfg.Engine.Debounce.Duration)

	router := server.NewBasicRouter()
	router.Use(server.Recoverer(logger), server.RequestLogger(logger), server.CORS(cfg.Server.AllowedOrigins))
	server.NewAPIHandler(sup, debouncer, history, logger).Register(router)
	router.Handler(server.NewStatusStream(sup.Publisher(), cfg.Server.AllowedOrigins, logger))
	router.Handle(http.MethodGet, "/metrics", recorder.Handler())
	srv := server.New(cfg.Server.Addr(), router, logger)

	jobs, err := r.maintenance(ctx, history)
	if err != nil {
		return err
	}
	defer func() {
		if err := jobs.Shutdown(); err != nil {
			logger.Warn("maintenance scheduler shutdown", "error", err)
		}
	}()

	workers := map[string]func(context.Context) error{
		"supervisor": sup.Run,
		"debouncer":  debouncer.Run,
		"http":       srv.Run,
	}
	if cfg.MPD.Enabled {
		source := &tracks.MPDSource{
			Network:  cfg.MPD.Network,
			Address:  cfg.MPD.Address,
			Password: cfg.MPD.Password,
			Logger:   logger,
			Out:      debouncer,
		}
		workers["mpd"] = source.Run
	}

	logger.Info("engine starting", "addr", cfg.Server.Addr(), "mpd", cfg.MPD.Enabled)
	return runWorkers(ctx, workers, logger.Error)
}

// runWorkers runs every worker until ctx ends or one fails, then waits for all of them.
func runWorkers(ctx context.Context, workers map[string]func(context.Context) error, report func(msg any, kv ...any)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for name, run := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				report("worker failed", "worker", name, "error", err)
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("%s: %w", name, err)
				}
				mu.Unlock()
				cancel()
			}
		}()
	}
	wg.Wait()
	return firstErr
}

func (r *Runner) supervisorConfig(autoConnect bool) supervisor.Config {
	cfg := r.config

	required := cfg.Host.RequiredVersion
	if required == "" {
		required = RequiredHostVersion
	}

	opts := presence.Options{
		DriftTolerance: cfg.Engine.DriftTolerance.Duration,
		LargeJumpsOnly: cfg.Engine.LargeJumpsOnly,
		GraceWindow:    cfg.Engine.GraceWindow.Duration,
	}

	return supervisor.Config{
		RequiredVersion: required,
		AutoConnect:     autoConnect && cfg.Engine.AutoConnect,
		ConnectTimeout:  cfg.Host.ConnectTimeout.Duration,
		HealthInterval:  cfg.Engine.HealthInterval.Duration,
		StopGrace:       cfg.Host.StopGrace.Duration,
		SendInterval:    cfg.Engine.SendInterval.Duration,
		SendBurst:       cfg.Engine.SendBurst,
		Presence:        opts,
	}
}

// hostDialer spawns the configured host, or this binary's dry-run host when none is configured.
func (r *Runner) hostDialer(override string) (*supervisor.ProcessDialer, error) {
	command, args := r.config.Host.Command, r.config.Host.Args
	if override != "" {
		command, args = override, nil
	}

	if command == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to locate dry-run host: %w", err)
		}
		command = self
		args = []string{"host", "--host-version", r.dryRunVersion()}
		r.logger.Warn("no host command configured, using the dry-run host")
	}

	return &supervisor.ProcessDialer{
		Command:   command,
		Args:      args,
		StopGrace: r.config.Host.StopGrace.Duration,
		Logger:    r.logger,
	}, nil
}

func (r *Runner) dryRunVersion() string {
	if v := r.config.Host.RequiredVersion; v != "" {
		return v
	}
	if RequiredHostVersion != "" {
		return RequiredHostVersion
	}
	return Version
}

// maintenance schedules history pruning. It returns a started scheduler the caller must shut down.
func (r *Runner) maintenance(ctx context.Context, history *repositories.HistoryRepository) (gocron.Scheduler, error) {
	jobs, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create maintenance scheduler: %w", err)
	}

	retention := r.config.Database.HistoryRetention.Duration
	if retention > 0 {
		prune := func() {
			removed, err := history.Prune(ctx, time.Now().Add(-retention))
			if err != nil {
				r.logger.Warn("history prune failed", "error", err)
				return
			}
			if removed > 0 {
				r.logger.Info("history pruned", "removed", removed, "retention", retention)
			}
		}
		if _, err := jobs.NewJob(
			gocron.DurationJob(pruneInterval),
			gocron.NewTask(prune),
			gocron.WithName("history-prune"),
			gocron.WithStartAt(gocron.WithStartImmediately()),
		); err != nil {
			return nil, fmt.Errorf("failed to schedule history prune: %w", err)
		}
	}

	jobs.Start()
	return jobs, nil
}
