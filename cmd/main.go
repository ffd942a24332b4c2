package main

import (
	"context"
	"errors"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ytrpc/internal/shared"
)

// Set with -ldflags "-X main.Version=... -X main.RequiredHostVersion=...".
var (
	Version             = "0.1.0"
	RequiredHostVersion = ""
)

func main() {
	logger := shared.NewLogger(nil)

	config := shared.DefaultConfig()
	if _, err := os.Stat("config.toml"); err == nil {
		if loadedConfig, err := shared.LoadConfig("config.toml"); err == nil {
			config = loadedConfig
		} else {
			logger.Warn("failed to load config.toml, using defaults", "error", err)
		}
	}
	logger.SetLevel(config.Log.ParsedLevel())

	runner := NewRunner(RunnerOpts{
		Config: config,
		Logger: logger,
	})

	app := &cli.Command{
		Name:     "ytrpc",
		Usage:    "Mirror YouTube Music playback into Discord rich presence",
		Version:  Version,
		Flags:    []cli.Flag{configFlag()},
		Before:   runner.LoadConfig,
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(0)
		}
		logger.Fatalf("application error: %v", err)
	}
}
