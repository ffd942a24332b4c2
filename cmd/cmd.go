// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print JSON output",
			Value: true,
		},
	}
}

// runCommand starts the engine in the foreground
func runCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the presence engine, HTTP API and track sources",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-connect",
				Usage: "Start disconnected and wait for 'ytrpc reconnect'",
			},
			&cli.StringFlag{
				Name:  "host",
				Usage: "Override host.command from the config",
			},
		},
		Action: r.Run,
	}
}

func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Show the engine's connection status",
		Flags:  outputFlags(),
		Action: r.Status,
	}
}

func connectCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "connect",
		Usage:  "Start connecting if the engine is idle",
		Flags:  outputFlags(),
		Action: r.Connect,
	}
}

func reconnectCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "reconnect",
		Usage:  "Tear down the host connection and connect again",
		Flags:  outputFlags(),
		Action: r.Reconnect,
	}
}

func disconnectCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "disconnect",
		Usage:  "Disconnect and stay disconnected until 'ytrpc reconnect'",
		Flags:  outputFlags(),
		Action: r.Disconnect,
	}
}

func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List presences the sink confirmed",
		Flags: append(outputFlags(),
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of entries",
				Value: 20,
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "Output format: text, csv or md",
				Value: "text",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write to a file instead of stdout",
			},
			&cli.BoolFlag{
				Name:  "local",
				Usage: "Read the database directly instead of asking the running engine",
			},
		),
		Action: r.History,
	}
}

func prefsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "prefs",
		Usage: "Show or change persisted preferences",
		Commands: []*cli.Command{
			{
				Name:      "auto-reconnect",
				Usage:     "Show or set automatic reconnection (on|off)",
				ArgsUsage: "[on|off]",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "value",
					},
				},
				Action: r.PrefsAutoReconnect,
			},
		},
	}
}

func monitorCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "monitor",
		Usage: "Live terminal view of the running engine",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Where to write logs while the monitor owns the terminal",
				Value: "./tmp/ytrpc-monitor.log",
			},
		},
		Action: r.Monitor,
	}
}

func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Initialize configuration and database",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write config.toml from the built-in template",
				Action: r.SetupConfig,
			},
			{
				Name:  "database",
				Usage: "Create the database and run migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "rollback",
						Usage: "Revert the newest applied migration instead",
					},
				},
				Action: r.SetupDatabase,
			},
		},
	}
}

// hostCommand runs the built-in dry-run host on stdio. The engine spawns it when host.command is empty.
func hostCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "host",
		Usage:  "Run the dry-run native host on stdin/stdout",
		Hidden: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host-version",
				Usage: "Version announced in HOST_STARTED",
			},
			&cli.StringFlag{
				Name:  "username",
				Usage: "Account name reported when the sink connects",
				Value: "dry-run",
			},
		},
		Action: r.Host,
	}
}
