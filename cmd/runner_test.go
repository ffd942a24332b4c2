package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ytrpc/internal/models"
	"github.com/desertthunder/ytrpc/internal/repositories"
	"github.com/desertthunder/ytrpc/internal/services"
	"github.com/desertthunder/ytrpc/internal/shared"
	tu "github.com/desertthunder/ytrpc/internal/testing"
)

func newTestRunner(t *testing.T, engineURL string) (*Runner, *bytes.Buffer) {
	t.Helper()

	config := shared.DefaultConfig()
	config.Database.Path = filepath.Join(t.TempDir(), "ytrpc.db")

	output := &bytes.Buffer{}
	opts := RunnerOpts{
		Config: config,
		Logger: shared.NewLogger(nil),
		Output: output,
	}
	if engineURL != "" {
		opts.Engine = services.NewEngineClient(engineURL, nil)
	}
	return NewRunner(opts), output
}

// runApp runs args against the full command tree, the same way main does.
func runApp(t *testing.T, r *Runner, args ...string) error {
	t.Helper()

	app := &cli.Command{
		Name:     "ytrpc",
		Flags:    []cli.Flag{configFlag()},
		Commands: r.register(),
	}
	return app.Run(context.Background(), append([]string{"ytrpc"}, args...))
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.config == nil {
				t.Fatal("expected default config")
			}
			if runner.logger == nil {
				t.Error("expected default logger")
			}
			if runner.output == nil || runner.input == nil {
				t.Error("expected stdio defaults")
			}
			if runner.httpClient != http.DefaultClient {
				t.Error("expected http.DefaultClient")
			}
			if runner.engine == nil {
				t.Error("expected engine client built from config")
			}
		})

		t.Run("with engine override", func(t *testing.T) {
			engine := services.NewEngineClient("http://127.0.0.1:9999", nil)
			runner := NewRunner(RunnerOpts{Engine: engine})
			if runner.engine != engine {
				t.Error("expected engine override to be kept")
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner, _ := newTestRunner(t, "")

		names := map[string]bool{}
		for _, cmd := range runner.register() {
			names[cmd.Name] = true
		}
		for _, want := range []string{"run", "status", "connect", "reconnect", "disconnect", "history", "prefs", "monitor", "setup", "host"} {
			if !names[want] {
				t.Errorf("expected %q command to be registered", want)
			}
		}
	})

	t.Run("writeJSON", func(t *testing.T) {
		tc := []struct {
			name   string
			pretty bool
			want   string
		}{
			{name: "compact", pretty: false, want: "{\"a\":1}\n"},
			{name: "pretty", pretty: true, want: "{\n  \"a\": 1\n}\n"},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				runner, output := newTestRunner(t, "")
				if err := runner.writeJSON(map[string]int{"a": 1}, tt.pretty); err != nil {
					t.Fatalf("writeJSON() error = %v", err)
				}
				if output.String() != tt.want {
					t.Errorf("output = %q, want %q", output.String(), tt.want)
				}
			})
		}
	})

	t.Run("writeJSON surfaces write failures", func(t *testing.T) {
		runner, _ := newTestRunner(t, "")

		runner.output = &tu.FWriter{}
		if err := runner.writeJSON(map[string]int{"a": 1}, false); err == nil {
			t.Error("expected error from failing writer")
		}

		limited := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
		runner.output = &limited
		if err := runner.writeJSON(map[string]int{"a": 1}, false); err == nil || !strings.Contains(err.Error(), "newline") {
			t.Errorf("expected newline write error, got %v", err)
		}
	})

	t.Run("writePlain", func(t *testing.T) {
		runner, output := newTestRunner(t, "")
		runner.writePlain("hello %s\n", "world")
		if output.String() != "hello world\n" {
			t.Errorf("output = %q", output.String())
		}
	})
}

func TestEngineCommands(t *testing.T) {
	snapshot := models.StatusSnapshot{
		ConnectionState: models.PresenceReady,
		SinkIdentity:    &models.SinkIdentity{Username: "listener"},
		AutoReconnect:   true,
	}

	var lastPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lastPath = r.Method + " " + r.URL.Path
		switch r.URL.Path {
		case "/api/status", "/api/connect", "/api/reconnect":
			json.NewEncoder(w).Encode(snapshot)
		case "/api/disconnect":
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"error": "engine stopped"})
		case "/api/history":
			json.NewEncoder(w).Encode([]models.HistoryEntry{{Sequence: 1, Title: "Song A", Subtitle: "Artist"}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	t.Run("status as text", func(t *testing.T) {
		runner, output := newTestRunner(t, ts.URL)
		if err := runApp(t, runner, "status"); err != nil {
			t.Fatalf("status error = %v", err)
		}
		if !strings.Contains(output.String(), "presence_ready") || !strings.Contains(output.String(), "listener") {
			t.Errorf("output = %q", output.String())
		}
	})

	t.Run("status as json", func(t *testing.T) {
		runner, output := newTestRunner(t, ts.URL)
		if err := runApp(t, runner, "status", "--json"); err != nil {
			t.Fatalf("status error = %v", err)
		}
		var got models.StatusSnapshot
		if err := json.Unmarshal(output.Bytes(), &got); err != nil {
			t.Fatalf("output is not JSON: %v", err)
		}
		if got.ConnectionState != models.PresenceReady {
			t.Errorf("ConnectionState = %v", got.ConnectionState)
		}
	})

	t.Run("commands post to the engine", func(t *testing.T) {
		tc := []struct {
			command string
			path    string
		}{
			{command: "connect", path: "POST /api/connect"},
			{command: "reconnect", path: "POST /api/reconnect"},
		}

		for _, tt := range tc {
			t.Run(tt.command, func(t *testing.T) {
				runner, _ := newTestRunner(t, ts.URL)
				if err := runApp(t, runner, tt.command); err != nil {
					t.Fatalf("%s error = %v", tt.command, err)
				}
				if lastPath != tt.path {
					t.Errorf("request = %q, want %q", lastPath, tt.path)
				}
			})
		}
	})

	t.Run("engine errors are surfaced", func(t *testing.T) {
		runner, _ := newTestRunner(t, ts.URL)
		err := runApp(t, runner, "disconnect")
		if !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("disconnect error = %v, want ErrServiceUnavailable", err)
		}
	})

	t.Run("history from engine", func(t *testing.T) {
		runner, output := newTestRunner(t, ts.URL)
		if err := runApp(t, runner, "history", "--format", "md"); err != nil {
			t.Fatalf("history error = %v", err)
		}
		if !strings.Contains(output.String(), "Song A") {
			t.Errorf("output = %q", output.String())
		}
	})
}

func TestHistoryLocal(t *testing.T) {
	runner, output := newTestRunner(t, "http://127.0.0.1:1")

	db, err := runner.openDatabase()
	if err != nil {
		t.Fatalf("openDatabase() error = %v", err)
	}
	repo := repositories.NewHistoryRepository(db)
	if err := repo.Record(context.Background(), "conn-1", &models.PresenceSnapshot{Title: "Local Song", Subtitle: "Artist", StartedAt: 1000}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	db.Close()

	if err := runApp(t, runner, "history", "--local"); err != nil {
		t.Fatalf("history --local error = %v", err)
	}
	if !strings.Contains(output.String(), "Local Song") {
		t.Errorf("output = %q", output.String())
	}

	t.Run("export to file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "history.csv")
		if err := runApp(t, runner, "history", "--local", "--format", "csv", "-o", path); err != nil {
			t.Fatalf("history export error = %v", err)
		}
		tu.AssertFileExists(t, path)
		if data := tu.MustReadFile(t, path); !strings.Contains(data, "Local Song") {
			t.Errorf("export = %q", data)
		}
	})
}

func TestPrefsAutoReconnect(t *testing.T) {
	tc := []struct {
		name    string
		args    []string
		want    string
		wantErr error
	}{
		{name: "default is on", args: nil, want: "auto-reconnect: on\n"},
		{name: "turn off", args: []string{"off"}, want: "auto-reconnect: off\n"},
		{name: "accepts true", args: []string{"TRUE"}, want: "auto-reconnect: on\n"},
		{name: "rejects junk", args: []string{"maybe"}, wantErr: shared.ErrInvalidArgument},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			runner, output := newTestRunner(t, "")
			err := runApp(t, runner, append([]string{"prefs", "auto-reconnect"}, tt.args...)...)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if output.String() != tt.want {
				t.Errorf("output = %q, want %q", output.String(), tt.want)
			}
		})
	}

	t.Run("persists across invocations", func(t *testing.T) {
		runner, output := newTestRunner(t, "")
		if err := runApp(t, runner, "prefs", "auto-reconnect", "off"); err != nil {
			t.Fatal(err)
		}
		output.Reset()

		if err := runApp(t, runner, "prefs", "auto-reconnect"); err != nil {
			t.Fatal(err)
		}
		if output.String() != "auto-reconnect: off\n" {
			t.Errorf("output = %q", output.String())
		}
	})
}

func TestSetup(t *testing.T) {
	t.Run("config", func(t *testing.T) {
		runner, _ := newTestRunner(t, "")
		path := filepath.Join(t.TempDir(), "config.toml")

		if err := runApp(t, runner, "--config", path, "setup", "config"); err != nil {
			t.Fatalf("setup config error = %v", err)
		}
		tu.AssertFileExists(t, path)

		if _, err := shared.LoadConfig(path); err != nil {
			t.Errorf("written config does not load: %v", err)
		}
	})

	t.Run("database", func(t *testing.T) {
		runner, output := newTestRunner(t, "")
		dir := t.TempDir()
		configPath := filepath.Join(dir, "config.toml")
		if err := shared.CreateConfigFile(configPath); err != nil {
			t.Fatal(err)
		}

		if err := runApp(t, runner, "--config", configPath, "setup", "database"); err != nil {
			t.Fatalf("setup database error = %v", err)
		}
		tu.AssertFileExists(t, configPath)
		tu.AssertFileExists(t, runner.config.Database.Path)
		if !strings.Contains(output.String(), "schema version 1") {
			t.Errorf("output = %q", output.String())
		}
	})

	t.Run("database rollback", func(t *testing.T) {
		runner, output := newTestRunner(t, "")
		configPath := filepath.Join(t.TempDir(), "config.toml")
		if err := shared.CreateConfigFile(configPath); err != nil {
			t.Fatal(err)
		}

		if err := runApp(t, runner, "--config", configPath, "setup", "database"); err != nil {
			t.Fatalf("setup database error = %v", err)
		}
		output.Reset()

		if err := runApp(t, runner, "--config", configPath, "setup", "database", "--rollback"); err != nil {
			t.Fatalf("rollback error = %v", err)
		}
		if !strings.Contains(output.String(), "0001_presence") {
			t.Errorf("output = %q", output.String())
		}

		err := runApp(t, runner, "--config", configPath, "setup", "database", "--rollback")
		if !errors.Is(err, shared.ErrNothingToRollback) {
			t.Errorf("second rollback error = %v, want ErrNothingToRollback", err)
		}

		if err := runApp(t, runner, "prefs", "auto-reconnect"); err != nil {
			t.Fatalf("prefs after rollback error = %v", err)
		}
		if !strings.HasSuffix(output.String(), "auto-reconnect: on\n") {
			t.Errorf("schema should be re-applied on next open, output = %q", output.String())
		}
	})
}
