package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Host     HostConfig     `toml:"host"`
	Engine   EngineConfig   `toml:"engine"`
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	MPD      MPDConfig      `toml:"mpd"`
	Log      LogConfig      `toml:"log"`
}

// HostConfig describes how the native host process is spawned.
type HostConfig struct {
	Command         string   `toml:"command"`
	Args            []string `toml:"args"`
	RequiredVersion string   `toml:"required_version"`
	ConnectTimeout  Duration `toml:"connect_timeout"`
	StopGrace       Duration `toml:"stop_grace"`
}

// EngineConfig tunes the presence engine.
type EngineConfig struct {
	AutoConnect    bool     `toml:"auto_connect"`
	HealthInterval Duration `toml:"health_interval"`
	Debounce       Duration `toml:"debounce"`
	DriftTolerance Duration `toml:"drift_tolerance"`
	LargeJumpsOnly bool     `toml:"large_jumps_only"`
	GraceWindow    Duration `toml:"grace_window"`
	SendInterval   Duration `toml:"send_interval"`
	SendBurst      int      `toml:"send_burst"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path             string   `toml:"path"`
	MaxOpenConns     int      `toml:"max_open_conns"`
	MaxIdleConns     int      `toml:"max_idle_conns"`
	HistoryRetention Duration `toml:"history_retention"` // zero keeps history forever
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
	// AllowedOrigins are origin host patterns (path.Match syntax) browsers may call the API from.
	AllowedOrigins []string `toml:"allowed_origins"`
}

// Addr returns the host:port the server listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// BaseURL returns the HTTP URL clients use to reach the server.
func (s ServerConfig) BaseURL() string {
	host := s.Host
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, s.Port)
}

// MPDConfig points the optional MPD track source at a server.
type MPDConfig struct {
	Enabled  bool   `toml:"enabled"`
	Network  string `toml:"network"`
	Address  string `toml:"address"`
	Password string `toml:"password"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level string `toml:"level"`
}

// ParsedLevel returns the configured [log.Level], defaulting to info.
func (l LogConfig) ParsedLevel() log.Level {
	if l.Level == "" {
		return log.InfoLevel
	}
	level, err := log.ParseLevel(l.Level)
	if err != nil {
		return log.InfoLevel
	}
	return level
}

// Duration is a [time.Duration] written as a string ("2s", "500ms") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %v", ErrMissingConfig, err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Server.Port < 0 || c.Server.Port > 65535:
		return fmt.Errorf("%w: server.port %d out of range", ErrInvalidConfig, c.Server.Port)
	case c.Engine.SendBurst < 0:
		return fmt.Errorf("%w: engine.send_burst must not be negative", ErrInvalidConfig)
	case c.Engine.SendInterval.Duration < 0:
		return fmt.Errorf("%w: engine.send_interval must not be negative", ErrInvalidConfig)
	case c.MPD.Enabled && c.MPD.Address == "":
		return fmt.Errorf("%w: mpd.address is required when mpd is enabled", ErrInvalidConfig)
	}
	return nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
