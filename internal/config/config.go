package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Training  TrainingConfig  `yaml:"training"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Cache     CacheConfig     `yaml:"cache"`
	Log       LogConfig       `yaml:"log"`
	Import    ImportConfig    `yaml:"import"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

type TailscaleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hostname string `yaml:"hostname"`
	StateDir string `yaml:"state_dir"`
}

// TrainingConfig tunes the session core and the analytics estimates.
type TrainingConfig struct {
	Timezone           string        `yaml:"timezone"`
	DefaultRestSeconds int           `yaml:"default_rest_seconds"`
	SetWorkSeconds     int           `yaml:"set_work_seconds"`
	RestWindowSessions int           `yaml:"rest_window_sessions"`
	RollupRetries      int           `yaml:"rollup_retries"`
	RollupBackoff      time.Duration `yaml:"rollup_backoff"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type CacheConfig struct {
	StandardsTTLSeconds int `yaml:"standards_ttl_seconds"`
	SizeMB              int `yaml:"size_mb"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// ImportConfig configures the historical CSV importer.
type ImportConfig struct {
	StateDB string `yaml:"state_db"`
	// MuscleGroups maps exported exercise names to muscle groups.
	MuscleGroups map[string]string `yaml:"muscle_groups"`
}

// DSN returns a PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}

// Location resolves the training timezone. Calendar days and ISO weeks of the
// statistics buckets are taken in this location.
func (t TrainingConfig) Location() (*time.Location, error) {
	if t.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", t.Timezone, err)
	}
	return loc, nil
}

// SlogLevel maps the configured level name to a slog.Level.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Default returns the configuration used for everything the file leaves unset.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Driver: DriverPostgres},
		Tailscale: TailscaleConfig{
			Hostname: "liftlog",
			StateDir: "tsnet-state",
		},
		Training: TrainingConfig{
			DefaultRestSeconds: 90,
			SetWorkSeconds:     30,
			RestWindowSessions: 10,
			RollupRetries:      3,
			RollupBackoff:      200 * time.Millisecond,
		},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
		Cache:   CacheConfig{StandardsTTLSeconds: 3600, SizeMB: 1},
		Log:     LogConfig{Level: "info"},
		Import:  ImportConfig{StateDB: "liftlog-import.db"},
	}
}

// Load reads config from a YAML file, then applies environment variable overrides.
// Env vars use the prefix LIFTLOG_ and underscore-separated paths:
//
//	LIFTLOG_SERVER_HOST, LIFTLOG_SERVER_PORT,
//	LIFTLOG_DB_DRIVER, LIFTLOG_DB_HOST, LIFTLOG_DB_PORT, LIFTLOG_DB_NAME,
//	LIFTLOG_DB_USER, LIFTLOG_DB_PASSWORD, LIFTLOG_DB_SSLMODE,
//	LIFTLOG_AUTH_API_KEY, LIFTLOG_TAILSCALE_ENABLED,
//	LIFTLOG_TRAINING_TIMEZONE, LIFTLOG_LOG_LEVEL
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LIFTLOG_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("LIFTLOG_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("LIFTLOG_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("LIFTLOG_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("LIFTLOG_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("LIFTLOG_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("LIFTLOG_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("LIFTLOG_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("LIFTLOG_DB_SSLMODE"); v != "" {
		cfg.Database.SSLMode = v
	}
	if v := os.Getenv("LIFTLOG_AUTH_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}
	if v := os.Getenv("LIFTLOG_TAILSCALE_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Tailscale.Enabled = enabled
		}
	}
	if v := os.Getenv("LIFTLOG_TRAINING_TIMEZONE"); v != "" {
		cfg.Training.Timezone = v
	}
	if v := os.Getenv("LIFTLOG_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

func (c *Config) validate() error {
	if c.Server.Port == 0 {
		return fmt.Errorf("server.port is required")
	}
	switch c.Database.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Database.Host == "" {
			return fmt.Errorf("database.host is required")
		}
		if c.Database.Port == 0 {
			return fmt.Errorf("database.port is required")
		}
		if c.Database.Name == "" {
			return fmt.Errorf("database.name is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database.user is required")
		}
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverPostgres, DriverMemory, c.Database.Driver)
	}
	if c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key is required")
	}
	if _, err := c.Training.Location(); err != nil {
		return fmt.Errorf("training.timezone: %w", err)
	}
	if c.Training.RollupRetries < 1 {
		return fmt.Errorf("training.rollup_retries must be at least 1")
	}
	if c.Training.SetWorkSeconds < 0 || c.Training.DefaultRestSeconds < 0 {
		return fmt.Errorf("training durations must not be negative")
	}
	return nil
}
