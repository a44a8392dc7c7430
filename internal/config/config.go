// Package config provides configuration loading for segsim.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/segsim/internal/engine"
	"github.com/talgya/segsim/internal/logging"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file Load picks up when no path is given.
const DefaultPath = "segsim.yaml"

// Config contains all segsim settings.
type Config struct {
	// Model holds the construction-time simulation parameters.
	Model engine.Params `json:"model" yaml:"model"`

	// Server configures the real-time engine and the HTTP API.
	Server ServerConfig `json:"server" yaml:"server"`

	// Storage configures run persistence.
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Logging configures operational logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// ServerConfig configures `segsim serve`.
type ServerConfig struct {
	// Port is the HTTP listen port.
	Port int `json:"port" yaml:"port" jsonschema:"minimum=1,maximum=65535"`

	// AdminKey guards POST endpoints. Supports ${VAR} syntax. Empty disables them.
	AdminKey string `json:"admin_key,omitempty" yaml:"admin_key,omitempty"`

	// Interval is the base tick interval at speed 1.
	Interval time.Duration `json:"interval" yaml:"interval"`

	// ReportEvery is how many ticks pass between progress reports.
	ReportEvery uint64 `json:"report_every" yaml:"report_every"`

	// CORSOrigins are frontend origins allowed besides localhost dev servers.
	CORSOrigins []string `json:"cors_origins,omitempty" yaml:"cors_origins,omitempty"`
}

// RedactedAdminKey returns the admin key with most characters masked.
func (c ServerConfig) RedactedAdminKey() string {
	if c.AdminKey == "" {
		return ""
	}
	if len(c.AdminKey) < 12 {
		return "(set)"
	}
	return c.AdminKey[:4] + "..." + c.AdminKey[len(c.AdminKey)-4:]
}

// String implements fmt.Stringer so the admin key is never logged in full.
func (c ServerConfig) String() string {
	return fmt.Sprintf("ServerConfig{Port:%d, Interval:%s, ReportEvery:%d, AdminKey:%s}",
		c.Port, c.Interval, c.ReportEvery, c.RedactedAdminKey())
}

// StorageConfig configures the SQLite run store.
type StorageConfig struct {
	// Path is the database file. Empty disables persistence.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// SnapshotEvery stores a full grid snapshot every N ticks; 0 stores only
	// the final one.
	SnapshotEvery int `json:"snapshot_every" yaml:"snapshot_every" jsonschema:"minimum=0"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level sets the log verbosity: "debug", "info" (default), "warn" or "error".
	Level string `json:"level" yaml:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// Default returns a Config with the model defaults and a local server.
func Default() *Config {
	return &Config{
		Model: engine.DefaultParams(),
		Server: ServerConfig{
			Port:        8765,
			Interval:    time.Second,
			ReportEvery: engine.DefaultReportEvery,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from path and environment variables.
// Order: defaults -> path (or ./segsim.yaml if present) -> environment variables.
func Load(path string) (*Config, error) {
	config := Default()

	if path == "" {
		if _, err := os.Stat(DefaultPath); err == nil {
			path = DefaultPath
		}
	}
	if path != "" {
		fileConfig, err := LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
		config = fileConfig
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file. Keys missing
// from the file keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Server.AdminKey = expandEnvVars(config.Server.AdminKey)

	return config, nil
}

// Validate checks that the configuration is valid. Model errors are
// *engine.ConfigError values.
func (c *Config) Validate() error {
	if err := c.Model.Validate(); err != nil {
		return err
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.Interval < 0 {
		return fmt.Errorf("interval must be non-negative, got %v", c.Server.Interval)
	}

	if c.Storage.SnapshotEvery < 0 {
		return fmt.Errorf("snapshot_every must be non-negative, got %d", c.Storage.SnapshotEvery)
	}

	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error, or empty for default)", c.Logging.Level)
	}

	return nil
}

// Params returns the model parameters.
func (c *Config) Params() engine.Params {
	return c.Model
}

// Marshal renders the config as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// applyEnvOverrides applies environment variable overrides to the config.
// Unparsable values are ignored with a warning.
func applyEnvOverrides(config *Config) {
	envInt("SEGSIM_AGENTS", &config.Model.AgentCount)
	envInt("SEGSIM_WIDTH", &config.Model.Width)
	envInt("SEGSIM_HEIGHT", &config.Model.Height)
	envFloat("SEGSIM_RATIO", &config.Model.TypeRatio)
	envFloat("SEGSIM_SATISFACTION", &config.Model.SatisfactionThreshold)
	envInt("SEGSIM_MOVING_RANGE", &config.Model.MovingRange)

	if v := os.Getenv("SEGSIM_CONTRACT"); v != "" {
		config.Model.ContractMode = v == "true" || v == "1"
	}

	if v := os.Getenv("SEGSIM_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			config.Model.Seed = n
		} else {
			slog.Warn("ignoring invalid env override", "var", "SEGSIM_SEED", "value", v)
		}
	}

	envInt("SEGSIM_PORT", &config.Server.Port)

	if v := os.Getenv("SEGSIM_DB"); v != "" {
		config.Storage.Path = v
	}

	if v := os.Getenv("SEGSIM_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}

	if v := os.Getenv("SEGSIM_ADMIN_KEY"); v != "" {
		config.Server.AdminKey = v
	}
}

func envInt(name string, dst *int) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("ignoring invalid env override", "var", name, "value", v)
		return
	}
	*dst = n
}

func envFloat(name string, dst *float64) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("ignoring invalid env override", "var", name, "value", v)
		return
	}
	*dst = f
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
