// Package config defines the tasksync configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pathwise/tasksync/task"
)

// EnvRemoteToken overrides remote.token when set.
const EnvRemoteToken = "TASKSYNC_REMOTE_TOKEN"

// Config is the top-level tasksync configuration.
type Config struct {
	Storage  StorageConfig `json:"storage" yaml:"storage"`
	Remote   RemoteConfig  `json:"remote" yaml:"remote"`
	Server   ServerConfig  `json:"server" yaml:"server"`
	Auth     AuthConfig    `json:"auth" yaml:"auth"`
	LogLevel string        `json:"log_level" yaml:"log_level"`
}

// StorageConfig selects the durable backend for local task sets.
type StorageConfig struct {
	Driver string `json:"driver" yaml:"driver"` // "sqlite", "file", "memory"
	Path   string `json:"path" yaml:"path"`     // database file or directory
}

// RemoteConfig points at the remote task API. An empty BaseURL disables
// remote mirroring.
type RemoteConfig struct {
	BaseURL   string        `json:"base_url" yaml:"base_url"`
	Token     string        `json:"-" yaml:"token"`
	JWTSecret string        `json:"-" yaml:"jwt_secret"` // signs per-user tokens; wins over Token
	Timeout   time.Duration `json:"timeout" yaml:"timeout"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"` // listen address, e.g., ":9090"
}

// AuthConfig controls API authentication.
type AuthConfig struct {
	JWTSecret string            `json:"jwt_secret" yaml:"jwt_secret"`
	Users     map[string]string `json:"-" yaml:"users"` // username -> bcrypt hash
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Driver: task.DriverSQLite,
			Path:   "./data/tasks.db",
		},
		Remote: RemoteConfig{
			Timeout: 15 * time.Second,
		},
		Server: ServerConfig{
			Addr: ":9090",
		},
		LogLevel: "info",
	}
}

// Load reads a YAML config file and returns the parsed configuration.
// Environment overrides are applied after parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv applies environment overrides.
func (c *Config) ApplyEnv() {
	if tok := os.Getenv(EnvRemoteToken); tok != "" {
		c.Remote.Token = tok
	}
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case task.DriverSQLite, task.DriverFile:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for driver %q", c.Storage.Driver)
		}
	case task.DriverMemory:
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	if c.Remote.Timeout < 0 {
		return fmt.Errorf("remote.timeout must not be negative")
	}
	return nil
}
