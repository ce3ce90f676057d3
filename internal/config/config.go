// Package config loads zboard's runtime configuration.
//
// Values are layered, later layers winning:
//
//	defaults → config file (.toml, .yaml, .yml) → ZBOARD_* environment → CLI flags
//
// The CLI applies its flags on top of what Load returns, so this package
// only knows the first three layers.
//
// Environment:
//   - ZBOARD_LISTEN: HTTP listen address (default ":8080")
//   - ZBOARD_BACKEND: memory, sqlite or postgres (default "memory")
//   - ZBOARD_DSN: database file or connection string for relational backends
//   - ZBOARD_LOG_LEVEL: debug, info, warn or error (default "info")
//   - ZBOARD_REDIS_ADDR: enables the redis change feed when set
//   - ZBOARD_REDIS_CHANNEL: redis channel for change events
//
// The client commands read ZBOARD_ADDR for the server URL through Getenv.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"github.com/dreamware/zboard/internal/events"
)

// Backend names a storage implementation
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
)

// Config is the complete runtime configuration
type Config struct {
	Listen   string  `toml:"listen" yaml:"listen"`
	Backend  Backend `toml:"backend" yaml:"backend"`
	DSN      string  `toml:"dsn" yaml:"dsn"`
	LogLevel string  `toml:"log_level" yaml:"log_level"`
	Retry    Retry   `toml:"retry" yaml:"retry"`
	Redis    Redis   `toml:"redis" yaml:"redis"`
}

// Retry bounds how the HTTP layer retries concurrent modifications
type Retry struct {
	MaxAttempts     int           `toml:"max_attempts" yaml:"max_attempts"`
	InitialInterval time.Duration `toml:"initial_interval" yaml:"initial_interval"`
}

// Redis configures the shared change feed; an empty Addr disables it
type Redis struct {
	Addr    string `toml:"addr" yaml:"addr"`
	Channel string `toml:"channel" yaml:"channel"`
}

// Default returns the configuration used when nothing else is set
func Default() Config {
	return Config{
		Listen:   ":8080",
		Backend:  BackendMemory,
		LogLevel: "info",
		Retry: Retry{
			MaxAttempts:     5,
			InitialInterval: 10 * time.Millisecond,
		},
		Redis: Redis{Channel: events.DefaultChannel},
	}
}

// Load builds a configuration from defaults, the optional file at path and
// the environment. An empty path skips the file layer.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.Decode(string(data), c); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config format %q", ext)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Listen = Getenv("ZBOARD_LISTEN", c.Listen)
	c.Backend = Backend(Getenv("ZBOARD_BACKEND", string(c.Backend)))
	c.DSN = Getenv("ZBOARD_DSN", c.DSN)
	c.LogLevel = Getenv("ZBOARD_LOG_LEVEL", c.LogLevel)
	c.Redis.Addr = Getenv("ZBOARD_REDIS_ADDR", c.Redis.Addr)
	c.Redis.Channel = Getenv("ZBOARD_REDIS_CHANNEL", c.Redis.Channel)
}

// Validate reports every problem with the configuration at once
func (c Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("listen address is empty"))
	}
	switch c.Backend {
	case BackendMemory:
	case BackendSQLite, BackendPostgres:
		if c.DSN == "" {
			errs = append(errs, fmt.Errorf("backend %s needs a dsn", c.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts))
	}
	if c.Retry.InitialInterval < 0 {
		errs = append(errs, fmt.Errorf("retry.initial_interval must not be negative"))
	}
	return errors.Join(errs...)
}

// Level parses LogLevel
func (c Config) Level() (log.Level, error) {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel, fmt.Errorf("log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// Getenv retrieves an environment variable with a default fallback value.
// Unset and empty variables both yield def.
func Getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
