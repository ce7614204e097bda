// Package config loads the portapi configuration from YAML, an optional .env file and
// environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the file configuration.
const (
	EnvAddress      = "PORTAPI_ADDRESS"
	EnvLogLevel     = "PORTAPI_LOG_LEVEL"
	EnvStatusListen = "PORTAPI_STATUS_LISTEN"
	EnvNATSURL      = "PORTAPI_NATS_URL"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the complete portapi configuration.
type Config struct {
	Address       string        `yaml:"address"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	QueueSize     int           `yaml:"queue_size"`
	BufferSize    int           `yaml:"buffer_size"`

	Log    LogConfig    `yaml:"log"`
	Status StatusConfig `yaml:"status"`
	Relay  RelayConfig  `yaml:"relay"`
}

// LogConfig configures logging. An empty File logs to stderr.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// StatusConfig configures the status HTTP API. An empty Listen disables it.
type StatusConfig struct {
	Listen string `yaml:"listen"`
}

// RelayConfig configures the NATS relay. It is disabled when Prefixes is empty.
type RelayConfig struct {
	NATSURL       string   `yaml:"nats_url"`
	SubjectPrefix string   `yaml:"subject_prefix"`
	Prefixes      []string `yaml:"prefixes"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Address:       "ws://127.0.0.1:817/api/database/v1",
		PollInterval:  time.Second,
		RetryInterval: 2 * time.Second,
		QueueSize:     64,
		BufferSize:    64,
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Status: StatusConfig{
			Listen: "127.0.0.1:8717",
		},
		Relay: RelayConfig{
			NATSURL:       "nats://127.0.0.1:4222",
			SubjectPrefix: "portapi",
		},
	}
}

// Load reads path on top of the defaults and applies environment overrides. An empty
// path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFile loads variables from a .env file without overriding variables that are
// already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv(EnvAddress); ok && v != "" {
		c.Address = v
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := os.LookupEnv(EnvStatusListen); ok {
		c.Status.Listen = v
	}
	if v, ok := os.LookupEnv(EnvNATSURL); ok && v != "" {
		c.Relay.NATSURL = v
	}
}

// Validate checks the configuration for values the rest of the program cannot use.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Address)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return fmt.Errorf("%w: address %q must be a ws:// or wss:// URL", ErrInvalid, c.Address)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll_interval must be positive", ErrInvalid)
	}
	if c.RetryInterval <= 0 {
		return fmt.Errorf("%w: retry_interval must be positive", ErrInvalid)
	}
	if c.QueueSize <= 0 || c.BufferSize <= 0 {
		return fmt.Errorf("%w: queue_size and buffer_size must be positive", ErrInvalid)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log format %q must be text or json", ErrInvalid, c.Log.Format)
	}
	return nil
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level %q: %w", l.Level, err)
	}
	return level, nil
}
