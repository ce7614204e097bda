package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portapi.yaml")
	writeFile(t, path, `
address: ws://10.0.0.1:817/api/database/v1
poll_interval: 500ms
retry_interval: 5s
log:
  level: debug
  format: json
relay:
  prefixes:
    - "config:"
    - "runtime:"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ws://10.0.0.1:817/api/database/v1", cfg.Address)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 5*time.Second, cfg.RetryInterval)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, []string{"config:", "runtime:"}, cfg.Relay.Prefixes)

	// Unset values keep their defaults.
	assert.Equal(t, 64, cfg.QueueSize)
	assert.Equal(t, "portapi", cfg.Relay.SubjectPrefix)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portapi.yaml")
	writeFile(t, path, "address: ws://file:817/api\n")

	t.Setenv(EnvAddress, "wss://env:817/api")
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvStatusListen, "")
	t.Setenv(EnvNATSURL, "nats://env:4222")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "wss://env:817/api", cfg.Address)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Empty(t, cfg.Status.Listen, "an empty listen address disables the status API")
	assert.Equal(t, "nats://env:4222", cfg.Relay.NATSURL)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	writeFile(t, envPath, EnvAddress+"=ws://dotenv:817/api\n")

	// Restore the variable once the test ends; godotenv sets it process wide.
	t.Setenv(EnvAddress, "")
	require.NoError(t, os.Unsetenv(EnvAddress))

	require.NoError(t, LoadEnvFile(envPath))
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "ws://dotenv:817/api", cfg.Address)

	assert.NoError(t, LoadEnvFile(filepath.Join(dir, "missing.env")))
	assert.NoError(t, LoadEnvFile(""))
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	writeFile(t, bad, "address: [unterminated\n")
	_, err = Load(bad)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"http address", func(c *Config) { c.Address = "http://127.0.0.1:817" }},
		{"empty address", func(c *Config) { c.Address = "" }},
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }},
		{"negative retry interval", func(c *Config) { c.RetryInterval = -time.Second }},
		{"zero queue", func(c *Config) { c.QueueSize = 0 }},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }},
	}

	require.NoError(t, Default().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestSlogLevel(t *testing.T) {
	level, err := LogConfig{Level: "DEBUG"}.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	level, err = LogConfig{Level: "error"}.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelError, level)
}

func TestWatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portapi.yaml")
	writeFile(t, path, "address: ws://first:817/api\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, nil, func(cfg *Config) { reloaded <- cfg })
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	// An invalid file is skipped.
	writeFile(t, path, "address: http://nope\n")
	select {
	case cfg := <-reloaded:
		t.Fatalf("invalid config delivered: %+v", cfg)
	case <-time.After(600 * time.Millisecond):
	}

	writeFile(t, path, "address: ws://second:817/api\n")
	select {
	case cfg := <-reloaded:
		assert.Equal(t, "ws://second:817/api", cfg.Address)
	case <-time.After(3 * time.Second):
		t.Fatal("config was not reloaded")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return")
	}
}
