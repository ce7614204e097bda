package config

import (
	"context"
	"crypto/sha256"
	"log/slog"
	"os"
	"time"

	"github.com/safing/portapi/pkg/filewatcher"
)

const reloadDebounce = 150 * time.Millisecond

// Watch reloads path whenever it changes and passes every valid configuration with new
// content to onChange. Invalid files are logged and skipped. Watch blocks until ctx is
// done.
func Watch(ctx context.Context, path string, logger *slog.Logger, onChange func(*Config)) error {
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := filewatcher.New(
		filewatcher.WithFile(path),
		filewatcher.WithDebounce(reloadDebounce),
		filewatcher.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	var lastSum [sha256.Size]byte
	if data, err := os.ReadFile(path); err == nil {
		lastSum = sha256.Sum256(data)
	}

	fw.AddCallback(func(string) {
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Error("failed to read config file", "path", path, "error", err)
			return
		}
		if len(data) == 0 {
			logger.Debug("ignoring empty config file write", "path", path)
			return
		}
		sum := sha256.Sum256(data)
		if sum == lastSum {
			logger.Debug("config file content unchanged", "path", path)
			return
		}

		cfg, err := Load(path)
		if err != nil {
			logger.Error("failed to reload config", "path", path, "error", err)
			return
		}
		lastSum = sum
		logger.Info("config reloaded", "path", path)
		onChange(cfg)
	})

	return fw.Run(ctx)
}
