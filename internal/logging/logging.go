// Package logging builds the process logger from the log configuration.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/safing/portapi/internal/config"
)

// Logger is a configured slog logger together with the writer it owns.
type Logger struct {
	*slog.Logger
	level  *slog.LevelVar
	closer io.Closer
}

// New builds a logger. With an empty cfg.File it writes to stderr, otherwise it writes
// to a size rotated file.
func New(cfg config.LogConfig) (*Logger, error) {
	var out io.Writer = os.Stderr
	var closer io.Closer
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, err
		}
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		out = lj
		closer = lj
	}
	return newLogger(out, closer, cfg)
}

// NewWriter builds a logger writing to w.
func NewWriter(w io.Writer, cfg config.LogConfig) (*Logger, error) {
	return newLogger(w, nil, cfg)
}

func newLogger(w io.Writer, closer io.Closer, cfg config.LogConfig) (*Logger, error) {
	lvl, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	level := new(slog.LevelVar)
	level.Set(lvl)

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: lvl <= slog.LevelDebug,
	}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
		level:  level,
		closer: closer,
	}, nil
}

// SetLevel changes the level of a running logger. Invalid levels are ignored.
func (l *Logger) SetLevel(level string) bool {
	lvl, err := config.LogConfig{Level: level}.SlogLevel()
	if err != nil {
		return false
	}
	l.level.Set(lvl)
	return true
}

// Level returns the current level.
func (l *Logger) Level() slog.Level {
	return l.level.Level()
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
