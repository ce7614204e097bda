package filewatcher

import (
	"log/slog"
	"path/filepath"
	"time"
)

// Option configures a FileWatcher
type Option func(*FileWatcher)

// WithLogger sets the logger for the file watcher
func WithLogger(logger *slog.Logger) Option {
	return func(fw *FileWatcher) {
		if logger != nil {
			fw.logger = logger
		}
	}
}

// WithDirs sets the directories to watch
func WithDirs(dirs []string) Option {
	return func(fw *FileWatcher) {
		if len(dirs) > 0 {
			fw.dirs = dirs
		}
	}
}

// WithPatterns sets the file patterns to watch
func WithPatterns(patterns []string) Option {
	return func(fw *FileWatcher) {
		if len(patterns) > 0 {
			fw.patterns = patterns
		}
	}
}

// WithFile watches a single file. The parent directory is watched so the file may be
// replaced or created later.
func WithFile(path string) Option {
	return func(fw *FileWatcher) {
		if path == "" {
			return
		}
		fw.dirs = []string{filepath.Dir(path)}
		fw.patterns = []string{filepath.Base(path)}
	}
}

// WithDebounce sets how long a file must stay unchanged before it is reported
func WithDebounce(d time.Duration) Option {
	return func(fw *FileWatcher) {
		if d > 0 {
			fw.debounce = d
		}
	}
}
