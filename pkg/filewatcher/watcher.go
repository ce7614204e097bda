// Package filewatcher reports debounced changes of files on disk. It is used to hot
// reload configuration files.
package filewatcher

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrStopped is returned when Start is called on a stopped watcher.
var ErrStopped = errors.New("filewatcher: stopped")

// FileWatcher watches directories and reports changed files matching its patterns.
type FileWatcher struct {
	watcher     *fsnotify.Watcher
	dirs        []string
	patterns    []string
	logger      *slog.Logger
	callbacks   []func(string)
	callbacksMu sync.RWMutex
	debounce    time.Duration
	changes     map[string]time.Time
	changesMu   sync.Mutex
	done        chan struct{}
	stopOnce    sync.Once
}

// New creates a FileWatcher. Nothing is watched until Start or Run is called.
func New(opts ...Option) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	fw := &FileWatcher{
		watcher:  watcher,
		dirs:     []string{"."},
		patterns: []string{"*"},
		logger:   slog.Default(),
		debounce: 300 * time.Millisecond,
		changes:  make(map[string]time.Time),
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(fw)
	}
	fw.logger = fw.logger.With("component", "filewatcher")

	return fw, nil
}

// AddCallback adds a callback invoked with the path of every changed file.
func (fw *FileWatcher) AddCallback(callback func(string)) {
	fw.callbacksMu.Lock()
	defer fw.callbacksMu.Unlock()
	fw.callbacks = append(fw.callbacks, callback)
}

// Start starts watching in the background.
func (fw *FileWatcher) Start() error {
	select {
	case <-fw.done:
		return ErrStopped
	default:
	}

	for _, dir := range fw.dirs {
		fw.logger.Debug("watching directory", "dir", dir)
		if err := fw.watcher.Add(dir); err != nil {
			return err
		}
	}

	go fw.watchLoop()
	return nil
}

// Run watches until ctx is done.
func (fw *FileWatcher) Run(ctx context.Context) error {
	if err := fw.Start(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-fw.done:
	}
	return fw.Stop()
}

// Stop stops watching. It is safe to call more than once.
func (fw *FileWatcher) Stop() error {
	var err error
	fw.stopOnce.Do(func() {
		close(fw.done)
		err = fw.watcher.Close()
	})
	return err
}

func (fw *FileWatcher) watchLoop() {
	ticker := time.NewTicker(fw.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-fw.done:
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			// Editors often save by writing a temp file and renaming it over the target.
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				if fw.matchesPattern(event.Name) {
					fw.changesMu.Lock()
					fw.changes[event.Name] = time.Now()
					fw.changesMu.Unlock()
				}
			}
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Error("watcher error", "error", err)
		case <-ticker.C:
			fw.processChanges()
		}
	}
}

// processChanges reports files that have been quiet for the debounce period.
func (fw *FileWatcher) processChanges() {
	fw.changesMu.Lock()
	var ready []string
	now := time.Now()
	for file, changeTime := range fw.changes {
		if now.Sub(changeTime) >= fw.debounce {
			ready = append(ready, file)
			delete(fw.changes, file)
		}
	}
	fw.changesMu.Unlock()

	for _, file := range ready {
		fw.logger.Info("file changed", "file", file)
		fw.notifyCallbacks(file)
	}
}

func (fw *FileWatcher) notifyCallbacks(file string) {
	fw.callbacksMu.RLock()
	defer fw.callbacksMu.RUnlock()

	for _, callback := range fw.callbacks {
		callback(file)
	}
}

func (fw *FileWatcher) matchesPattern(file string) bool {
	base := filepath.Base(file)
	for _, pattern := range fw.patterns {
		matched, err := filepath.Match(pattern, base)
		if err != nil {
			fw.logger.Error("pattern match error", "pattern", pattern, "error", err)
			continue
		}
		if matched {
			return true
		}
	}
	return false
}
