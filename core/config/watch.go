package config

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
)

// DefaultWatchDebounce collapses editor save bursts into one reload.
const DefaultWatchDebounce = 100 * time.Millisecond

// ErrInvalidPattern indicates a config file name could not be compiled into
// a match pattern.
var ErrInvalidPattern = errors.New("invalid config file pattern")

// WatchOptions configures Manager.Watch.
type WatchOptions struct {
	Debounce time.Duration
	Logger   *slog.Logger
}

// Watch reloads the configuration whenever one of its files changes. It
// blocks until ctx ends or the manager is closed. A reload that fails keeps
// the previous configuration and is logged.
func (m *Manager) Watch(ctx context.Context, opts WatchOptions) error {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultWatchDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	files := m.Files()
	matchers, err := compileFilePatterns(files)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for _, dir := range watchDirs(files) {
		if err := watcher.Add(dir); err != nil {
			logger.Warn("config directory not watched",
				slog.String("dir", dir),
				slog.String("error", err.Error()))
		}
	}

	r := &reloader{manager: m, logger: logger, debounce: opts.Debounce}
	defer r.stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.stopWatch:
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}
			if matchesAny(matchers, filepath.Clean(event.Name)) {
				r.schedule()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", slog.String("error", err.Error()))
		}
	}
}

// watchDirs returns the existing parent directories of files, deduplicated.
func watchDirs(files []string) []string {
	seen := make(map[string]struct{}, len(files))
	var dirs []string
	for _, f := range files {
		dir := filepath.Dir(filepath.Clean(f))
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

func compileFilePatterns(files []string) ([]glob.Glob, error) {
	matchers := make([]glob.Glob, 0, len(files))
	for _, f := range files {
		g, err := glob.Compile(glob.QuoteMeta(filepath.Clean(f)), '/')
		if err != nil {
			return nil, errors.Join(ErrInvalidPattern, err)
		}
		matchers = append(matchers, g)
	}
	return matchers, nil
}

func matchesAny(matchers []glob.Glob, path string) bool {
	for _, g := range matchers {
		if g.Match(path) {
			return true
		}
	}
	return false
}

// =============================================================================
// Debounced reload
// =============================================================================

type reloader struct {
	manager  *Manager
	logger   *slog.Logger
	debounce time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func (r *reloader) schedule() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return
	}
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.debounce, r.fire)
}

func (r *reloader) fire() {
	r.mu.Lock()
	stopped := r.stopped
	r.timer = nil
	r.mu.Unlock()
	if stopped {
		return
	}

	if err := r.manager.Reload(); err != nil {
		r.logger.Warn("config reload failed, keeping previous configuration",
			slog.String("error", err.Error()))
		return
	}
	r.logger.Info("configuration reloaded")
}

func (r *reloader) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopped = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
