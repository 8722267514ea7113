package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/albertocavalcante/wsbind/cmd/wsbind/internal/incremental"
	"github.com/albertocavalcante/wsbind/cmd/wsbind/internal/workspace"
	"github.com/albertocavalcante/wsbind/pkg/config"
)

// ErrWatchLimitReached is returned when the OS watch limit is exceeded.
var ErrWatchLimitReached = errors.New("filesystem watch limit reached")

// Config configures the watcher.
type Config struct {
	Workspace *workspace.Workspace // must already be loaded
	Tracker   *incremental.Tracker // optional; refreshed after every sync
	Logger    *Logger              // optional; built from the fields below when nil
	Debounce  time.Duration
	Output    io.Writer
	Verbose   bool
	NoColor   bool
	JSON      bool

	// OnSync, when set, is called after every applied batch.
	OnSync func(SyncEvent)
}

// SyncEvent describes one applied batch of changes.
type SyncEvent struct {
	Paths  []string
	Result workspace.SyncResult
	Err    error
}

// Watcher feeds file changes under the workspace root into Workspace.Sync.
type Watcher struct {
	config    Config
	root      string
	matcher   *incremental.Matcher
	fsWatcher *fsnotify.Watcher
	debouncer *Debouncer
	logger    *Logger

	// syncMu prevents overlapping syncs.
	syncMu sync.Mutex
}

// New creates a new watcher with the given configuration.
func New(cfg Config) (*Watcher, error) {
	if cfg.Workspace == nil {
		return nil, errors.New("watch: workspace is required")
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = NewLogger(LoggerConfig{
			Writer:  cfg.Output,
			Verbose: cfg.Verbose,
			NoColor: cfg.NoColor,
			JSON:    cfg.JSON,
		})
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = config.DefaultDebounceMs * time.Millisecond
	}

	wcfg := cfg.Workspace.Config.Workspace
	return &Watcher{
		config:    cfg,
		root:      cfg.Workspace.Root,
		matcher:   incremental.NewMatcher(wcfg.Manifest, wcfg.Track, wcfg.Ignore),
		fsWatcher: fsWatcher,
		logger:    logger,
	}, nil
}

// Logger returns the watcher's output logger.
func (w *Watcher) Logger() *Logger {
	return w.logger
}

// Run starts the watch loop. It blocks until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	w.debouncer = NewDebouncer(w.config.Debounce, w.handleChanged)
	defer w.debouncer.Stop()

	if err := w.addRecursive(w.root); err != nil {
		return fmt.Errorf("failed to watch workspace: %w", err)
	}

	fileCount := 0
	if w.config.Tracker != nil {
		fileCount = w.config.Tracker.TrackedFileCount()
	}
	w.logger.Ready(fileCount, len(w.config.Workspace.Projects()), w.root)

	for {
		select {
		case <-ctx.Done():
			w.logger.Shutdown()
			return nil

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error(err)
		}
	}
}

// addRecursive adds a directory and all subdirectories to the watcher.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				if w.config.Verbose {
					w.logger.Error(fmt.Errorf("permission denied: %s", path))
				}
				return nil
			}
			w.logger.Error(fmt.Errorf("walk error at %s: %w", path, err))
			return nil
		}

		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.matcher.IgnoredDir(d.Name()) {
			return filepath.SkipDir
		}

		if err := w.fsWatcher.Add(path); err != nil {
			if isWatchLimitError(err) {
				return fmt.Errorf("%w at %s: %w\n"+
					"Increase limit with: sudo sysctl fs.inotify.max_user_watches=524288", ErrWatchLimitReached, path, err)
			}
			if w.config.Verbose {
				w.logger.Error(fmt.Errorf("failed to watch %s: %w", path, err))
			}
		}
		return nil
	})
}

// isWatchLimitError checks if an error is due to inotify watch limits.
func isWatchLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "no space left on device") ||
		strings.Contains(errStr, "too many open files")
}

// handleEvent processes a single filesystem event.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name

	// New directories need watches of their own; files already inside them
	// are picked up through their manifest or the next change.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if w.matcher.IgnoredDir(filepath.Base(path)) {
				return
			}
			if err := w.addRecursive(path); err != nil {
				w.logger.Error(fmt.Errorf("failed to watch new directory %s: %w", path, err))
			}
			w.queueManifests(path)
			return
		}
	}

	rel, ok := w.relative(path)
	if !ok || !w.matcher.Tracked(rel) {
		return
	}

	var changeType ChangeType
	switch {
	case event.Has(fsnotify.Create):
		changeType = ChangeAdded
	case event.Has(fsnotify.Write):
		changeType = ChangeModified
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		changeType = ChangeDeleted
	default:
		return // chmod
	}

	w.logger.FileChanged(rel, changeType)
	w.debouncer.Add(rel)
}

// queueManifests queues the manifest of a directory that appeared with its
// contents already in place, as with a move or an extracted archive.
func (w *Watcher) queueManifests(dir string) {
	manifestName := w.config.Workspace.Config.Workspace.Manifest
	candidate := filepath.Join(dir, manifestName)
	if _, err := os.Stat(candidate); err != nil {
		return
	}
	if rel, ok := w.relative(candidate); ok && w.matcher.IsManifest(rel) {
		w.logger.FileChanged(rel, ChangeAdded)
		w.debouncer.Add(rel)
	}
}

func (w *Watcher) relative(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// handleChanged is called when the debouncer flushes.
func (w *Watcher) handleChanged(paths []string) {
	_, _ = w.Apply(context.Background(), paths)
}

// Apply applies a batch of changed workspace-relative paths to the
// workspace and records the new disk state. Batches never overlap.
func (w *Watcher) Apply(ctx context.Context, paths []string) (workspace.SyncResult, error) {
	if len(paths) == 0 {
		return workspace.SyncResult{}, nil
	}

	w.syncMu.Lock()
	defer w.syncMu.Unlock()

	w.logger.Syncing(paths)

	res, err := w.config.Workspace.Sync(ctx, paths)
	if err != nil {
		w.logger.Error(err)
	}
	slices.Sort(res.Affected)
	res.Affected = slices.Compact(res.Affected)
	w.logger.Synced(res.Affected)

	if w.config.Tracker != nil {
		if err := w.config.Tracker.Refresh(ctx); err != nil {
			w.logger.Error(fmt.Errorf("failed to update state: %w", err))
		}
	}
	if w.config.OnSync != nil {
		w.config.OnSync(SyncEvent{Paths: paths, Result: res, Err: err})
	}
	return res, err
}

// Close closes the watcher and releases resources.
func (w *Watcher) Close() error {
	if w.fsWatcher != nil {
		return w.fsWatcher.Close()
	}
	return nil
}
