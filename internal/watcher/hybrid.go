package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// HybridWatcher watches a tree with fsnotify, falling back to polling when
// fsnotify cannot be initialized or ForcePolling is set. Events are
// debounced and delivered in batches.
type HybridWatcher struct {
	opts      Options
	fsWatcher *fsnotify.Watcher
	poller    *PollingWatcher
	debouncer *Debouncer
	events    chan []FileEvent
	errors    chan error
	stopCh    chan struct{}

	mu       sync.RWMutex
	stopped  bool
	rootPath string
}

// NewHybridWatcher creates a watcher. It does not watch anything until
// Start is called.
func NewHybridWatcher(opts Options) (*HybridWatcher, error) {
	opts = opts.WithDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts, err := opts.compile()
	if err != nil {
		return nil, err
	}

	h := &HybridWatcher{
		opts:      opts,
		debouncer: NewDebouncer(opts.DebounceWindow),
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}

	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			h.fsWatcher = fsw
		} else {
			slog.Warn("watcher_fsnotify_unavailable", slog.String("error", err.Error()))
		}
	}
	if h.fsWatcher == nil {
		h.poller = NewPollingWatcher(opts.PollInterval, opts.Ignored)
	}

	go h.forward()
	return h, nil
}

// Start watches root recursively and blocks until ctx is done or Stop is
// called.
func (h *HybridWatcher) Start(ctx context.Context, root string) error {
	absPath, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("stat watch root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch root %s is not a directory", absPath)
	}

	h.mu.Lock()
	h.rootPath = absPath
	h.mu.Unlock()

	slog.Info("watcher_started",
		slog.String("root", absPath),
		slog.String("mode", h.WatcherType()))

	if h.fsWatcher != nil {
		return h.runFsnotify(ctx)
	}
	return h.runPolling(ctx)
}

func (h *HybridWatcher) runFsnotify(ctx context.Context) error {
	if err := h.addRecursive(h.rootPath, false); err != nil {
		return fmt.Errorf("add directories to watcher: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			_ = h.Stop()
			return ctx.Err()
		case <-h.stopCh:
			return nil
		case ev, ok := <-h.fsWatcher.Events:
			if !ok {
				return nil
			}
			h.handleFsnotifyEvent(ev)
		case err, ok := <-h.fsWatcher.Errors:
			if !ok {
				return nil
			}
			h.emitError(err)
		}
	}
}

func (h *HybridWatcher) runPolling(ctx context.Context) error {
	go func() {
		for ev := range h.poller.Events() {
			h.debouncer.Add(ev)
		}
	}()

	err := h.poller.Start(ctx, h.rootPath)
	if ctx.Err() != nil {
		_ = h.Stop()
	}
	return err
}

// handleFsnotifyEvent converts one fsnotify event into debouncer input.
func (h *HybridWatcher) handleFsnotifyEvent(ev fsnotify.Event) {
	rel, ok := h.relative(ev.Name)
	if !ok || h.opts.Ignored(rel, false) {
		return
	}
	now := time.Now()

	switch {
	case ev.Has(fsnotify.Create):
		info, err := os.Stat(ev.Name)
		if err != nil {
			// Already gone again.
			return
		}
		if info.IsDir() && h.opts.Ignored(rel, true) {
			return
		}
		if info.IsDir() {
			// Entries moved in with the directory produce no events of their own.
			if err := h.addRecursive(ev.Name, true); err != nil {
				h.emitError(err)
			}
		}
		h.debouncer.Add(FileEvent{Path: rel, Operation: OpCreate, IsDir: info.IsDir(), Timestamp: now})
	case ev.Has(fsnotify.Write):
		h.debouncer.Add(FileEvent{Path: rel, Operation: OpModify, Timestamp: now})
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		h.debouncer.Add(FileEvent{Path: rel, Operation: OpDelete, Timestamp: now})
	}
}

// addRecursive watches dir and every visible directory below it. With emit
// set, every visible entry below dir is also reported as created.
func (h *HybridWatcher) addRecursive(dir string, emit bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			slog.Warn("watcher_skip_directory",
				slog.String("path", path),
				slog.String("error", err.Error()))
			return nil
		}
		rel, ok := h.relative(path)
		if ok && h.opts.Ignored(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if emit && ok && path != dir {
			h.debouncer.Add(FileEvent{Path: rel, Operation: OpCreate, IsDir: d.IsDir(), Timestamp: time.Now()})
		}
		if d.IsDir() {
			if err := h.fsWatcher.Add(path); err != nil {
				return fmt.Errorf("watch %s: %w", path, err)
			}
		}
		return nil
	})
}

// relative returns the slash-separated path of abs below the root. ok is
// false for the root itself and for paths outside it.
func (h *HybridWatcher) relative(abs string) (string, bool) {
	h.mu.RLock()
	root := h.rootPath
	h.mu.RUnlock()

	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// forward moves debounced batches to the consumer until the debouncer is
// stopped, then closes the events channel.
func (h *HybridWatcher) forward() {
	defer close(h.events)
	for batch := range h.debouncer.Output() {
		select {
		case h.events <- batch:
		case <-h.stopCh:
			return
		}
	}
}

func (h *HybridWatcher) emitError(err error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.stopped {
		return
	}
	select {
	case h.errors <- err:
	default:
		slog.Warn("watcher_error_dropped", slog.String("error", err.Error()))
	}
}

// Stop releases the watcher and closes its channels. Safe to call
// multiple times.
func (h *HybridWatcher) Stop() error {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return nil
	}
	h.stopped = true
	close(h.stopCh)
	close(h.errors)
	h.mu.Unlock()

	h.debouncer.Stop()
	if h.fsWatcher != nil {
		_ = h.fsWatcher.Close()
	}
	if h.poller != nil {
		_ = h.poller.Stop()
	}
	return nil
}

// Events returns the channel of debounced batches. It is closed after Stop.
func (h *HybridWatcher) Events() <-chan []FileEvent {
	return h.events
}

// Errors returns non-fatal watcher errors. It is closed by Stop.
func (h *HybridWatcher) Errors() <-chan error {
	return h.errors
}

// WatcherType returns "fsnotify" or "polling".
func (h *HybridWatcher) WatcherType() string {
	if h.fsWatcher != nil {
		return "fsnotify"
	}
	return "polling"
}

// RootPath returns the watched root.
func (h *HybridWatcher) RootPath() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rootPath
}
