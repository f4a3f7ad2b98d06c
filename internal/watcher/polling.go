package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// PollingWatcher detects changes by rescanning the tree on an interval. It
// is the fallback for file systems where fsnotify is unavailable, such as
// network mounts.
type PollingWatcher struct {
	interval time.Duration
	ignored  func(rel string, isDir bool) bool
	events   chan FileEvent
	stopCh   chan struct{}
	stopOnce sync.Once

	rootPath string
	state    map[string]fileSnapshot
}

type fileSnapshot struct {
	modTime time.Time
	size    int64
	isDir   bool
}

// NewPollingWatcher creates a polling watcher. ignored may be nil.
func NewPollingWatcher(interval time.Duration, ignored func(rel string, isDir bool) bool) *PollingWatcher {
	if ignored == nil {
		ignored = func(string, bool) bool { return false }
	}
	return &PollingWatcher{
		interval: interval,
		ignored:  ignored,
		events:   make(chan FileEvent, 256),
		stopCh:   make(chan struct{}),
	}
}

// Start scans root and then polls until ctx is done or Stop is called.
// The events channel is closed when Start returns.
func (p *PollingWatcher) Start(ctx context.Context, root string) error {
	defer close(p.events)

	absPath, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	if _, err := os.Stat(absPath); err != nil {
		return fmt.Errorf("perform initial scan: %w", err)
	}
	p.rootPath = absPath
	p.state = p.scan()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			current := p.scan()
			for _, ev := range diff(p.state, current) {
				select {
				case p.events <- ev:
				case <-ctx.Done():
					return ctx.Err()
				case <-p.stopCh:
					return nil
				}
			}
			p.state = current
		}
	}
}

// Stop ends polling. Safe to call multiple times.
func (p *PollingWatcher) Stop() error {
	p.stopOnce.Do(func() { close(p.stopCh) })
	return nil
}

// Events returns the channel of changes.
func (p *PollingWatcher) Events() <-chan FileEvent {
	return p.events
}

// scan records the state of every visible entry below the root.
func (p *PollingWatcher) scan() map[string]fileSnapshot {
	state := make(map[string]fileSnapshot)
	_ = filepath.WalkDir(p.rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(p.rootPath, path)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if p.ignored(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		state[rel] = fileSnapshot{modTime: info.ModTime(), size: info.Size(), isDir: d.IsDir()}
		return nil
	})
	return state
}

// diff lists the events that turn prev into current.
func diff(prev, current map[string]fileSnapshot) []FileEvent {
	now := time.Now()
	var events []FileEvent
	for rel, cur := range current {
		old, ok := prev[rel]
		switch {
		case !ok:
			events = append(events, FileEvent{Path: rel, Operation: OpCreate, IsDir: cur.isDir, Timestamp: now})
		case !cur.isDir && (old.modTime != cur.modTime || old.size != cur.size):
			events = append(events, FileEvent{Path: rel, Operation: OpModify, Timestamp: now})
		}
	}
	for rel, old := range prev {
		if _, ok := current[rel]; !ok {
			events = append(events, FileEvent{Path: rel, Operation: OpDelete, IsDir: old.isDir, Timestamp: now})
		}
	}
	return events
}
