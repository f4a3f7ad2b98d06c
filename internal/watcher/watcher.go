package watcher

import (
	"fmt"
	"time"

	"github.com/Aman-CERP/amandrive/internal/ignore"
)

// Operation is the kind of change reported for a path.
type Operation int

const (
	// OpCreate indicates a new file or directory.
	OpCreate Operation = iota
	// OpModify indicates an existing file changed.
	OpModify
	// OpDelete indicates a file or directory is gone. Renames are reported
	// as a delete of the old path and a create of the new one.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one change under the watched root.
type FileEvent struct {
	// Path is slash separated and relative to the root.
	Path      string
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Options configures the watcher.
type Options struct {
	// DebounceWindow is how long events for a path are coalesced.
	// Default: 500ms
	DebounceWindow time.Duration

	// PollInterval is the scan interval in polling mode.
	// Default: 5s
	PollInterval time.Duration

	// EventBufferSize is the number of batches buffered for the consumer.
	// Default: 64
	EventBufferSize int

	// IgnorePatterns use gitignore syntax and are matched against paths
	// relative to the root. An ignored directory hides everything below it.
	IgnorePatterns []string

	// Ignore replaces IgnorePatterns when set.
	Ignore *ignore.Matcher

	// ForcePolling skips fsnotify.
	ForcePolling bool
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  500 * time.Millisecond,
		PollInterval:    5 * time.Second,
		EventBufferSize: 64,
		IgnorePatterns:  append([]string(nil), ignore.DefaultPatterns...),
	}
}

// Validate checks the options.
func (o Options) Validate() error {
	if o.DebounceWindow < 0 {
		return fmt.Errorf("debounce window must not be negative, got %s", o.DebounceWindow)
	}
	if o.PollInterval < 0 {
		return fmt.Errorf("poll interval must not be negative, got %s", o.PollInterval)
	}
	if o.EventBufferSize < 0 {
		return fmt.Errorf("event buffer size must not be negative, got %d", o.EventBufferSize)
	}
	if o.Ignore == nil {
		if _, err := ignore.New(o.IgnorePatterns...); err != nil {
			return err
		}
	}
	return nil
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.DebounceWindow == 0 {
		o.DebounceWindow = defaults.DebounceWindow
	}
	if o.PollInterval == 0 {
		o.PollInterval = defaults.PollInterval
	}
	if o.EventBufferSize == 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	if o.IgnorePatterns == nil {
		o.IgnorePatterns = defaults.IgnorePatterns
	}
	return o
}

// Ignored reports whether rel, a slash-separated relative path, is hidden.
// The root itself is always reported as hidden.
func (o Options) Ignored(rel string, isDir bool) bool {
	if rel == "" || rel == "." {
		return true
	}
	m := o.Ignore
	if m == nil {
		var err error
		if m, err = ignore.New(o.IgnorePatterns...); err != nil {
			return false
		}
	}
	return m.Match(rel, isDir)
}

// compile returns o with Ignore built from IgnorePatterns.
func (o Options) compile() (Options, error) {
	if o.Ignore != nil {
		return o, nil
	}
	m, err := ignore.New(o.IgnorePatterns...)
	if err != nil {
		return o, err
	}
	o.Ignore = m
	return o, nil
}
