package async

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// LockFileName marks a reindex in progress. It is left behind when the
// process dies mid-run.
const LockFileName = "reindex.lock"

// ErrRunning is returned by Start while a run is in progress.
var ErrRunning = errors.New("reindex already running")

// RunFunc is the reindex work. It reports progress through p and must
// return promptly once ctx is done.
type RunFunc func(ctx context.Context, p *Progress) error

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	// DataDir holds the lock file.
	DataDir string
}

// Runner executes a RunFunc in a background goroutine, one run at a time.
type Runner struct {
	config   RunnerConfig
	progress *Progress
	run      RunFunc

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

// NewRunner creates a runner for fn.
func NewRunner(cfg RunnerConfig, fn RunFunc) *Runner {
	done := make(chan struct{})
	close(done)
	return &Runner{
		config:   cfg,
		progress: NewProgress(),
		run:      fn,
		done:     done,
	}
}

// Progress returns the tracker shared by every run.
func (r *Runner) Progress() *Progress {
	return r.progress
}

// IsRunning reports whether a run is in progress.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Start begins a run and returns immediately. Use Wait to block until it
// completes.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return ErrRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	r.running = true
	r.cancel = cancel
	r.done = make(chan struct{})
	r.err = nil
	r.progress.reset()

	go r.execute(ctx, r.done)
	return nil
}

func (r *Runner) execute(ctx context.Context, done chan struct{}) {
	start := time.Now()
	err := r.guarded(ctx)

	switch {
	case err == nil:
		r.progress.finish(StatusReady, "")
		slog.Info("reindex_completed",
			slog.Int("files", r.progress.Snapshot().FilesEnqueued),
			slog.Duration("duration", time.Since(start)))
	case errors.Is(err, context.Canceled):
		r.progress.finish(StatusCanceled, err.Error())
		slog.Warn("reindex_canceled", slog.Duration("duration", time.Since(start)))
	default:
		r.progress.finish(StatusError, err.Error())
		slog.Error("reindex_failed", slog.String("error", err.Error()))
	}

	r.mu.Lock()
	r.err = err
	r.running = false
	r.cancel()
	r.mu.Unlock()
	close(done)
}

// guarded runs the RunFunc under the lock file.
func (r *Runner) guarded(ctx context.Context) error {
	if err := os.MkdirAll(r.config.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	lockPath := filepath.Join(r.config.DataDir, LockFileName)
	if err := os.WriteFile(lockPath, []byte(time.Now().Format(time.RFC3339)), 0o644); err != nil {
		return fmt.Errorf("failed to write reindex lock: %w", err)
	}

	if r.run == nil {
		_ = os.Remove(lockPath)
		return nil
	}
	err := r.run(ctx, r.progress)
	if err == nil || !errors.Is(err, context.Canceled) {
		// A canceled run keeps its lock so the next start resumes it.
		_ = os.Remove(lockPath)
	}
	return err
}

// Stop cancels the current run and waits for it to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	<-done
}

// Wait blocks until the current run completes and returns its error.
func (r *Runner) Wait() error {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	<-done

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// HasIncompleteLock reports whether a previous run in dataDir did not
// finish.
func HasIncompleteLock(dataDir string) bool {
	_, err := os.Stat(filepath.Join(dataDir, LockFileName))
	return err == nil
}
