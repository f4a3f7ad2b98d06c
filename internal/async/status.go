// Package async runs long reindex jobs in the background and reports their
// progress.
package async

import (
	"sync"
	"time"
)

// Status is the overall state of a reindex run.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusRunning  Status = "running"
	StatusReady    Status = "ready"
	StatusError    Status = "error"
	StatusCanceled Status = "canceled"
)

// Stage is the phase a running reindex is in.
type Stage string

const (
	// StageScanning walks the storage root counting files.
	StageScanning Stage = "scanning"
	// StageEnqueueing registers files and feeds them to the ingestion queue.
	StageEnqueueing Stage = "enqueueing"
	// StageCommitting waits for the final batch commit.
	StageCommitting Stage = "committing"
)

// ProgressSnapshot is an immutable copy of reindex progress.
type ProgressSnapshot struct {
	Status         string  `json:"status"`
	Stage          string  `json:"stage,omitempty"`
	FilesTotal     int     `json:"files_total"`
	FilesEnqueued  int     `json:"files_enqueued"`
	FilesCreated   int     `json:"files_created"`
	FilesSkipped   int     `json:"files_skipped"`
	ProgressPct    float64 `json:"progress_pct"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}

// Progress is a thread-safe reindex progress tracker.
type Progress struct {
	mu sync.RWMutex

	status        Status
	stage         Stage
	filesTotal    int
	filesEnqueued int
	filesCreated  int
	filesSkipped  int
	startTime     time.Time
	endTime       time.Time
	errorMessage  string
}

// NewProgress creates an idle tracker.
func NewProgress() *Progress {
	return &Progress{status: StatusIdle}
}

// reset starts a new run.
func (p *Progress) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusRunning
	p.stage = StageScanning
	p.filesTotal = 0
	p.filesEnqueued = 0
	p.filesCreated = 0
	p.filesSkipped = 0
	p.startTime = time.Now()
	p.endTime = time.Time{}
	p.errorMessage = ""
}

// SetStage moves to stage. A positive total replaces the file total.
func (p *Progress) SetStage(stage Stage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stage = stage
	if total > 0 {
		p.filesTotal = total
	}
}

// FileEnqueued records one file handed to the queue. created is true when a
// new metadata record was registered for it.
func (p *Progress) FileEnqueued(created bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.filesEnqueued++
	if created {
		p.filesCreated++
	}
}

// FileSkipped records a file that could not be enqueued.
func (p *Progress) FileSkipped() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.filesSkipped++
}

func (p *Progress) finish(status Status, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = status
	p.errorMessage = message
	p.endTime = time.Now()
}

// IsRunning reports whether a run is in progress.
func (p *Progress) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.status == StatusRunning
}

// Snapshot returns a copy of the current state.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var pct float64
	if p.filesTotal > 0 {
		pct = float64(p.filesEnqueued+p.filesSkipped) / float64(p.filesTotal) * 100.0
	}

	var elapsed time.Duration
	switch {
	case p.startTime.IsZero():
	case p.endTime.IsZero():
		elapsed = time.Since(p.startTime)
	default:
		elapsed = p.endTime.Sub(p.startTime)
	}

	snap := ProgressSnapshot{
		Status:         string(p.status),
		FilesTotal:     p.filesTotal,
		FilesEnqueued:  p.filesEnqueued,
		FilesCreated:   p.filesCreated,
		FilesSkipped:   p.filesSkipped,
		ProgressPct:    pct,
		ElapsedSeconds: int(elapsed.Seconds()),
		ErrorMessage:   p.errorMessage,
	}
	if p.status == StatusRunning {
		snap.Stage = string(p.stage)
	}
	return snap
}
