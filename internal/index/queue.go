package index

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	driveerrors "github.com/Aman-CERP/amandrive/internal/errors"
	"github.com/Aman-CERP/amandrive/internal/extract"
)

// DefaultQueueCapacity is the default ingestion queue capacity.
const DefaultQueueCapacity = 256

// DefaultFlushInterval is the default batch commit interval.
const DefaultFlushInterval = time.Second

// Queue is the bounded multi-producer ingestion queue. A full queue blocks
// producers; it never drops a valid record.
type Queue struct {
	ch         chan Record
	classifier *extract.Classifier
}

// NewQueue creates a queue of the given capacity. classifier resolves the
// content category of re-derived files.
func NewQueue(capacity int, classifier *extract.Classifier) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	if classifier == nil {
		classifier = extract.NewClassifier(nil)
	}
	return &Queue{
		ch:         make(chan Record, capacity),
		classifier: classifier,
	}
}

// Enqueue refreshes the record's volatile metadata from the live file and
// appends it to the queue, blocking while the queue is full. It returns
// false without error when the file no longer exists. Only ctx ends the wait.
func (q *Queue) Enqueue(ctx context.Context, r Record) (bool, error) {
	if r.Location == "" {
		return false, driveerrors.ValidationError("record "+r.FileID+" has no file location", nil)
	}

	info, err := os.Stat(r.Location)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("index_enqueue_stat_failed",
				slog.String("file_id", r.FileID),
				slog.String("path", r.Location),
				slog.String("error", err.Error()))
		}
		enqueuedTotal.WithLabelValues("dropped").Inc()
		return false, nil
	}
	q.refresh(&r, info)

	select {
	case q.ch <- r:
		enqueuedTotal.WithLabelValues("accepted").Inc()
		queueDepth.Set(float64(len(q.ch)))
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// refresh overwrites folder flag, name, modified time, size and category
// from the file system.
func (q *Queue) refresh(r *Record, info os.FileInfo) {
	isFolder := info.IsDir()
	modified := info.ModTime()
	r.IsFolder = &isFolder
	r.Name = filepath.Base(r.Location)
	r.Modified = &modified
	if isFolder {
		r.Size = nil
		r.Category = ""
		return
	}
	size := info.Size()
	r.Size = &size
	r.Category, _ = q.classifier.Classify(r.Location)
}

// Len returns the number of queued records.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return cap(q.ch)
}

// drain removes everything currently queued without blocking.
func (q *Queue) drain() []Record {
	var batch []Record
	for {
		select {
		case r := <-q.ch:
			batch = append(batch, r)
		default:
			queueDepth.Set(float64(len(q.ch)))
			return batch
		}
	}
}

// DeleteFlagClearer resets soft-delete flags in the metadata store.
type DeleteFlagClearer interface {
	ClearDeleteFlag(ctx context.Context, ids []string) (int64, error)
}

// BatchWriter buffers entries and commits them as one batch. *Writer
// implements it.
type BatchWriter interface {
	Upsert(id string, e *Entry) error
	CommitBatch(ctx context.Context) (rejected []string, err error)
}

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	FlushInterval time.Duration
}

// Scheduler drains the queue into the writer on a fixed interval, one
// commit per batch.
type Scheduler struct {
	queue     *Queue
	writer    BatchWriter
	extractor extract.Extractor
	flags     DeleteFlagClearer
	interval  time.Duration

	started  atomic.Bool
	flushMu  sync.Mutex
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewScheduler creates a stopped scheduler. flags may be nil.
func NewScheduler(cfg SchedulerConfig, queue *Queue, writer BatchWriter, extractor extract.Extractor, flags DeleteFlagClearer) *Scheduler {
	interval := cfg.FlushInterval
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &Scheduler{
		queue:     queue,
		writer:    writer,
		extractor: extractor,
		flags:     flags,
		interval:  interval,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start launches the flush loop. Only the first call has an effect; it
// reports whether this call started the loop.
func (s *Scheduler) Start(ctx context.Context) bool {
	if !s.started.CompareAndSwap(false, true) {
		return false
	}
	go s.run(ctx)
	slog.Info("index_scheduler_started",
		slog.Duration("interval", s.interval),
		slog.Int("queue_capacity", s.queue.Cap()))
	return true
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = s.Flush(ctx)
		}
	}
}

// Flush drains the queue and indexes everything drained as one batch. It
// returns the number of records written. Record-level failures are logged
// and skipped; a commit failure loses the batch.
func (s *Scheduler) Flush(ctx context.Context) (int, error) {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	batch := s.queue.drain()
	if len(batch) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(batch))
	for _, r := range batch {
		content := ""
		if (r.IsFolder == nil || !*r.IsFolder) && s.extractor != nil {
			content, _ = s.extractor.Extract(ctx, r.Location)
		}
		entry, err := BuildEntry(r, content)
		if err != nil {
			recordFailures.Inc()
			slog.Warn("index_record_skipped",
				append([]any{slog.String("file_id", r.FileID)}, driveerrors.LogAttrs(err)...)...)
			continue
		}
		if err := s.writer.Upsert(r.FileID, entry); err != nil {
			recordFailures.Inc()
			slog.Warn("index_record_skipped",
				append([]any{slog.String("file_id", r.FileID)}, driveerrors.LogAttrs(err)...)...)
			continue
		}
		ids = append(ids, r.FileID)
	}

	start := time.Now()
	rejected, err := s.writer.CommitBatch(ctx)
	if err != nil {
		slog.Error("index_batch_commit_failed",
			append([]any{slog.Int("records", len(batch))}, driveerrors.LogAttrs(err)...)...)
		return 0, err
	}
	if len(rejected) > 0 {
		ids = slices.DeleteFunc(ids, func(id string) bool {
			return slices.Contains(rejected, id)
		})
	}
	batchSize.Observe(float64(len(ids)))
	slog.Debug("index_batch_committed",
		slog.Int("records", len(ids)),
		slog.Int("skipped", len(batch)-len(ids)),
		slog.Duration("duration", time.Since(start)))

	if s.flags != nil && len(ids) > 0 {
		// Flag clearing outlives caller cancellation so a committed batch is never left flagged.
		if _, err := s.flags.ClearDeleteFlag(context.WithoutCancel(ctx), ids); err != nil {
			slog.Warn("index_delete_flag_clear_failed",
				slog.Int("records", len(ids)),
				slog.String("error", err.Error()))
		}
	}
	return len(ids), nil
}

// Close stops the loop and flushes whatever is still queued. Close is
// idempotent and safe on a scheduler that was never started.
func (s *Scheduler) Close() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if s.started.Load() {
			<-s.doneCh
		}
		_, err = s.Flush(context.Background())
	})
	return err
}
