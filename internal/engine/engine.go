// Package engine wires the metadata store, the index, the ingestion
// pipeline and the search executor into one process-wide service with an
// explicit Start and Close.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Aman-CERP/amandrive/internal/async"
	"github.com/Aman-CERP/amandrive/internal/config"
	driveerrors "github.com/Aman-CERP/amandrive/internal/errors"
	"github.com/Aman-CERP/amandrive/internal/extract"
	"github.com/Aman-CERP/amandrive/internal/ignore"
	"github.com/Aman-CERP/amandrive/internal/index"
	"github.com/Aman-CERP/amandrive/internal/search"
	"github.com/Aman-CERP/amandrive/internal/store"
	"github.com/Aman-CERP/amandrive/internal/telemetry"
	"github.com/Aman-CERP/amandrive/internal/watcher"
)

// Engine is the ingestion and search facade.
type Engine struct {
	cfg      *config.Config
	root     string
	ignore   *ignore.Matcher
	inMemory bool

	metadata   *store.SQLiteStore
	writer     *index.Writer
	queue      *index.Queue
	scheduler  *index.Scheduler
	reconciler *index.Reconciler
	extractor  *extract.CachedExtractor
	executor   *search.Executor
	reindexer  *async.Runner
	queries    *telemetry.Collector

	started   atomic.Bool
	closeOnce sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithInMemoryIndex keeps the index in memory instead of under the data
// directory.
func WithInMemoryIndex() Option {
	return func(e *Engine) {
		e.inMemory = true
	}
}

// WithIgnore sets the rules applied to storage paths during reindex and
// watching. Defaults to the configured patterns plus the storage root's
// ignore files.
func WithIgnore(m *ignore.Matcher) Option {
	return func(e *Engine) {
		if m != nil {
			e.ignore = m
		}
	}
}

// New opens the metadata store and the index described by cfg. The
// background loops are not running until Start.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, driveerrors.ConfigError("engine requires a configuration", nil)
	}
	e := &Engine{
		cfg:    cfg,
		root:   cfg.Storage.Root,
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.ignore == nil {
		m, err := ignore.Load(cfg.Storage.Root, cfg.Storage.Ignore)
		if err != nil {
			return nil, driveerrors.ConfigError("failed to load ignore rules", err)
		}
		e.ignore = m
	}

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, driveerrors.New(driveerrors.ErrCodeFilePermission, "failed to create data directory", err).
			WithDetail("path", cfg.Storage.DataDir)
	}

	metadata, err := store.NewSQLiteStore(cfg.MetadataPath())
	if err != nil {
		return nil, driveerrors.StoreError("failed to open metadata store", err).
			WithDetail("path", cfg.MetadataPath())
	}
	indexPath := cfg.IndexPath()
	if e.inMemory {
		indexPath = ""
	}
	writer, err := index.OpenWriter(indexPath)
	if err != nil {
		_ = metadata.Close()
		return nil, err
	}

	classifier := extract.NewClassifier(cfg.Index.DocumentTypes)
	e.metadata = metadata
	e.writer = writer
	e.extractor = extract.NewCachedExtractor(extract.NewFileExtractor(extract.Config{
		TextTypes: cfg.Index.TextTypes,
		MaxBytes:  cfg.Index.MaxExtractBytes,
	}), cfg.Index.ExtractCacheSize)
	e.queue = index.NewQueue(cfg.Index.QueueCapacity, classifier)
	e.scheduler = index.NewScheduler(index.SchedulerConfig{FlushInterval: cfg.FlushDuration()},
		e.queue, writer, e.extractor, metadata)
	e.reconciler = index.NewReconciler(writer, metadata)

	builder := search.NewBuilder(search.Boosts{
		Fields:    cfg.Search.Boosts,
		Substring: cfg.Search.SubstringBoost,
	})
	e.executor, err = search.NewExecutor(writer, metadata, search.Config{
		DefaultPageSize: cfg.Search.DefaultPageSize,
		MaxPageSize:     cfg.Search.MaxPageSize,
	}, search.WithBuilder(builder))
	if err != nil {
		_ = writer.Close()
		_ = metadata.Close()
		return nil, err
	}

	e.reindexer = async.NewRunner(async.RunnerConfig{DataDir: cfg.Storage.DataDir}, e.reindex)
	e.queries = telemetry.NewCollector(telemetry.DefaultConfig())
	return e, nil
}

// Start launches the batch scheduler and the soft-delete sweep, and
// resumes a reindex that a previous process did not finish. Only the first
// call has an effect.
func (e *Engine) Start(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return nil
	}
	e.scheduler.Start(ctx)

	if interval := e.cfg.SweepDuration(); interval > 0 {
		e.wg.Add(1)
		go e.sweepLoop(ctx, interval)
	}

	if async.HasIncompleteLock(e.cfg.Storage.DataDir) {
		slog.Info("reindex_resuming", slog.String("data_dir", e.cfg.Storage.DataDir))
		if err := e.reindexer.Start(ctx); err != nil && !errors.Is(err, async.ErrRunning) {
			return err
		}
	}
	return nil
}

// Close stops background work, flushes the queue and closes the index and
// the store. Close is idempotent.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.reindexer.Stop()
		close(e.stopCh)
		e.wg.Wait()
		err = errors.Join(
			e.scheduler.Close(),
			e.writer.Close(),
			e.metadata.Close(),
		)
	})
	return err
}

func (e *Engine) sweepLoop(ctx context.Context, interval time.Duration) {
	defer e.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			if _, err := e.reconciler.SweepSoftDeleted(ctx); err != nil {
				slog.Warn("soft_delete_sweep_failed", driveerrors.LogAttrs(err)...)
			}
		}
	}
}

// Metadata returns the metadata store.
func (e *Engine) Metadata() store.MetadataStore {
	return e.metadata
}

// Ignore returns the rules hiding storage paths from the engine. A watcher
// feeding ConsumeEvents should use the same rules.
func (e *Engine) Ignore() *ignore.Matcher {
	return e.ignore
}

// ignored reports whether rel is hidden from the engine.
func (e *Engine) ignored(rel string, isDir bool) bool {
	return watcher.Options{Ignore: e.ignore}.Ignored(rel, isDir)
}

// Root returns the storage root.
func (e *Engine) Root() string {
	return e.root
}

// NotifyChanged queues the listed files for (re)indexing. Unknown ids and
// files that no longer exist are skipped. It returns the number queued and
// blocks while the queue is full.
func (e *Engine) NotifyChanged(ctx context.Context, ids ...string) (int, error) {
	queued := 0
	for _, id := range ids {
		f, err := e.metadata.GetFile(ctx, id)
		if err != nil {
			return queued, driveerrors.StoreError("failed to load file", err).WithDetail("file_id", id)
		}
		if f == nil {
			slog.Debug("notify_changed_unknown_file", slog.String("file_id", id))
			continue
		}
		ok, err := e.enqueue(ctx, f)
		if err != nil {
			return queued, err
		}
		if ok {
			queued++
		}
	}
	return queued, nil
}

func (e *Engine) enqueue(ctx context.Context, f *store.File) (bool, error) {
	return e.queue.Enqueue(ctx, recordFor(e.root, f))
}

func recordFor(root string, f *store.File) index.Record {
	isFolder, isFavorite, modified, size := f.IsFolder, f.IsFavorite, f.ModTime, f.Size
	r := index.Record{
		FileID:     f.ID,
		OwnerID:    f.OwnerID,
		Name:       f.Name,
		Path:       f.Path,
		TagName:    f.TagName,
		IsFolder:   &isFolder,
		IsFavorite: &isFavorite,
		Location:   Location(root, f),
	}
	if !modified.IsZero() {
		r.Modified = &modified
	}
	if !isFolder {
		r.Size = &size
	}
	return r
}

// NotifyDeleted removes the listed files from the index with one commit.
func (e *Engine) NotifyDeleted(ctx context.Context, ids ...string) error {
	return e.reconciler.DeleteByIDs(ctx, ids)
}

// NotifyOwnerPurged removes every index entry of ownerID and flags the
// owner's metadata records as soft-deleted.
func (e *Engine) NotifyOwnerPurged(ctx context.Context, ownerID string) error {
	if ownerID == "" {
		return driveerrors.ValidationError("owner id is required", nil)
	}
	return e.reconciler.DeleteAllByOwner(ctx, ownerID)
}

// Search runs one search request.
func (e *Engine) Search(ctx context.Context, req search.Request) (*search.Response, error) {
	start := time.Now()
	resp, err := e.executor.Search(ctx, req)
	if err != nil {
		return nil, driveerrors.New(driveerrors.ErrCodeSearchFailed, "search failed", err)
	}
	e.queries.Record(telemetry.QueryEvent{
		OwnerID: req.OwnerID,
		Keyword: req.Keyword,
		Sort:    string(req.SortField),
		Results: resp.TotalCount,
		Latency: time.Since(start),
	})
	return resp, nil
}

// CheckConsistency reports whether the index holds strictly more live
// entries than the store holds externally-backed records.
func (e *Engine) CheckConsistency(ctx context.Context) (bool, error) {
	return e.reconciler.CheckConsistency(ctx)
}

// Audit compares every index entry with every store record.
func (e *Engine) Audit(ctx context.Context) (*index.AuditResult, error) {
	return e.reconciler.Audit(ctx)
}

// SweepSoftDeleted clears soft-delete flags whose index removal is
// confirmed.
func (e *Engine) SweepSoftDeleted(ctx context.Context) (int64, error) {
	return e.reconciler.SweepSoftDeleted(ctx)
}

// Flush indexes everything queued right now instead of waiting for the
// next tick.
func (e *Engine) Flush(ctx context.Context) (int, error) {
	return e.scheduler.Flush(ctx)
}

// Stats is a point-in-time view of engine state.
type Stats struct {
	Documents     uint64                 `json:"documents"`
	QueueDepth    int                    `json:"queue_depth"`
	QueueCapacity int                    `json:"queue_capacity"`
	Pending       int                    `json:"pending"`
	ExtractCached int                    `json:"extract_cached"`
	IndexPath     string                 `json:"index_path"`
	Reindex       async.ProgressSnapshot `json:"reindex"`
	Queries       *telemetry.Snapshot    `json:"queries"`
}

// Stats returns the current engine state.
func (e *Engine) Stats() (*Stats, error) {
	docs, err := e.writer.DocumentCount()
	if err != nil {
		return nil, fmt.Errorf("document count: %w", err)
	}
	path := e.writer.Path()
	if path == "" {
		path = "memory"
	}
	return &Stats{
		Documents:     docs,
		QueueDepth:    e.queue.Len(),
		QueueCapacity: e.queue.Cap(),
		Pending:       e.writer.Pending(),
		ExtractCached: e.extractor.Len(),
		IndexPath:     path,
		Reindex:       e.reindexer.Progress().Snapshot(),
		Queries:       e.queries.Snapshot(),
	}, nil
}
