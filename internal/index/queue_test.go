package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amandrive/internal/extract"
)

type fakeFlags struct {
	mu      sync.Mutex
	cleared []string
}

func (f *fakeFlags) ClearDeleteFlag(_ context.Context, ids []string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, ids...)
	return int64(len(ids)), nil
}

func (f *fakeFlags) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cleared...)
}

func newTestPipeline(t *testing.T, capacity int, interval time.Duration) (*Queue, *Scheduler, *Writer, *fakeFlags) {
	t.Helper()
	w := newMemWriter(t)
	q := NewQueue(capacity, extract.NewClassifier([]string{"txt", "pdf"}))
	flags := &fakeFlags{}
	ext := extract.NewFileExtractor(extract.Config{TextTypes: []string{"txt"}})
	s := NewScheduler(SchedulerConfig{FlushInterval: interval}, q, w, ext, flags)
	t.Cleanup(func() { _ = s.Close() })
	return q, s, w, flags
}

func TestQueue_EnqueueRefreshesMetadata(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "notes.txt", "hello world")
	q := NewQueue(4, extract.NewClassifier([]string{"txt"}))

	// Given: a record with stale metadata
	stale := false
	ok, err := q.Enqueue(context.Background(), Record{
		FileID: "f1", OwnerID: "u1", Name: "stale-name", IsFolder: &stale, Location: path,
	})
	require.NoError(t, err)
	require.True(t, ok)

	// Then: the queued record carries the live file's metadata
	batch := q.drain()
	require.Len(t, batch, 1)
	r := batch[0]
	assert.Equal(t, "notes.txt", r.Name)
	require.NotNil(t, r.Size)
	assert.EqualValues(t, 11, *r.Size)
	require.NotNil(t, r.Modified)
	assert.Equal(t, extract.CategoryDocument, r.Category)
	assert.False(t, *r.IsFolder)
}

func TestQueue_EnqueueFolder(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "Photos")
	require.NoError(t, os.Mkdir(dir, 0o755))
	q := NewQueue(4, nil)

	ok, err := q.Enqueue(context.Background(), Record{FileID: "d1", OwnerID: "u1", Location: dir})
	require.NoError(t, err)
	require.True(t, ok)

	r := q.drain()[0]
	assert.True(t, *r.IsFolder)
	assert.Nil(t, r.Size)
	assert.Empty(t, r.Category)
}

func TestQueue_EnqueueDropsMissingFile(t *testing.T) {
	q := NewQueue(4, nil)

	ok, err := q.Enqueue(context.Background(), Record{
		FileID: "f1", OwnerID: "u1", Location: filepath.Join(t.TempDir(), "gone.txt"),
	})

	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, q.Len())
}

func TestQueue_EnqueueRequiresLocation(t *testing.T) {
	q := NewQueue(4, nil)
	_, err := q.Enqueue(context.Background(), Record{FileID: "f1", OwnerID: "u1"})
	assert.Error(t, err)
}

func TestQueue_FullQueueBlocksUntilContextDone(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "a.txt", "a")
	q := NewQueue(1, nil)
	ok, err := q.Enqueue(context.Background(), Record{FileID: "f1", OwnerID: "u1", Location: path})
	require.NoError(t, err)
	require.True(t, ok)

	// When: enqueueing into the full queue with a short deadline
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	ok, err = q.Enqueue(ctx, Record{FileID: "f2", OwnerID: "u1", Location: path})

	// Then: the producer waited and gave up only because of its context
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, q.Len())
}

func TestScheduler_FlushIndexesContentAndClearsFlags(t *testing.T) {
	dir := t.TempDir()
	q, s, w, flags := newTestPipeline(t, 8, time.Hour)
	ctx := context.Background()

	for i, body := range []string{"alpha report", "beta summary"} {
		path := writeTempFile(t, dir, fmt.Sprintf("doc%d.txt", i), body)
		ok, err := q.Enqueue(ctx, Record{FileID: fmt.Sprintf("f%d", i), OwnerID: "u1", Location: path})
		require.NoError(t, err)
		require.True(t, ok)
	}

	// When: flushing one batch
	n, err := s.Flush(ctx)

	// Then: both records are committed with their content and flags cleared
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	count, err := w.DocumentCount()
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
	assert.Equal(t, []string{"f0"}, idsFor(t, w, FieldContent, "alpha"))
	assert.ElementsMatch(t, []string{"f0", "f1"}, flags.ids())
}

func TestScheduler_SkipsInvalidRecords(t *testing.T) {
	dir := t.TempDir()
	q, s, w, flags := newTestPipeline(t, 8, time.Hour)
	ctx := context.Background()
	path := writeTempFile(t, dir, "a.txt", "a")

	_, err := q.Enqueue(ctx, Record{FileID: "good", OwnerID: "u1", Location: path})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, Record{FileID: "no-owner", Location: path})
	require.NoError(t, err)

	n, err := s.Flush(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	all, err := w.AllIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"good"}, all)
	assert.Equal(t, []string{"good"}, flags.ids())
}

// flakyWriter buffers like Writer and forwards a batch to it only when the
// commit is allowed to succeed. A failed commit drops the batch.
type flakyWriter struct {
	w *Writer

	mu      sync.Mutex
	fail    bool
	reject  map[string]bool
	pending map[string]*Entry
}

func newFlakyWriter(w *Writer) *flakyWriter {
	return &flakyWriter{w: w, reject: map[string]bool{}, pending: map[string]*Entry{}}
}

func (f *flakyWriter) Upsert(id string, e *Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending[id] = e
	return nil
}

func (f *flakyWriter) CommitBatch(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	pending, fail := f.pending, f.fail
	f.pending = map[string]*Entry{}
	f.mu.Unlock()

	if fail {
		return nil, errors.New("disk I/O error")
	}
	var rejected []string
	for id, e := range pending {
		if f.reject[id] {
			rejected = append(rejected, id)
			continue
		}
		if err := f.w.Upsert(id, e); err != nil {
			return nil, err
		}
	}
	if err := f.w.Commit(ctx); err != nil {
		return nil, err
	}
	return rejected, nil
}

func (f *flakyWriter) setFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

func TestScheduler_CommitFailureDropsBatch(t *testing.T) {
	dir := t.TempDir()
	w := newMemWriter(t)
	fw := newFlakyWriter(w)
	q := NewQueue(8, nil)
	flags := &fakeFlags{}
	s := NewScheduler(SchedulerConfig{FlushInterval: time.Hour}, q, fw, nil, flags)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	// Given: a batch whose commit fails
	path := writeTempFile(t, dir, "lost.txt", "x")
	_, err := q.Enqueue(ctx, Record{FileID: "lost", OwnerID: "u1", Location: path})
	require.NoError(t, err)
	fw.setFail(true)

	// When: flushing
	n, err := s.Flush(ctx)

	// Then: nothing is indexed, no flag is cleared and the queue is empty
	require.Error(t, err)
	assert.Zero(t, n)
	assert.Zero(t, q.Len())
	assert.Empty(t, flags.ids())
	all, err := w.AllIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	// When: the next tick commits a fresh record
	fw.setFail(false)
	path = writeTempFile(t, dir, "fresh.txt", "y")
	_, err = q.Enqueue(ctx, Record{FileID: "fresh", OwnerID: "u1", Location: path})
	require.NoError(t, err)
	n, err = s.Flush(ctx)

	// Then: only the fresh record is indexed and flagged clear
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	all, err = w.AllIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, all)
	assert.Equal(t, []string{"fresh"}, flags.ids())
}

func TestScheduler_RejectedEntriesKeepFlags(t *testing.T) {
	dir := t.TempDir()
	w := newMemWriter(t)
	fw := newFlakyWriter(w)
	fw.reject["bad"] = true
	q := NewQueue(8, nil)
	flags := &fakeFlags{}
	s := NewScheduler(SchedulerConfig{FlushInterval: time.Hour}, q, fw, nil, flags)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	path := writeTempFile(t, dir, "a.txt", "a")
	for _, id := range []string{"good", "bad"} {
		_, err := q.Enqueue(ctx, Record{FileID: id, OwnerID: "u1", Location: path})
		require.NoError(t, err)
	}

	// When: the index rejects one entry of the batch
	n, err := s.Flush(ctx)

	// Then: only the applied entry counts and has its flag cleared
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"good"}, flags.ids())
}

func TestWriter_CommitBatchReportsNoRejections(t *testing.T) {
	w := newMemWriter(t)
	require.NoError(t, w.Upsert("f1", entry("f1", "u1", "a.txt")))

	rejected, err := w.CommitBatch(context.Background())

	require.NoError(t, err)
	assert.Empty(t, rejected)
	assert.Zero(t, w.Pending())
}

func TestScheduler_StartOnce(t *testing.T) {
	_, s, _, _ := newTestPipeline(t, 8, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assert.True(t, s.Start(ctx))
	assert.False(t, s.Start(ctx))
}

func TestScheduler_CloseFlushesRemainingWork(t *testing.T) {
	dir := t.TempDir()
	q, s, w, _ := newTestPipeline(t, 8, time.Hour)
	ctx := context.Background()
	s.Start(ctx)

	path := writeTempFile(t, dir, "late.txt", "late")
	_, err := q.Enqueue(ctx, Record{FileID: "late", OwnerID: "u1", Location: path})
	require.NoError(t, err)

	// When: closing before any tick
	require.NoError(t, s.Close())

	// Then: the queued record was committed
	n, err := w.DocumentCount()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestScheduler_ConcurrentProducersOverCapacity(t *testing.T) {
	// Given: a queue of 256 and a running scheduler
	dir := t.TempDir()
	q, s, w, _ := newTestPipeline(t, DefaultQueueCapacity, 100*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.True(t, s.Start(ctx))

	const producers = 300
	paths := make([]string, producers)
	for i := range paths {
		paths[i] = writeTempFile(t, dir, fmt.Sprintf("f%03d.txt", i), "body")
	}

	// When: 300 concurrent callers enqueue one change each
	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := q.Enqueue(ctx, Record{
				FileID:   fmt.Sprintf("id-%03d", i),
				OwnerID:  "u1",
				Location: paths[i],
			})
			assert.NoError(t, err)
			assert.True(t, ok)
		}(i)
	}
	wg.Wait()

	// Then: none is lost and all become searchable after the following ticks
	require.Eventually(t, func() bool {
		n, err := w.DocumentCount()
		return err == nil && n == producers
	}, 5*time.Second, 20*time.Millisecond)
	assert.Len(t, idsFor(t, w, FieldOwner, "u1"), producers)
}
