package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	driveerrors "github.com/Aman-CERP/amandrive/internal/errors"
)

// idPageSize is the page size used when walking document ids.
const idPageSize = 10000

// Writer is the only path through which the index changes. Mutations are
// buffered and become visible to searches atomically on Commit. Reads run
// against the last committed state and never wait for a commit.
type Writer struct {
	// opMu serializes mutations and commits.
	opMu         sync.Mutex
	pending      map[string]*Entry // nil entry means delete
	purgedOwners map[string]struct{}

	// mu guards idx and closed for readers.
	mu     sync.RWMutex
	idx    bleve.Index
	path   string
	lock   *DirLock
	closed bool
}

// validateIndexIntegrity checks that an existing index directory has a
// readable index_meta.json. A missing directory is valid.
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	data, err := os.ReadFile(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

// isCorruptionError reports whether an open error means the index is unusable.
func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, bleve.ErrorIndexMetaCorrupt) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "unexpected end of JSON") ||
		strings.Contains(msg, "error parsing mapping JSON") ||
		strings.Contains(msg, "failed to load segment") ||
		strings.Contains(msg, "error opening bolt")
}

// OpenWriter opens the index at path, creating it when absent. An empty
// path creates an in-memory index. A corrupt on-disk index is cleared and
// recreated empty; the caller is expected to reindex.
func OpenWriter(path string) (*Writer, error) {
	im, err := NewIndexMapping()
	if err != nil {
		return nil, driveerrors.IndexError("failed to build index mapping", err)
	}

	w := &Writer{
		path:         path,
		pending:      make(map[string]*Entry),
		purgedOwners: make(map[string]struct{}),
	}

	if path == "" {
		w.idx, err = bleve.NewMemOnly(im)
		if err != nil {
			return nil, driveerrors.IndexError("failed to create in-memory index", err)
		}
		return w, nil
	}

	w.lock = NewDirLock(path)
	acquired, err := w.lock.TryLock()
	if err != nil {
		return nil, driveerrors.New(driveerrors.ErrCodeIndexLocked, "failed to lock index", err)
	}
	if !acquired {
		return nil, driveerrors.New(driveerrors.ErrCodeIndexLocked,
			fmt.Sprintf("index %s is in use by another process", path), nil).
			WithSuggestion("Stop the other amandrive process or use a different data_dir")
	}

	w.idx, err = openOrCreate(path, im)
	if err != nil {
		_ = w.lock.Unlock()
		return nil, err
	}
	return w, nil
}

func openOrCreate(path string, im mapping.IndexMapping) (bleve.Index, error) {
	if validErr := validateIndexIntegrity(path); validErr != nil {
		slog.Warn("index_corrupted", slog.String("path", path), slog.String("error", validErr.Error()))
		if err := os.RemoveAll(path); err != nil {
			return nil, driveerrors.New(driveerrors.ErrCodeCorruptIndex,
				fmt.Sprintf("index corrupted at %s and cannot be removed", path), err)
		}
		slog.Info("index_cleared", slog.String("path", path), slog.String("reason", "corruption detected, please reindex"))
	}

	idx, err := bleve.Open(path)
	switch {
	case errors.Is(err, bleve.ErrorIndexPathDoesNotExist):
		idx, err = bleve.New(path, im)
	case isCorruptionError(err):
		slog.Warn("index_open_failed", slog.String("path", path), slog.String("error", err.Error()))
		if rmErr := os.RemoveAll(path); rmErr != nil {
			return nil, driveerrors.New(driveerrors.ErrCodeCorruptIndex, "index corrupted and cannot be cleared", rmErr)
		}
		slog.Info("index_cleared", slog.String("path", path), slog.String("reason", "open failed with corruption, please reindex"))
		idx, err = bleve.New(path, im)
	}
	if err != nil {
		return nil, driveerrors.IndexError(fmt.Sprintf("failed to open index at %s", path), err)
	}
	return idx, nil
}

// Upsert buffers a replace-or-insert of the entry keyed by id.
func (w *Writer) Upsert(id string, e *Entry) error {
	if id == "" || e == nil {
		return driveerrors.ValidationError("upsert needs an id and an entry", nil)
	}
	w.opMu.Lock()
	defer w.opMu.Unlock()
	if w.isClosed() {
		return errClosed()
	}
	w.pending[id] = e
	return nil
}

// DeleteByID buffers removal of the entry keyed by id. Unknown ids are a no-op.
func (w *Writer) DeleteByID(id string) error {
	if id == "" {
		return driveerrors.ValidationError("delete needs an id", nil)
	}
	w.opMu.Lock()
	defer w.opMu.Unlock()
	if w.isClosed() {
		return errClosed()
	}
	w.pending[id] = nil
	return nil
}

// DeleteByOwner buffers removal of every entry of ownerID, including
// entries upserted earlier in the same uncommitted batch.
func (w *Writer) DeleteByOwner(ownerID string) error {
	if ownerID == "" {
		return driveerrors.ValidationError("delete needs an owner", nil)
	}
	w.opMu.Lock()
	defer w.opMu.Unlock()
	if w.isClosed() {
		return errClosed()
	}
	for id, e := range w.pending {
		if e != nil && e.Owner == ownerID {
			delete(w.pending, id)
		}
	}
	w.purgedOwners[ownerID] = struct{}{}
	return nil
}

// Pending returns the number of buffered operations.
func (w *Writer) Pending() int {
	w.opMu.Lock()
	defer w.opMu.Unlock()
	return len(w.pending) + len(w.purgedOwners)
}

// Commit applies all buffered operations as one atomic batch. The buffer is
// emptied whether or not the commit succeeds.
func (w *Writer) Commit(ctx context.Context) error {
	_, err := w.CommitBatch(ctx)
	return err
}

// CommitBatch is Commit reporting the ids of upserts the index rejected.
// Rejected entries are left out of the batch; the rest still commit.
func (w *Writer) CommitBatch(ctx context.Context) (rejected []string, err error) {
	w.opMu.Lock()
	defer w.opMu.Unlock()
	if w.isClosed() {
		return nil, errClosed()
	}
	if len(w.pending) == 0 && len(w.purgedOwners) == 0 {
		return nil, nil
	}

	pending, purged := w.pending, w.purgedOwners
	w.pending = make(map[string]*Entry)
	w.purgedOwners = make(map[string]struct{})

	start := time.Now()
	b := w.idx.NewBatch()
	// Owner purges go in first so that later upserts for the same id win.
	for owner := range purged {
		err := w.forEachID(ctx, ownerQuery(owner), func(id string) {
			b.Delete(id)
		})
		if err != nil {
			commitsTotal.WithLabelValues("failure").Inc()
			return nil, driveerrors.New(driveerrors.ErrCodeCommitFailed, "failed to resolve owner entries", err).
				WithDetail("owner", owner)
		}
	}
	for id, e := range pending {
		if e == nil {
			b.Delete(id)
			continue
		}
		if err := b.Index(id, e.Fields()); err != nil {
			recordFailures.Inc()
			rejected = append(rejected, id)
			slog.Warn("index_entry_rejected", slog.String("id", id), slog.String("error", err.Error()))
		}
	}

	if err := w.idx.Batch(b); err != nil {
		commitsTotal.WithLabelValues("failure").Inc()
		return nil, driveerrors.New(driveerrors.ErrCodeCommitFailed, "failed to commit index batch", err)
	}
	commitDuration.Observe(time.Since(start).Seconds())
	commitsTotal.WithLabelValues("success").Inc()

	if n, err := w.idx.DocCount(); err == nil {
		documentCount.Set(float64(n))
	}
	return rejected, nil
}

// DocumentCount returns the number of live committed entries.
func (w *Writer) DocumentCount() (uint64, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return 0, errClosed()
	}
	n, err := w.idx.DocCount()
	if err != nil {
		return 0, driveerrors.IndexError("failed to count documents", err)
	}
	return n, nil
}

// Search runs req against the committed index.
func (w *Writer) Search(ctx context.Context, req *bleve.SearchRequest) (*bleve.SearchResult, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return nil, errClosed()
	}
	return w.idx.SearchInContext(ctx, req)
}

// AllIDs returns the id of every committed entry.
func (w *Writer) AllIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := w.forEachID(ctx, bleve.NewMatchAllQuery(), func(id string) {
		ids = append(ids, id)
	})
	return ids, err
}

// OwnerIDs returns the ids of ownerID's committed entries.
func (w *Writer) OwnerIDs(ctx context.Context, ownerID string) ([]string, error) {
	var ids []string
	err := w.forEachID(ctx, ownerQuery(ownerID), func(id string) {
		ids = append(ids, id)
	})
	return ids, err
}

// forEachID pages through the ids matching q in id order.
func (w *Writer) forEachID(ctx context.Context, q query.Query, fn func(id string)) error {
	var after []string
	for {
		req := bleve.NewSearchRequestOptions(q, idPageSize, 0, false)
		req.SortBy([]string{"_id"})
		if after != nil {
			req.SearchAfter = after
		}
		res, err := w.Search(ctx, req)
		if err != nil {
			return err
		}
		for _, hit := range res.Hits {
			fn(hit.ID)
		}
		if len(res.Hits) < idPageSize {
			return nil
		}
		after = []string{res.Hits[len(res.Hits)-1].ID}
	}
}

// Close discards uncommitted operations, closes the index and releases the
// directory lock. Close is idempotent.
func (w *Writer) Close() error {
	w.opMu.Lock()
	defer w.opMu.Unlock()
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if n := len(w.pending) + len(w.purgedOwners); n > 0 {
		slog.Warn("index_pending_discarded", slog.Int("operations", n))
	}
	err := w.idx.Close()
	if w.lock != nil {
		if unlockErr := w.lock.Unlock(); unlockErr != nil && err == nil {
			err = unlockErr
		}
	}
	return err
}

// Path returns the on-disk index path, empty for in-memory indexes.
func (w *Writer) Path() string {
	return w.path
}

func (w *Writer) isClosed() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.closed
}

func ownerQuery(ownerID string) query.Query {
	q := bleve.NewTermQuery(ownerID)
	q.SetField(FieldOwner)
	return q
}

func errClosed() error {
	return driveerrors.New(driveerrors.ErrCodeIndexClosed, "index is closed", nil)
}

// ExistingIDs returns the subset of ids that have a committed entry.
func (w *Writer) ExistingIDs(ctx context.Context, ids []string) ([]string, error) {
	const chunk = 1000
	var found []string
	for start := 0; start < len(ids); start += chunk {
		end := min(start+chunk, len(ids))
		req := bleve.NewSearchRequestOptions(bleve.NewDocIDQuery(ids[start:end]), end-start, 0, false)
		res, err := w.Search(ctx, req)
		if err != nil {
			return nil, err
		}
		for _, hit := range res.Hits {
			found = append(found, hit.ID)
		}
	}
	return found, nil
}
