package index

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amandrive/internal/store"
)

func newTestReconciler(t *testing.T) (*Reconciler, *Writer, *store.SQLiteStore) {
	t.Helper()
	w := newMemWriter(t)
	s, err := store.NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return NewReconciler(w, s), w, s
}

func seed(t *testing.T, w *Writer, s *store.SQLiteStore, owner string, ids ...string) {
	t.Helper()
	ctx := context.Background()
	files := make([]*store.File, 0, len(ids))
	for _, id := range ids {
		files = append(files, &store.File{ID: id, OwnerID: owner, Path: "/", Name: id, ModTime: time.Now()})
		require.NoError(t, w.Upsert(id, entry(id, owner, id)))
	}
	require.NoError(t, s.SaveFiles(ctx, files))
	require.NoError(t, w.Commit(ctx))
}

func TestReconciler_DeleteByIDs(t *testing.T) {
	r, w, s := newTestReconciler(t)
	seed(t, w, s, "u1", "a", "b", "c")

	require.NoError(t, r.DeleteByIDs(context.Background(), []string{"a", "c"}))

	assert.Equal(t, []string{"b"}, idsFor(t, w, FieldOwner, "u1"))
	assert.NoError(t, r.DeleteByIDs(context.Background(), nil))
}

func TestReconciler_DeleteAllByOwner(t *testing.T) {
	r, w, s := newTestReconciler(t)
	ctx := context.Background()
	seed(t, w, s, "alice", "a1", "a2")
	seed(t, w, s, "bob", "b1")

	// When: purging alice
	require.NoError(t, r.DeleteAllByOwner(ctx, "alice"))

	// Then: alice has no entries, bob is unaffected, alice's records are flagged
	assert.Empty(t, idsFor(t, w, FieldOwner, "alice"))
	assert.Equal(t, []string{"b1"}, idsFor(t, w, FieldOwner, "bob"))
	flagged, err := s.ListSoftDeletedIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2"}, flagged)
}

func TestReconciler_CheckConsistency(t *testing.T) {
	r, w, s := newTestReconciler(t)
	ctx := context.Background()

	// Given: two indexed entries and two externally backed records
	seed(t, w, s, "u1", "a", "b")
	require.NoError(t, s.SaveFiles(ctx, []*store.File{
		{ID: "a", OwnerID: "u1", Path: "/", Name: "a", OSSFolder: "bucket"},
		{ID: "b", OwnerID: "u1", Path: "/", Name: "b", OSSFolder: "bucket"},
	}))

	// Then: equal counts are not consistent
	ok, err := r.CheckConsistency(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// When: the index holds one more entry
	seed(t, w, s, "u1", "c")

	// Then: strictly more is consistent
	ok, err = r.CheckConsistency(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReconciler_SweepSoftDeleted(t *testing.T) {
	r, w, s := newTestReconciler(t)
	ctx := context.Background()
	seed(t, w, s, "alice", "a1", "a2")
	require.NoError(t, r.DeleteAllByOwner(ctx, "alice"))

	// Given: a2 was re-indexed after the purge but its batch has not cleared the flag yet
	require.NoError(t, w.Upsert("a2", entry("a2", "alice", "a2")))
	require.NoError(t, w.Commit(ctx))

	// When: sweeping
	cleared, err := r.SweepSoftDeleted(ctx)

	// Then: only the confirmed-gone record is cleared
	require.NoError(t, err)
	assert.EqualValues(t, 1, cleared)
	flagged, err := s.ListSoftDeletedIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a2"}, flagged)
}

func TestReconciler_Audit(t *testing.T) {
	r, w, s := newTestReconciler(t)
	ctx := context.Background()
	seed(t, w, s, "u1", "a", "b")

	// Given: an index entry with no record and a record with no entry
	require.NoError(t, w.Upsert("orphan", entry("orphan", "u1", "o")))
	require.NoError(t, w.Commit(ctx))
	require.NoError(t, s.SaveFiles(ctx, []*store.File{{ID: "unindexed", OwnerID: "u1", Path: "/", Name: "u"}}))

	result, err := r.Audit(ctx)

	require.NoError(t, err)
	assert.False(t, result.Consistent())
	assert.Equal(t, 3, result.Indexed)
	assert.Equal(t, 3, result.Stored)
	assert.Equal(t, []string{"orphan"}, result.Orphans)
	assert.Equal(t, []string{"unindexed"}, result.Missing)
}
