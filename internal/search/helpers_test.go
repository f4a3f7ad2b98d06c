package search

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amandrive/internal/extract"
	"github.com/Aman-CERP/amandrive/internal/index"
	"github.com/Aman-CERP/amandrive/internal/store"
)

type fixture struct {
	writer   *index.Writer
	metadata *store.SQLiteStore
	exec     *Executor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	w, err := index.OpenWriter("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ex, err := NewExecutor(w, st, DefaultConfig())
	require.NoError(t, err)
	return &fixture{writer: w, metadata: st, exec: ex}
}

// add stores f and buffers its index entry. Call commit to make it visible.
func (fx *fixture) add(t *testing.T, f *store.File, category extract.Category, content string) {
	t.Helper()
	if f.ModTime.IsZero() {
		f.ModTime = time.Unix(1700000000, 0)
	}
	if f.Path == "" {
		f.Path = "/"
	}
	require.NoError(t, fx.metadata.SaveFiles(context.Background(), []*store.File{f}))

	isFolder, isFavorite, size, mod := f.IsFolder, f.IsFavorite, f.Size, f.ModTime
	e, err := index.BuildEntry(index.Record{
		FileID:     f.ID,
		OwnerID:    f.OwnerID,
		Name:       f.Name,
		Path:       f.Path,
		TagName:    f.TagName,
		IsFolder:   &isFolder,
		IsFavorite: &isFavorite,
		Modified:   &mod,
		Size:       &size,
		Category:   category,
	}, content)
	require.NoError(t, err)
	require.NoError(t, fx.writer.Upsert(f.ID, e))
}

// addFolder stores a folder record and buffers an entry without size or
// modification time, the way folders are indexed.
func (fx *fixture) addFolder(t *testing.T, id, owner, name string) {
	t.Helper()
	f := &store.File{ID: id, OwnerID: owner, Path: "/", Name: name, IsFolder: true}
	require.NoError(t, fx.metadata.SaveFiles(context.Background(), []*store.File{f}))

	isFolder, isFavorite := true, false
	e, err := index.BuildEntry(index.Record{
		FileID:     id,
		OwnerID:    owner,
		Name:       name,
		Path:       "/",
		IsFolder:   &isFolder,
		IsFavorite: &isFavorite,
	}, "")
	require.NoError(t, err)
	require.NoError(t, fx.writer.Upsert(id, e))
}

func (fx *fixture) commit(t *testing.T) {
	t.Helper()
	require.NoError(t, fx.writer.Commit(context.Background()))
}

func (fx *fixture) search(t *testing.T, req Request) *Response {
	t.Helper()
	resp, err := fx.exec.Search(context.Background(), req)
	require.NoError(t, err)
	return resp
}

func ids(files []*store.File) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.ID)
	}
	return out
}

func boolPtr(b bool) *bool {
	return &b
}
