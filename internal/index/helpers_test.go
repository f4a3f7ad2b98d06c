package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/blevesearch/bleve/v2"
	"github.com/stretchr/testify/require"
)

func newMemWriter(t *testing.T) *Writer {
	t.Helper()
	w, err := OpenWriter("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func entry(id, owner, name string) *Entry {
	e, err := BuildEntry(Record{FileID: id, OwnerID: owner, Name: name}, "")
	if err != nil {
		panic(err)
	}
	return e
}

// idsFor returns the ids matching a term query on field, in id order.
func idsFor(t *testing.T, w *Writer, field, term string) []string {
	t.Helper()
	q := bleve.NewTermQuery(term)
	q.SetField(field)
	req := bleve.NewSearchRequestOptions(q, 1000, 0, false)
	req.SortBy([]string{"_id"})
	res, err := w.Search(context.Background(), req)
	require.NoError(t, err)
	ids := make([]string, 0, len(res.Hits))
	for _, h := range res.Hits {
		ids = append(ids, h.ID)
	}
	return ids
}

func writeTempFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}
