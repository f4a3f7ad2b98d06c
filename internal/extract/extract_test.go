package extract

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/simplifiedchinese"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// writeZip builds a zip archive with the given entries.
func writeZip(t *testing.T, name string, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	// [Content_Types].xml first so the sniffer recognises OOXML.
	order := []string{"[Content_Types].xml"}
	for k := range entries {
		if k != "[Content_Types].xml" {
			order = append(order, k)
		}
	}
	for _, k := range order {
		body, ok := entries[k]
		if !ok {
			continue
		}
		w, err := zw.Create(k)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func newTestExtractor() *FileExtractor {
	return NewFileExtractor(Config{TextTypes: []string{"txt", "md"}})
}

func TestExtract_PlainUTF8(t *testing.T) {
	path := writeFile(t, "notes.txt", []byte("\xEF\xBB\xBFquarterly budget review\n"))

	text, ok := newTestExtractor().Extract(context.Background(), path)

	require.True(t, ok)
	assert.Equal(t, "quarterly budget review", text)
}

func TestExtract_DecodesGB18030(t *testing.T) {
	// Given: a Chinese text file in a legacy encoding
	sentence := "这是一份关于年度预算和项目计划的中文文档。"
	encoded, err := simplifiedchinese.GB18030.NewEncoder().String(strings.Repeat(sentence, 30))
	require.NoError(t, err)
	path := writeFile(t, "cn.txt", []byte(encoded))

	// When: extracting
	text, ok := newTestExtractor().Extract(context.Background(), path)

	// Then: the text comes back as UTF-8
	require.True(t, ok)
	assert.True(t, utf8.ValidString(text))
	assert.Contains(t, text, "年度预算")
}

func TestExtract_TextTypeNotAllowed(t *testing.T) {
	path := writeFile(t, "script.sh", []byte("echo hello"))

	_, ok := newTestExtractor().Extract(context.Background(), path)

	assert.False(t, ok)
}

func TestExtract_DOCX(t *testing.T) {
	path := writeZip(t, "memo.docx", map[string]string{
		"[Content_Types].xml": `<?xml version="1.0"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/></Types>`,
		"word/document.xml": `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>
<w:p><w:r><w:t>Hello</w:t></w:r><w:r><w:tab/><w:t>World</w:t></w:r></w:p>
<w:p><w:r><w:t>Second line</w:t></w:r></w:p>
</w:body></w:document>`,
	})

	text, ok := newTestExtractor().Extract(context.Background(), path)

	require.True(t, ok)
	assert.Equal(t, "Hello\tWorld\nSecond line", text)
}

func TestExtract_PPTX_SlideOrder(t *testing.T) {
	slide := func(s string) string {
		return `<p:sld xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main" xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"><a:p><a:r><a:t>` + s + `</a:t></a:r></a:p></p:sld>`
	}
	path := writeZip(t, "deck.pptx", map[string]string{
		"[Content_Types].xml":    `<?xml version="1.0"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Override PartName="/ppt/presentation.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.presentation.main+xml"/></Types>`,
		"ppt/presentation.xml":   `<p:presentation xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"/>`,
		"ppt/slides/slide10.xml": slide("ten"),
		"ppt/slides/slide2.xml":  slide("two"),
		"ppt/slides/slide1.xml":  slide("one"),
	})

	text, ok := newTestExtractor().Extract(context.Background(), path)

	require.True(t, ok)
	assert.Equal(t, "one\ntwo\nten", text)
}

func TestExtract_LegacyOfficeYieldsNone(t *testing.T) {
	ole := append([]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, make([]byte, 600)...)
	path := writeFile(t, "old.doc", ole)

	_, ok := newTestExtractor().Extract(context.Background(), path)

	assert.False(t, ok)
}

func TestExtract_CorruptPDFYieldsNone(t *testing.T) {
	path := writeFile(t, "broken.pdf", []byte("%PDF-1.4\nthis is not really a pdf"))

	_, ok := newTestExtractor().Extract(context.Background(), path)

	assert.False(t, ok)
}

func TestExtract_MissingAndEmpty(t *testing.T) {
	ext := newTestExtractor()
	ctx := context.Background()

	_, ok := ext.Extract(ctx, filepath.Join(t.TempDir(), "missing.txt"))
	assert.False(t, ok)

	_, ok = ext.Extract(ctx, writeFile(t, "empty.txt", nil))
	assert.False(t, ok)

	_, ok = ext.Extract(ctx, t.TempDir())
	assert.False(t, ok)
}

func TestExtract_TruncatesToMaxBytes(t *testing.T) {
	ext := NewFileExtractor(Config{TextTypes: []string{"txt"}, MaxBytes: 10})
	path := writeFile(t, "long.txt", []byte(strings.Repeat("abcdefghij", 10)))

	text, ok := ext.Extract(context.Background(), path)

	require.True(t, ok)
	assert.Len(t, text, 10)
}

func TestTruncate_RuneBoundary(t *testing.T) {
	assert.Equal(t, "a", truncate("a中", 2))
	assert.Equal(t, "a中", truncate("a中", 4))
}

type countingExtractor struct {
	calls int
}

func (c *countingExtractor) Extract(_ context.Context, _ string) (string, bool) {
	c.calls++
	return "text", true
}

func TestCachedExtractor_HitsUntilFileChanges(t *testing.T) {
	// Given: a cached extractor over a counting inner extractor
	inner := &countingExtractor{}
	cached := NewCachedExtractor(inner, 8)
	path := writeFile(t, "a.txt", []byte("one"))
	ctx := context.Background()

	// When: extracting the same unchanged file twice
	_, _ = cached.Extract(ctx, path)
	_, _ = cached.Extract(ctx, path)

	// Then: the inner extractor runs once
	assert.Equal(t, 1, inner.calls)

	// When: the file changes
	require.NoError(t, os.WriteFile(path, []byte("one two"), 0o644))
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))
	_, _ = cached.Extract(ctx, path)

	// Then: the inner extractor runs again
	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, 2, cached.Len())
}
