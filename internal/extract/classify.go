package extract

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Category is the coarse content category stored in the index.
type Category string

const (
	CategoryImage    Category = "image"
	CategoryVideo    Category = "video"
	CategoryAudio    Category = "audio"
	CategoryDocument Category = "document"
	CategoryOther    Category = "other"
)

// ParseCategory returns the Category named by s, or false.
func ParseCategory(s string) (Category, bool) {
	switch c := Category(strings.ToLower(strings.TrimSpace(s))); c {
	case CategoryImage, CategoryVideo, CategoryAudio, CategoryDocument, CategoryOther:
		return c, true
	}
	return "", false
}

// Classifier resolves a file's category: sniffed media types first, then
// the document extension allow-list, else other.
type Classifier struct {
	documentTypes map[string]struct{}
}

// NewClassifier builds a Classifier from a document extension allow-list.
// Extensions are matched case-insensitively, with or without a leading dot.
func NewClassifier(documentTypes []string) *Classifier {
	m := make(map[string]struct{}, len(documentTypes))
	for _, ext := range documentTypes {
		m[normalizeExt(ext)] = struct{}{}
	}
	return &Classifier{documentTypes: m}
}

// Classify returns the category and detected MIME type of the file at path.
func (c *Classifier) Classify(path string) (Category, string) {
	mimeType := DetectMIME(path)
	return c.categorize(mimeType, filepath.Ext(path)), mimeType
}

func (c *Classifier) categorize(mimeType, ext string) Category {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return CategoryImage
	case strings.HasPrefix(mimeType, "video/"):
		return CategoryVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return CategoryAudio
	}
	if _, ok := c.documentTypes[normalizeExt(ext)]; ok && ext != "" {
		return CategoryDocument
	}
	return CategoryOther
}

// DetectMIME sniffs the file content. When sniffing only yields a generic
// type, the extension's registered type is used instead.
func DetectMIME(path string) string {
	detected := ""
	if m, err := mimetype.DetectFile(path); err == nil {
		detected = m.String()
	}
	base, _, _ := strings.Cut(detected, ";")
	if base != "" && base != "application/octet-stream" && base != "text/plain" {
		return base
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); byExt != "" {
		t, _, _ := strings.Cut(byExt, ";")
		return t
	}
	if base == "" {
		return "application/octet-stream"
	}
	return base
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
