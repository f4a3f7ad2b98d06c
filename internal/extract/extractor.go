package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	driveerrors "github.com/Aman-CERP/amandrive/internal/errors"
)

// DefaultMaxBytes caps the extracted text kept per file.
const DefaultMaxBytes = 32 * 1024 * 1024

// Extractor yields the searchable text of a file. ok is false when the
// file has no extractable text or extraction failed.
type Extractor interface {
	Extract(ctx context.Context, path string) (text string, ok bool)
}

// Config configures a FileExtractor.
type Config struct {
	// TextTypes are extensions read as plain text.
	TextTypes []string
	// MaxBytes caps the extracted text (default: DefaultMaxBytes).
	MaxBytes int64
}

// FileExtractor dispatches on the sniffed file type: PDF, OOXML word and
// presentation documents, and plain text with charset detection. Legacy
// binary Office formats yield no text.
type FileExtractor struct {
	textTypes map[string]struct{}
	maxBytes  int64
}

// Verify interface implementation at compile time
var _ Extractor = (*FileExtractor)(nil)

// NewFileExtractor creates a FileExtractor.
func NewFileExtractor(cfg Config) *FileExtractor {
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	textTypes := make(map[string]struct{}, len(cfg.TextTypes))
	for _, ext := range cfg.TextTypes {
		textTypes[normalizeExt(ext)] = struct{}{}
	}
	return &FileExtractor{textTypes: textTypes, maxBytes: maxBytes}
}

const (
	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimePPTX = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
)

// Extract implements Extractor.
func (e *FileExtractor) Extract(ctx context.Context, path string) (string, bool) {
	if ctx.Err() != nil {
		return "", false
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() || info.Size() == 0 {
		return "", false
	}

	mimeType := DetectMIME(path)
	var text string
	switch {
	case mimeType == mimePDF:
		text, err = e.extractPDF(path)
	case mimeType == mimeDOCX:
		text, err = e.extractDOCX(path)
	case mimeType == mimePPTX:
		text, err = e.extractPPTX(path)
	case e.isText(path, mimeType):
		text, err = e.extractText(path)
	default:
		return "", false
	}
	if err != nil {
		derr := driveerrors.New(driveerrors.ErrCodeExtractFailed,
			fmt.Sprintf("failed to extract %s", filepath.Base(path)), err)
		slog.Debug("content_extract_failed",
			append([]any{slog.String("path", path), slog.String("mime", mimeType)}, driveerrors.LogAttrs(derr)...)...)
		return "", false
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	return text, true
}

// isText reports whether a file is read as plain text: its extension is in
// the text allow-list and the sniffer did not see binary content.
func (e *FileExtractor) isText(path, mimeType string) bool {
	if _, ok := e.textTypes[normalizeExt(filepath.Ext(path))]; !ok {
		return false
	}
	return strings.HasPrefix(mimeType, "text/") ||
		strings.HasSuffix(mimeType, "json") ||
		strings.HasSuffix(mimeType, "xml") ||
		strings.HasSuffix(mimeType, "yaml")
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int64) string {
	if int64(len(s)) <= n {
		return s
	}
	cut := int(n)
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
