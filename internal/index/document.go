// Package index owns the inverted index: the entry schema, the buffered
// writer, the ingestion queue with its batch scheduler, and reconciliation
// against the metadata store.
package index

import (
	"strings"
	"time"

	driveerrors "github.com/Aman-CERP/amandrive/internal/errors"
	"github.com/Aman-CERP/amandrive/internal/extract"
)

// Record is one file change waiting to be indexed. Optional members are nil
// when unknown.
type Record struct {
	FileID     string
	OwnerID    string
	Name       string
	Path       string
	TagName    string
	IsFolder   *bool
	IsFavorite *bool
	Modified   *time.Time
	Size       *int64
	Category   extract.Category

	// Location is the absolute path of the live file.
	Location string
}

// Entry is the shape of one index document. Every optional member maps to
// exactly one optional field; nil members are not indexed.
type Entry struct {
	ID         string
	Owner      string
	Category   *string
	Path       *string
	Name       *string
	Tag        *string
	Content    *string
	IsFolder   *bool
	IsFavorite *bool
	Modified   *int64 // unix millis
	Size       *int64
}

// BuildEntry maps a record and its extracted text (may be empty) to an Entry.
func BuildEntry(r Record, content string) (*Entry, error) {
	if strings.TrimSpace(r.FileID) == "" {
		return nil, driveerrors.ValidationError("record has no file id", nil)
	}
	if strings.TrimSpace(r.OwnerID) == "" {
		return nil, driveerrors.ValidationError("record "+r.FileID+" has no owner", nil)
	}

	e := &Entry{
		ID:         r.FileID,
		Owner:      r.OwnerID,
		IsFolder:   r.IsFolder,
		IsFavorite: r.IsFavorite,
		Size:       r.Size,
	}
	if r.Category != "" {
		e.Category = ptr(string(r.Category))
	}
	if r.Path != "" {
		e.Path = ptr(r.Path)
	}
	if name := strings.TrimSpace(r.Name); name != "" {
		e.Name = ptr(strings.ToLower(name))
	}
	if tag := strings.TrimSpace(r.TagName); tag != "" {
		e.Tag = ptr(strings.ToLower(tag))
	}
	if strings.TrimSpace(content) != "" {
		e.Content = ptr(content)
	}
	if r.Modified != nil {
		e.Modified = ptr(r.Modified.UnixMilli())
	}
	return e, nil
}

// Fields returns the document handed to bleve. The exact and tokenized
// variants of name and tag carry the same value.
func (e *Entry) Fields() map[string]interface{} {
	f := map[string]interface{}{
		FieldID:    e.ID,
		FieldOwner: e.Owner,
	}
	if e.Category != nil {
		f[FieldCategory] = *e.Category
	}
	if e.Path != nil {
		f[FieldPath] = *e.Path
	}
	if e.Name != nil {
		f[FieldName] = *e.Name
		f[FieldNameText] = *e.Name
	}
	if e.Tag != nil {
		f[FieldTag] = *e.Tag
		f[FieldTagText] = *e.Tag
	}
	if e.Content != nil {
		f[FieldContent] = *e.Content
	}
	if e.IsFolder != nil {
		f[FieldIsFolder] = *e.IsFolder
	}
	if e.IsFavorite != nil {
		f[FieldIsFavorite] = *e.IsFavorite
	}
	if e.Modified != nil {
		f[FieldModified] = float64(*e.Modified)
	}
	if e.Size != nil {
		f[FieldSize] = float64(*e.Size)
	}
	return f
}

func ptr[T any](v T) *T {
	return &v
}
