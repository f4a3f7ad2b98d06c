// Package store holds the file metadata store: the authoritative record of
// every file and folder, independent of the search index.
package store

import (
	"context"
	"time"
)

// File is one file or folder record.
type File struct {
	ID         string    `json:"id"`         // Stable file identifier (UUID)
	OwnerID    string    `json:"ownerId"`    // Owning user
	Path       string    `json:"path"`       // Parent path, slash separated, "/" for the owner root
	Name       string    `json:"name"`       // Display name
	TagName    string    `json:"tagName"`    // Free-form user tag, may be empty
	IsFolder   bool      `json:"isFolder"`   // Folder entries carry no content
	IsFavorite bool      `json:"isFavorite"` // User-starred
	Size       int64     `json:"size"`       // Bytes, zero for folders
	ModTime    time.Time `json:"updateDate"` // Last modification time
	MimeType   string    `json:"mimeType"`   // Sniffed content type, may be empty
	OSSFolder  string    `json:"ossFolder"`  // Non-empty when the record is backed by an external object store
	DeleteFlag bool      `json:"deleteFlag"` // Soft-delete marker pending index-removal confirmation
}

// StoreConfig tunes the SQLite connection.
type StoreConfig struct {
	// CacheSizeMB is the SQLite page cache in megabytes (default: 64).
	CacheSizeMB int
}

// DefaultStoreConfig returns the default store configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{CacheSizeMB: 64}
}

// MetadataStore persists file records.
type MetadataStore interface {
	// SaveFiles inserts or replaces records by ID.
	SaveFiles(ctx context.Context, files []*File) error
	// GetFile returns the record with id, or nil when absent.
	GetFile(ctx context.Context, id string) (*File, error)
	// GetFileByPath returns the record at owner/path/name, or nil when absent.
	GetFileByPath(ctx context.Context, ownerID, path, name string) (*File, error)
	// GetFilesOrdered returns the records for ids in the order given.
	// Unknown ids are skipped.
	GetFilesOrdered(ctx context.Context, ids []string) ([]*File, error)
	// ListFiles pages through records, optionally for one owner.
	// An empty next cursor means there are no more pages.
	ListFiles(ctx context.Context, ownerID, cursor string, limit int) ([]*File, string, error)
	// DeleteFiles removes records by ID.
	DeleteFiles(ctx context.Context, ids []string) error

	// ClearDeleteFlag resets the soft-delete flag on every listed record that carries it.
	ClearDeleteFlag(ctx context.Context, ids []string) (int64, error)
	// SetDeleteFlagByOwner sets the soft-delete flag on all of an owner's records.
	SetDeleteFlagByOwner(ctx context.Context, ownerID string) (int64, error)
	// ListSoftDeletedIDs returns the ids of records carrying the soft-delete flag.
	ListSoftDeletedIDs(ctx context.Context) ([]string, error)
	// CountExternallyBacked counts records carrying the external-backing marker.
	CountExternallyBacked(ctx context.Context) (int64, error)

	// Lifecycle
	Close() error
}
