package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// maxInParams bounds the number of placeholders in one IN (...) clause.
const maxInParams = 500

const fileColumns = `id, owner_id, path, name, tag_name, is_folder, is_favorite,
	size, modified, mime_type, oss_folder, delete_flag`

// SQLiteStore implements MetadataStore on SQLite.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// Verify interface implementation at compile time
var _ MetadataStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the store at path with default settings.
// An empty path opens an in-memory store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithConfig(path, DefaultStoreConfig())
}

// NewSQLiteStoreWithConfig opens (or creates) the store at path.
func NewSQLiteStoreWithConfig(path string, cfg StoreConfig) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection: one writer, and an in-memory database lives per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	cacheMB := cfg.CacheSizeMB
	if cacheMB <= 0 {
		cacheMB = DefaultStoreConfig().CacheSizeMB
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA cache_size = -%d", cacheMB*1024),
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	slog.Debug("metadata_store_opened", slog.String("path", path), slog.Int("cache_mb", cacheMB))
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS files (
		id          TEXT PRIMARY KEY,
		owner_id    TEXT NOT NULL,
		path        TEXT NOT NULL,
		name        TEXT NOT NULL,
		tag_name    TEXT NOT NULL DEFAULT '',
		is_folder   INTEGER NOT NULL DEFAULT 0,
		is_favorite INTEGER NOT NULL DEFAULT 0,
		size        INTEGER NOT NULL DEFAULT 0,
		modified    INTEGER NOT NULL DEFAULT 0,
		mime_type   TEXT NOT NULL DEFAULT '',
		oss_folder  TEXT NOT NULL DEFAULT '',
		delete_flag INTEGER NOT NULL DEFAULT 0
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_files_location ON files(owner_id, path, name);
	CREATE INDEX IF NOT EXISTS idx_files_flagged ON files(delete_flag) WHERE delete_flag = 1;

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) checkOpen() error {
	if s.closed {
		return fmt.Errorf("metadata store is closed")
	}
	return nil
}

// SaveFiles inserts or replaces records by ID.
func (s *SQLiteStore) SaveFiles(ctx context.Context, files []*File) error {
	if len(files) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO files (`+fileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id,
			path = excluded.path,
			name = excluded.name,
			tag_name = excluded.tag_name,
			is_folder = excluded.is_folder,
			is_favorite = excluded.is_favorite,
			size = excluded.size,
			modified = excluded.modified,
			mime_type = excluded.mime_type,
			oss_folder = excluded.oss_folder,
			delete_flag = excluded.delete_flag`)
	if err != nil {
		return fmt.Errorf("failed to prepare file statement: %w", err)
	}
	defer stmt.Close()

	for _, f := range files {
		if f.ID == "" {
			return fmt.Errorf("file %s/%s has no id", f.Path, f.Name)
		}
		if _, err := stmt.ExecContext(ctx,
			f.ID, f.OwnerID, f.Path, f.Name, f.TagName,
			f.IsFolder, f.IsFavorite, f.Size, toMillis(f.ModTime),
			f.MimeType, f.OSSFolder, f.DeleteFlag,
		); err != nil {
			return fmt.Errorf("failed to save file %s: %w", f.ID, err)
		}
	}
	return tx.Commit()
}

// GetFile returns the record with id, or nil when absent.
func (s *SQLiteStore) GetFile(ctx context.Context, id string) (*File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE id = ?`, id)
	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return f, err
}

// GetFileByPath returns the record at owner/path/name, or nil when absent.
func (s *SQLiteStore) GetFileByPath(ctx context.Context, ownerID, path, name string) (*File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE owner_id = ? AND path = ? AND name = ?`,
		ownerID, path, name)
	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return f, err
}

// GetFilesOrdered returns the records for ids in the order given.
func (s *SQLiteStore) GetFilesOrdered(ctx context.Context, ids []string) ([]*File, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	byID := make(map[string]*File, len(ids))
	for _, chunk := range chunkIDs(ids) {
		rows, err := s.db.QueryContext(ctx,
			`SELECT `+fileColumns+` FROM files WHERE id IN (`+placeholders(len(chunk))+`)`,
			toArgs(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("failed to query files: %w", err)
		}
		for rows.Next() {
			f, err := scanFile(rows)
			if err != nil {
				_ = rows.Close()
				return nil, err
			}
			byID[f.ID] = f
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read files: %w", err)
		}
	}

	out := make([]*File, 0, len(byID))
	for _, id := range ids {
		if f, ok := byID[id]; ok {
			out = append(out, f)
		}
	}
	return out, nil
}

// ListFiles pages through records ordered by id. An empty ownerID lists all owners.
func (s *SQLiteStore) ListFiles(ctx context.Context, ownerID, cursor string, limit int) ([]*File, string, error) {
	if limit <= 0 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, "", err
	}

	query := `SELECT ` + fileColumns + ` FROM files WHERE id > ?`
	args := []any{cursor}
	if ownerID != "" {
		query += ` AND owner_id = ?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY id LIMIT ?`
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	var files []*File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, "", err
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("failed to read files: %w", err)
	}

	next := ""
	if len(files) > limit {
		files = files[:limit]
		next = files[limit-1].ID
	}
	return files, next, nil
}

// DeleteFiles removes records by ID.
func (s *SQLiteStore) DeleteFiles(ctx context.Context, ids []string) error {
	_, err := s.execChunked(ctx, `DELETE FROM files WHERE id IN (%s)`, ids)
	return err
}

// ClearDeleteFlag resets the soft-delete flag on every listed record that carries it.
func (s *SQLiteStore) ClearDeleteFlag(ctx context.Context, ids []string) (int64, error) {
	return s.execChunked(ctx, `UPDATE files SET delete_flag = 0 WHERE delete_flag = 1 AND id IN (%s)`, ids)
}

// SetDeleteFlagByOwner sets the soft-delete flag on all of an owner's records.
func (s *SQLiteStore) SetDeleteFlagByOwner(ctx context.Context, ownerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, `UPDATE files SET delete_flag = 1 WHERE owner_id = ?`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to flag files of %s: %w", ownerID, err)
	}
	return res.RowsAffected()
}

// ListSoftDeletedIDs returns the ids of records carrying the soft-delete flag.
func (s *SQLiteStore) ListSoftDeletedIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM files WHERE delete_flag = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list flagged files: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountExternallyBacked counts records carrying the external-backing marker.
func (s *SQLiteStore) CountExternallyBacked(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files WHERE oss_folder != ''`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count externally backed files: %w", err)
	}
	return n, nil
}

// Close closes the store. Forces a WAL checkpoint before closing.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// execChunked runs a write statement whose %s is an IN placeholder list,
// once per chunk of ids inside one transaction.
func (s *SQLiteStore) execChunked(ctx context.Context, query string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var total int64
	for _, chunk := range chunkIDs(ids) {
		res, err := tx.ExecContext(ctx, fmt.Sprintf(query, placeholders(len(chunk))), toArgs(chunk)...)
		if err != nil {
			return 0, fmt.Errorf("failed to update files: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return total, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*File, error) {
	var (
		f        File
		modified int64
	)
	err := row.Scan(&f.ID, &f.OwnerID, &f.Path, &f.Name, &f.TagName,
		&f.IsFolder, &f.IsFavorite, &f.Size, &modified,
		&f.MimeType, &f.OSSFolder, &f.DeleteFlag)
	if err != nil {
		return nil, err
	}
	if modified != 0 {
		f.ModTime = time.UnixMilli(modified)
	}
	return &f, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func chunkIDs(ids []string) [][]string {
	var chunks [][]string
	for len(ids) > maxInParams {
		chunks = append(chunks, ids[:maxInParams])
		ids = ids[maxInParams:]
	}
	if len(ids) > 0 {
		chunks = append(chunks, ids)
	}
	return chunks
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
