package engine

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/Aman-CERP/amandrive/internal/async"
	driveerrors "github.com/Aman-CERP/amandrive/internal/errors"
	"github.com/Aman-CERP/amandrive/internal/extract"
	"github.com/Aman-CERP/amandrive/internal/store"
)

// Register returns the metadata record for rel, a slash-separated path
// below the storage root, creating it from the live file when it does not
// exist yet. Size and modification time of an existing file record are
// refreshed from disk. created reports whether a record was added.
func (e *Engine) Register(ctx context.Context, rel string) (f *store.File, created bool, err error) {
	owner, parent, name, ok := ParseRelative(rel)
	if !ok {
		return nil, false, driveerrors.New(driveerrors.ErrCodeInvalidPath, "path is not below an owner directory", nil).
			WithDetail("path", rel)
	}

	f, err = e.metadata.GetFileByPath(ctx, owner, parent, name)
	if err != nil {
		return nil, false, driveerrors.StoreError("failed to look up file", err).WithDetail("path", rel)
	}
	abs := filepath.Join(e.root, filepath.FromSlash(rel))
	info, err := os.Stat(abs)
	if err != nil {
		if f != nil {
			return f, false, nil
		}
		return nil, false, err
	}

	if f != nil {
		if f.IsFolder || (f.Size == info.Size() && f.ModTime.UnixMilli() == info.ModTime().UnixMilli()) {
			return f, false, nil
		}
		f.Size = info.Size()
		f.ModTime = info.ModTime()
		f.MimeType = extract.DetectMIME(abs)
		if err := e.metadata.SaveFiles(ctx, []*store.File{f}); err != nil {
			return nil, false, driveerrors.StoreError("failed to update file", err).WithDetail("path", rel)
		}
		return f, false, nil
	}

	f = &store.File{
		ID:       uuid.NewString(),
		OwnerID:  owner,
		Path:     parent,
		Name:     name,
		IsFolder: info.IsDir(),
		ModTime:  info.ModTime(),
	}
	if !info.IsDir() {
		f.Size = info.Size()
		f.MimeType = extract.DetectMIME(abs)
	}
	if err := e.metadata.SaveFiles(ctx, []*store.File{f}); err != nil {
		return nil, false, driveerrors.StoreError("failed to register file", err).WithDetail("path", rel)
	}
	slog.Debug("file_registered", slog.String("file_id", f.ID), slog.String("path", rel))
	return f, true, nil
}

// StartReindex walks the storage root in the background, registering
// unknown files and queueing every file for indexing. The run outlives
// ctx and ends with Close.
func (e *Engine) StartReindex(ctx context.Context) error {
	return e.reindexer.Start(context.WithoutCancel(ctx))
}

// Reindex runs a full reindex and waits for it, including the final
// commit.
func (e *Engine) Reindex(ctx context.Context) (async.ProgressSnapshot, error) {
	if err := e.reindexer.Start(ctx); err != nil {
		return e.reindexer.Progress().Snapshot(), err
	}
	err := e.reindexer.Wait()
	return e.reindexer.Progress().Snapshot(), err
}

// ReindexProgress returns the progress of the current or last reindex.
func (e *Engine) ReindexProgress() async.ProgressSnapshot {
	return e.reindexer.Progress().Snapshot()
}

// reindex is the background reindex job.
func (e *Engine) reindex(ctx context.Context, p *async.Progress) error {
	p.SetStage(async.StageScanning, 0)
	paths, err := e.scanRoot(ctx)
	if err != nil {
		return err
	}

	p.SetStage(async.StageEnqueueing, len(paths))
	for _, rel := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, created, err := e.Register(ctx, rel)
		if err != nil {
			p.FileSkipped()
			slog.Warn("reindex_file_skipped",
				append([]any{slog.String("path", rel)}, driveerrors.LogAttrs(err)...)...)
			continue
		}
		ok, err := e.enqueue(ctx, f)
		if err != nil {
			return err
		}
		if !ok {
			p.FileSkipped()
			continue
		}
		p.FileEnqueued(created)
	}

	p.SetStage(async.StageCommitting, 0)
	if _, err := e.scheduler.Flush(ctx); err != nil {
		return fmt.Errorf("final commit: %w", err)
	}
	return nil
}

// scanRoot lists every visible entry below the owner directories, as
// slash-separated paths relative to the root.
func (e *Engine) scanRoot(ctx context.Context) ([]string, error) {
	if _, err := os.Stat(e.root); err != nil {
		return nil, driveerrors.New(driveerrors.ErrCodeFileNotFound, "storage root is not accessible", err).
			WithDetail("root", e.root)
	}

	var paths []string
	err := filepath.WalkDir(e.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Warn("reindex_walk_error", slog.String("path", path), slog.String("error", err.Error()))
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(e.root, path)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if e.ignored(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if _, _, _, ok := ParseRelative(rel); ok {
			paths = append(paths, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}
