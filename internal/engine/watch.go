package engine

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"

	driveerrors "github.com/Aman-CERP/amandrive/internal/errors"
	"github.com/Aman-CERP/amandrive/internal/watcher"
)

// ConsumeEvents applies watcher batches until events is closed or ctx is
// done.
func (e *Engine) ConsumeEvents(ctx context.Context, events <-chan []watcher.FileEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-events:
			if !ok {
				return
			}
			if err := e.HandleEvents(ctx, batch); err != nil && ctx.Err() == nil {
				slog.Warn("watch_batch_failed", driveerrors.LogAttrs(err)...)
			}
		}
	}
}

// HandleEvents applies one batch of storage changes. Created and modified
// entries are registered and queued; deleted entries are removed from the
// index with one commit and then from the metadata store.
func (e *Engine) HandleEvents(ctx context.Context, batch []watcher.FileEvent) error {
	var deleted []string
	for _, ev := range batch {
		if e.ignored(ev.Path, ev.IsDir) {
			continue
		}
		switch ev.Operation {
		case watcher.OpCreate, watcher.OpModify:
			f, _, err := e.Register(ctx, ev.Path)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) || driveerrors.GetCode(err) == driveerrors.ErrCodeInvalidPath {
					continue
				}
				return err
			}
			if _, err := e.enqueue(ctx, f); err != nil {
				return err
			}
		case watcher.OpDelete:
			owner, parent, name, ok := ParseRelative(ev.Path)
			if !ok {
				continue
			}
			f, err := e.metadata.GetFileByPath(ctx, owner, parent, name)
			if err != nil {
				return driveerrors.StoreError("failed to look up deleted file", err).WithDetail("path", ev.Path)
			}
			if f != nil {
				deleted = append(deleted, f.ID)
			}
		}
	}

	if len(deleted) == 0 {
		return nil
	}
	if err := e.reconciler.DeleteByIDs(ctx, deleted); err != nil {
		return err
	}
	if err := e.metadata.DeleteFiles(ctx, deleted); err != nil {
		return driveerrors.StoreError("failed to delete file records", err)
	}
	return nil
}
