package index

import (
	"context"
	"log/slog"
	"time"

	driveerrors "github.com/Aman-CERP/amandrive/internal/errors"
	"github.com/Aman-CERP/amandrive/internal/store"
)

// Reconciler keeps the index and the metadata store in step for deletions
// and reports on their divergence.
type Reconciler struct {
	writer   *Writer
	metadata store.MetadataStore
}

// NewReconciler creates a Reconciler.
func NewReconciler(writer *Writer, metadata store.MetadataStore) *Reconciler {
	return &Reconciler{writer: writer, metadata: metadata}
}

// DeleteByIDs removes each listed entry and commits once.
func (r *Reconciler) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	for _, id := range ids {
		if err := r.writer.DeleteByID(id); err != nil {
			return err
		}
	}
	if err := r.writer.Commit(ctx); err != nil {
		return err
	}
	slog.Info("index_entries_deleted", slog.Int("count", len(ids)))
	return nil
}

// DeleteAllByOwner removes every entry of ownerID, commits, then marks all
// of the owner's metadata records with the soft-delete flag.
func (r *Reconciler) DeleteAllByOwner(ctx context.Context, ownerID string) error {
	if err := r.writer.DeleteByOwner(ownerID); err != nil {
		return err
	}
	if err := r.writer.Commit(ctx); err != nil {
		return err
	}
	flagged, err := r.metadata.SetDeleteFlagByOwner(ctx, ownerID)
	if err != nil {
		return driveerrors.StoreError("failed to flag owner records", err).WithDetail("owner", ownerID)
	}
	slog.Info("index_owner_purged", slog.String("owner", ownerID), slog.Int64("flagged", flagged))
	return nil
}

// CheckConsistency reports whether the index holds strictly more live
// entries than the store holds externally-backed records.
func (r *Reconciler) CheckConsistency(ctx context.Context) (bool, error) {
	indexed, err := r.writer.DocumentCount()
	if err != nil {
		return false, err
	}
	backed, err := r.metadata.CountExternallyBacked(ctx)
	if err != nil {
		return false, driveerrors.StoreError("failed to count externally backed records", err)
	}
	ok := int64(indexed) > backed
	slog.Debug("index_consistency_checked",
		slog.Uint64("indexed", indexed),
		slog.Int64("externally_backed", backed),
		slog.Bool("consistent", ok))
	return ok, nil
}

// SweepSoftDeleted clears the soft-delete flag of every flagged record whose
// index entry is confirmed gone. Flagged records that are indexed again keep
// their flag until the batch that indexed them clears it.
func (r *Reconciler) SweepSoftDeleted(ctx context.Context) (int64, error) {
	flagged, err := r.metadata.ListSoftDeletedIDs(ctx)
	if err != nil {
		return 0, driveerrors.StoreError("failed to list flagged records", err)
	}
	if len(flagged) == 0 {
		return 0, nil
	}

	indexed, err := r.writer.ExistingIDs(ctx, flagged)
	if err != nil {
		return 0, err
	}
	present := make(map[string]struct{}, len(indexed))
	for _, id := range indexed {
		present[id] = struct{}{}
	}
	var gone []string
	for _, id := range flagged {
		if _, ok := present[id]; !ok {
			gone = append(gone, id)
		}
	}

	cleared, err := r.metadata.ClearDeleteFlag(ctx, gone)
	if err != nil {
		return 0, driveerrors.StoreError("failed to clear delete flags", err)
	}
	if cleared > 0 {
		slog.Info("index_soft_delete_swept", slog.Int64("cleared", cleared), slog.Int("flagged", len(flagged)))
	}
	return cleared, nil
}

// AuditResult lists per-id divergence between the index and the store.
type AuditResult struct {
	// Indexed is the number of committed index entries.
	Indexed int
	// Stored is the number of store records not carrying the soft-delete flag.
	Stored int
	// Orphans are indexed ids with no store record.
	Orphans []string
	// Missing are live store records with no index entry.
	Missing []string
	// Duration is how long the audit took.
	Duration time.Duration
}

// Consistent reports whether no divergence was found.
func (a *AuditResult) Consistent() bool {
	return len(a.Orphans) == 0 && len(a.Missing) == 0
}

// Audit compares every index entry with every store record. It is O(n) in
// the total number of entries and records.
func (r *Reconciler) Audit(ctx context.Context) (*AuditResult, error) {
	start := time.Now()

	indexIDs, err := r.writer.AllIDs(ctx)
	if err != nil {
		return nil, err
	}
	indexed := make(map[string]bool, len(indexIDs))
	for _, id := range indexIDs {
		indexed[id] = true
	}

	result := &AuditResult{Indexed: len(indexIDs)}
	stored := make(map[string]bool, len(indexIDs))
	cursor := ""
	for {
		files, next, err := r.metadata.ListFiles(ctx, "", cursor, 1000)
		if err != nil {
			return nil, driveerrors.StoreError("failed to list records", err)
		}
		for _, f := range files {
			stored[f.ID] = true
			if f.DeleteFlag {
				continue
			}
			result.Stored++
			if !indexed[f.ID] {
				result.Missing = append(result.Missing, f.ID)
			}
		}
		if next == "" {
			break
		}
		cursor = next
	}

	for _, id := range indexIDs {
		if !stored[id] {
			result.Orphans = append(result.Orphans, id)
		}
	}
	result.Duration = time.Since(start)

	slog.Info("index_audit_completed",
		slog.Int("indexed", result.Indexed),
		slog.Int("stored", result.Stored),
		slog.Int("orphans", len(result.Orphans)),
		slog.Int("missing", len(result.Missing)),
		slog.Duration("duration", result.Duration))
	return result, nil
}
