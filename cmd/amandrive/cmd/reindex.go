package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amandrive/internal/async"
	"github.com/Aman-CERP/amandrive/internal/output"
)

// pollInterval is how often reindex progress is redrawn.
const pollInterval = 250 * time.Millisecond

func newReindexCmd(ro *rootOptions) *cobra.Command {
	var local, detach bool

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the index from the storage root",
		Long: `Walk the storage root, register files the metadata store does not know
yet and queue every file for indexing.

With a running server the reindex runs there; otherwise it runs in this
process. An interrupted reindex is resumed by the next 'amandrive serve'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ro.prepare()
			if err != nil {
				return err
			}
			out := output.New(cmd.OutOrStdout())
			ctx := cmd.Context()

			if c := remote(cfg, local); c != nil {
				err := c.StartReindex(ctx)
				switch {
				case errors.Is(err, async.ErrRunning):
					out.Status("⏳", "A reindex is already running on the server")
				case err != nil:
					return err
				default:
					out.Status("🚀", "Reindex started on the server")
				}
				if detach {
					return nil
				}
				snap, err := follow(ctx, out, c.ReindexProgress)
				if err != nil {
					return err
				}
				return report(out, snap)
			}

			e, err := openEngine(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()
			if err := e.Start(ctx); err != nil {
				return err
			}
			if err := e.StartReindex(ctx); err != nil && !errors.Is(err, async.ErrRunning) {
				return err
			}
			snap, err := follow(ctx, out, func(context.Context) (async.ProgressSnapshot, error) {
				return e.ReindexProgress(), nil
			})
			if err != nil {
				if errors.Is(err, context.Canceled) {
					out.Warning("Reindex interrupted; the next 'amandrive serve' resumes it")
					return nil
				}
				return err
			}
			return report(out, snap)
		},
	}

	cmd.Flags().BoolVar(&local, "local", false, "Run in this process even if a server is running")
	cmd.Flags().BoolVar(&detach, "detach", false, "Start the reindex on the server and return")
	return cmd
}

// follow redraws progress until the reindex leaves the running state.
func follow(ctx context.Context, out *output.Writer, progress func(context.Context) (async.ProgressSnapshot, error)) (async.ProgressSnapshot, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var last async.ProgressSnapshot
	drawn := -1
	for {
		snap, err := progress(ctx)
		if err != nil {
			return last, err
		}
		last = snap
		if snap.Status != string(async.StatusRunning) {
			if drawn >= 0 {
				out.ProgressDone()
			}
			return snap, nil
		}
		if done := snap.FilesEnqueued + snap.FilesSkipped; snap.FilesTotal > 0 && done != drawn {
			out.Progress(done, snap.FilesTotal, snap.Stage)
			drawn = done
		}
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}
	}
}

func report(out *output.Writer, snap async.ProgressSnapshot) error {
	switch async.Status(snap.Status) {
	case async.StatusReady:
		out.Successf("Reindexed %d entries (%d new, %d skipped) in %ds",
			snap.FilesEnqueued, snap.FilesCreated, snap.FilesSkipped, snap.ElapsedSeconds)
		return nil
	case async.StatusCanceled:
		out.Warning("Reindex interrupted; the next 'amandrive serve' resumes it")
		return nil
	default:
		return fmt.Errorf("reindex %s: %s", snap.Status, snap.ErrorMessage)
	}
}
