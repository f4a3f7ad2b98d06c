package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amandrive/internal/api"
	"github.com/Aman-CERP/amandrive/internal/async"
	"github.com/Aman-CERP/amandrive/internal/config"
	"github.com/Aman-CERP/amandrive/internal/daemon"
	"github.com/Aman-CERP/amandrive/internal/engine"
	driveerrors "github.com/Aman-CERP/amandrive/internal/errors"
	"github.com/Aman-CERP/amandrive/internal/logging"
	"github.com/Aman-CERP/amandrive/internal/preflight"
	"github.com/Aman-CERP/amandrive/internal/watcher"
	"github.com/Aman-CERP/amandrive/pkg/version"
)

type serveOptions struct {
	addr      string
	noWatch   bool
	skipCheck bool
	reindex   bool
}

func newServeCmd(ro *rootOptions) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the indexing engine and the HTTP API",
		Long: `Run the indexing engine, watch the storage root for changes and serve
the HTTP API until interrupted.

A reindex left unfinished by a previous run is resumed on start.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ro.loadConfig()
			if err != nil {
				return err
			}
			if opts.addr != "" {
				cfg.Server.Addr = opts.addr
			}
			if opts.noWatch {
				cfg.Watch.Enabled = false
			}
			return runServe(cmd.Context(), cmd, ro, cfg, opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "Listen address (overrides server.addr)")
	cmd.Flags().BoolVar(&opts.noWatch, "no-watch", false, "Do not watch the storage root")
	cmd.Flags().BoolVar(&opts.skipCheck, "skip-check", false, "Skip the system checks")
	cmd.Flags().BoolVar(&opts.reindex, "reindex", false, "Start a full reindex after startup")
	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, ro *rootOptions, cfg *config.Config, opts serveOptions) error {
	logCfg := logging.DefaultConfig(cfg.Storage.DataDir)
	logCfg.Level = cfg.Server.LogLevel
	logCfg.Format = cfg.Server.LogFormat
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	ro.loggingCleanup = cleanup
	slog.SetDefault(logger)

	pid := daemon.ForDataDir(cfg.Storage.DataDir)
	if err := pid.Acquire(); err != nil {
		return driveerrors.New(driveerrors.ErrCodeIndexLocked, err.Error(), err).
			WithSuggestion("Run 'amandrive stop' first")
	}
	defer func() { _ = pid.Release() }()

	if !opts.skipCheck && preflight.NeedsCheck(cfg.Storage.DataDir, cfg.Storage.Root) {
		if err := runPreflight(ctx, cmd, cfg); err != nil {
			return err
		}
	}

	e, err := engine.New(cfg)
	if err != nil {
		return err
	}
	if err := e.Start(ctx); err != nil {
		_ = e.Close()
		return err
	}
	if opts.reindex {
		if err := e.StartReindex(ctx); err != nil && !errors.Is(err, async.ErrRunning) {
			_ = e.Close()
			return err
		}
	}

	slog.Info("server_starting",
		slog.String("version", version.Short()),
		slog.String("addr", cfg.Server.Addr),
		slog.String("root", cfg.Storage.Root),
		slog.String("data_dir", cfg.Storage.DataDir),
		slog.Bool("watch", cfg.Watch.Enabled))

	g, gctx := errgroup.WithContext(ctx)
	srv := api.NewServer(cfg.Server.Addr, api.NewRouter(e, logger), logger)
	g.Go(func() error { return srv.Run(gctx) })

	var w *watcher.HybridWatcher
	if cfg.Watch.Enabled {
		w, err = watcher.NewHybridWatcher(watcher.Options{
			DebounceWindow: cfg.DebounceDuration(),
			Ignore:         e.Ignore(),
		})
		if err != nil {
			_ = e.Close()
			return err
		}
		g.Go(func() error { return w.Start(gctx, cfg.Storage.Root) })
		g.Go(func() error {
			e.ConsumeEvents(gctx, w.Events())
			return nil
		})
		g.Go(func() error {
			logWatcherErrors(gctx, w.Errors())
			return nil
		})
	}

	runErr := g.Wait()
	if w != nil {
		_ = w.Stop()
	}
	closeErr := e.Close()
	slog.Info("server_stopped")
	return errors.Join(runErr, closeErr)
}

// runPreflight runs the system checks, refusing to start on a critical
// failure and remembering a pass.
func runPreflight(ctx context.Context, cmd *cobra.Command, cfg *config.Config) error {
	checker := preflight.New(preflight.WithOutput(cmd.ErrOrStderr()))
	results := checker.RunAll(ctx, cfg)
	if checker.HasCriticalFailures(results) {
		checker.PrintResults(results)
		if err := preflight.ClearMarker(cfg.Storage.DataDir); err != nil {
			slog.Debug("preflight_marker_failed", slog.String("error", err.Error()))
		}
		return driveerrors.New(driveerrors.ErrCodeConfigInvalid, "system check failed", nil).
			WithSuggestion("Run 'amandrive check --system' for details")
	}
	for _, r := range results {
		if r.Status != preflight.StatusPass {
			slog.Warn("preflight_warning", slog.String("check", r.Name), slog.String("message", r.Message))
		}
	}
	if err := preflight.MarkPassed(cfg.Storage.DataDir, cfg.Storage.Root); err != nil {
		slog.Debug("preflight_marker_failed", slog.String("error", err.Error()))
	}
	return nil
}

func logWatcherErrors(ctx context.Context, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if !ok {
				return
			}
			slog.Warn("watcher_error", slog.String("error", err.Error()))
		}
	}
}
