// Package cmd provides the CLI commands for amandrive.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amandrive/internal/api"
	"github.com/Aman-CERP/amandrive/internal/config"
	"github.com/Aman-CERP/amandrive/internal/daemon"
	"github.com/Aman-CERP/amandrive/internal/engine"
	driveerrors "github.com/Aman-CERP/amandrive/internal/errors"
	"github.com/Aman-CERP/amandrive/internal/logging"
	"github.com/Aman-CERP/amandrive/internal/profiling"
	"github.com/Aman-CERP/amandrive/pkg/version"
)

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	debug      bool
	profile    profiling.Options

	profiler       *profiling.Session
	loggingCleanup func()
}

// NewRootCmd creates the root command for the amandrive CLI.
func NewRootCmd() *cobra.Command {
	ro := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "amandrive",
		Short: "Full-text search and indexing for cloud drive storage",
		Long: `amandrive keeps a full-text index of a cloud drive's files in step with
its metadata store and serves ranked, paginated search per owner.

Files are expected under <root>/<owner>/<path>/<name>. Run 'amandrive serve'
to index and watch the storage root and expose the HTTP API.`,
		Version:           version.Short(),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: ro.before,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return ro.after()
		},
	}
	cmd.SetVersionTemplate("amandrive version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&ro.configPath, "config", "", "Config file (default ~/.amandrive/amandrive.yaml)")
	cmd.PersistentFlags().BoolVar(&ro.debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&ro.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&ro.profile.Heap, "profile-mem", "", "Write heap profile to file on exit")
	cmd.PersistentFlags().StringVar(&ro.profile.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.AddCommand(newServeCmd(ro))
	cmd.AddCommand(newSearchCmd(ro))
	cmd.AddCommand(newReindexCmd(ro))
	cmd.AddCommand(newCheckCmd(ro))
	cmd.AddCommand(newPurgeCmd(ro))
	cmd.AddCommand(newStatusCmd(ro))
	cmd.AddCommand(newStopCmd(ro))
	cmd.AddCommand(newConfigCmd(ro))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command, printing any error in CLI form.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := NewRootCmd().ExecuteContext(ctx)
	if err != nil {
		_, _ = fmt.Fprint(os.Stderr, driveerrors.FormatForCLI(err))
	}
	return err
}

func (ro *rootOptions) before(_ *cobra.Command, _ []string) error {
	if !ro.profile.Enabled() {
		return nil
	}
	s, err := profiling.Start(ro.profile)
	if err != nil {
		return err
	}
	ro.profiler = s
	return nil
}

func (ro *rootOptions) after() error {
	var err error
	if ro.profiler != nil {
		err = ro.profiler.Stop()
		ro.profiler = nil
	}
	if ro.loggingCleanup != nil {
		ro.loggingCleanup()
		ro.loggingCleanup = nil
	}
	return err
}

// loadConfig loads the configuration named by --config.
func (ro *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(ro.configPath)
	if err != nil {
		return nil, err
	}
	if ro.debug {
		cfg.Server.LogLevel = "debug"
	}
	return cfg, nil
}

// setupCLILogging logs warnings to stderr, everything with --debug.
func (ro *rootOptions) setupCLILogging() error {
	level := "warn"
	if ro.debug {
		level = "debug"
	}
	cleanup, err := logging.SetupDefault(logging.StderrConfig(level))
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	ro.loggingCleanup = cleanup
	return nil
}

// prepare loads the configuration and sets up CLI logging.
func (ro *rootOptions) prepare() (*config.Config, error) {
	cfg, err := ro.loadConfig()
	if err != nil {
		return nil, err
	}
	if err := ro.setupCLILogging(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// remote returns a client for the server owning cfg's data directory, or
// nil when no server is running. local forces nil.
func remote(cfg *config.Config, local bool) *api.Client {
	if local || !daemon.ForDataDir(cfg.Storage.DataDir).IsRunning() {
		return nil
	}
	slog.Debug("using_running_server", slog.String("addr", cfg.Server.Addr))
	return api.NewClient(cfg.Server.Addr)
}

// openEngine opens the engine in this process.
func openEngine(cfg *config.Config) (*engine.Engine, error) {
	e, err := engine.New(cfg)
	if err != nil {
		if driveerrors.GetCode(err) == driveerrors.ErrCodeIndexLocked {
			return nil, driveerrors.New(driveerrors.ErrCodeIndexLocked,
				"the index is held by another process", err).
				WithSuggestion("Start the command while 'amandrive serve' is running to go through it, or stop the other process")
		}
		return nil, err
	}
	return e, nil
}
