package cmd

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amandrive/internal/daemon"
	"github.com/Aman-CERP/amandrive/internal/output"
)

func newStopCmd(ro *rootOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running server",
		Long: `Send SIGTERM to the server recorded in the data directory's PID file and
wait for it to exit. The server commits queued work before it exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ro.prepare()
			if err != nil {
				return err
			}
			out := output.New(cmd.OutOrStdout())

			pid := daemon.ForDataDir(cfg.Storage.DataDir)
			if !pid.IsRunning() {
				out.Status("💤", "Server is not running")
				return nil
			}
			if err := pid.Stop(timeout); err != nil {
				if errors.Is(err, daemon.ErrPIDFileNotFound) {
					out.Status("💤", "Server is not running")
					return nil
				}
				return err
			}
			out.Success("Server stopped")
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "How long to wait for the server to exit")
	return cmd
}
