package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amandrive/internal/output"
)

func newPurgeCmd(ro *rootOptions) *cobra.Command {
	var yes, local bool

	cmd := &cobra.Command{
		Use:   "purge <owner>",
		Short: "Remove every index entry of an owner",
		Long: `Remove every index entry of an owner and flag the owner's metadata records
as deleted. Files on disk are not touched; the flags are cleared once the
removal is confirmed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner := args[0]
			if !yes {
				return fmt.Errorf("purging %q removes all of its index entries; pass --yes to confirm", owner)
			}
			cfg, err := ro.prepare()
			if err != nil {
				return err
			}

			if c := remote(cfg, local); c != nil {
				err = c.NotifyOwnerPurged(cmd.Context(), owner)
			} else {
				e, oerr := openEngine(cfg)
				if oerr != nil {
					return oerr
				}
				defer func() { _ = e.Close() }()
				err = e.NotifyOwnerPurged(cmd.Context(), owner)
			}
			if err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("Purged index entries of %s", owner)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm the purge")
	cmd.Flags().BoolVar(&local, "local", false, "Open the index directly instead of using a running server")
	return cmd
}
