package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/amandrive/internal/config"
	"github.com/Aman-CERP/amandrive/internal/output"
)

func newConfigCmd(ro *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(newConfigInitCmd(ro))
	cmd.AddCommand(newConfigShowCmd(ro))
	return cmd
}

func newConfigInitCmd(ro *rootOptions) *cobra.Command {
	var force bool
	var root string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with defaults",
		Long: `Write a configuration file with the default settings, to --config or
~/.amandrive/amandrive.yaml. An existing file is kept unless --force is
given, in which case it is backed up first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := ro.configPath
			if path == "" {
				path = filepath.Join(config.DefaultDataDir(), config.FileName)
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}

			cfg := config.NewConfig()
			if root != "" {
				abs, err := filepath.Abs(root)
				if err != nil {
					return err
				}
				cfg.Storage.Root = abs
			}
			if err := cfg.WriteYAML(path); err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("Wrote %s", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	cmd.Flags().StringVar(&root, "root", "", "Storage root to write into the file")
	return cmd
}

func newConfigShowCmd(ro *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long:  "Print the configuration after defaults, the file and AMANDRIVE_* variables are applied.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ro.loadConfig()
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
