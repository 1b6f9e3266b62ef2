package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chambersiq/draftflow/internal/config"
)

func newInitCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create .draftflow with a default config.yaml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := opts.dir()
			if err != nil {
				return err
			}
			if err := config.InitDir(dir); err != nil {
				return err
			}
			cfg, err := config.Load(dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized %s\n", cfg.ProjectConfigPath())
			return nil
		},
	}
}
