package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	projectDir string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "draftflow",
		Short: "Drive AI legal drafting runs with human review",
		Long: `draftflow starts drafting workflows on a remote engine, follows their progress,
rebuilds the document from the sections the engine has written, and pauses for
a human decision whenever the engine asks for one.

Runs are identified by the thread id the engine returns, so a run can be
resumed from any terminal with "draftflow watch <thread>".`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.projectDir, "project", "", "project directory holding .draftflow (default is the working directory)")

	cmd.AddCommand(
		newInitCmd(opts),
		newStartCmd(opts),
		newStatusCmd(opts),
		newDecideCmd(opts),
		newWatchCmd(opts),
		newStubEngineCmd(),
	)
	return cmd
}

func (o *rootOptions) dir() (string, error) {
	if o.projectDir != "" {
		return filepath.Abs(o.projectDir)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("determine working directory: %w", err)
	}
	return cwd, nil
}
