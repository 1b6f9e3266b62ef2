package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chambersiq/draftflow/internal/tui"
	"github.com/chambersiq/draftflow/internal/workflow/session"
)

type startOptions struct {
	caseID   string
	jobType  string
	clientID string
	seedFile string
	watch    bool
}

func newStartCmd(root *rootOptions) *cobra.Command {
	opts := &startOptions{}
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a drafting run",
		Long: `Start asks the engine for a new drafting run and prints its thread id.

Example:
  draftflow start --case C-104 --type lease
  draftflow start --case C-104 --type nda --seed-file parties.md --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd, root, opts)
		},
	}
	cmd.Flags().StringVar(&opts.caseID, "case", "", "case identifier (required)")
	cmd.Flags().StringVar(&opts.jobType, "type", "", "document type to draft (required)")
	cmd.Flags().StringVar(&opts.clientID, "client", "", "client identifier")
	cmd.Flags().StringVar(&opts.seedFile, "seed-file", "", "file whose content seeds the draft")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "open the terminal UI on the new run")
	_ = cmd.MarkFlagRequired("case")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func runStart(cmd *cobra.Command, root *rootOptions, opts *startOptions) error {
	params := session.StartParams{CaseID: opts.caseID, JobType: opts.jobType, ClientID: opts.clientID}
	if opts.seedFile != "" {
		seed, err := os.ReadFile(opts.seedFile)
		if err != nil {
			return fmt.Errorf("read seed file: %w", err)
		}
		params.SeedContent = string(seed)
	}
	if err := params.Validate(); err != nil {
		return err
	}

	rt, err := openRuntime(root)
	if err != nil {
		return err
	}
	defer rt.Close()

	if opts.watch {
		return runTUI(cmd.Context(), rt, tui.WithStart(params))
	}
	s, err := rt.client.Start(cmd.Context(), params)
	if err != nil {
		rt.logf("start: %v", err)
		return err
	}
	rt.logf("start: thread %s for case %s", s.ThreadID, params.CaseID)
	fmt.Fprintln(cmd.OutOrStdout(), s.ThreadID)
	return nil
}
