package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chambersiq/draftflow/internal/workflow/sections"
	"github.com/chambersiq/draftflow/internal/workflow/session"
)

func newStatusCmd(root *rootOptions) *cobra.Command {
	var document bool
	cmd := &cobra.Command{
		Use:   "status <thread>",
		Short: "Fetch a run's current state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(root)
			if err != nil {
				return err
			}
			defer rt.Close()

			s, err := rt.client.FetchStatus(cmd.Context(), args[0])
			if err != nil && !session.IsTerminalError(err) {
				rt.logf("status %s: %v", args[0], err)
				return err
			}
			printStatus(cmd.OutOrStdout(), s)
			if document {
				fmt.Fprintln(cmd.OutOrStdout())
				fmt.Fprint(cmd.OutOrStdout(), sections.FromSession(s).Body)
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&document, "document", false, "print the document rebuilt from the sections written so far")
	return cmd
}

func printStatus(w io.Writer, s session.Session) {
	progress := sections.ComputeProgress(s)
	fmt.Fprintf(w, "thread:   %s\n", s.ThreadID)
	fmt.Fprintf(w, "status:   %s\n", s.Status)
	fmt.Fprintf(w, "progress: %s\n", progress.Label())
	if s.Status == session.StatusInterrupted {
		fmt.Fprintf(w, "review:   %s\n", strings.TrimSpace(s.HumanReadableFeedback))
	}
	if s.Err != nil {
		fmt.Fprintf(w, "error:    %v\n", s.Err)
	}
}
