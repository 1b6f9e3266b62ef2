package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chambersiq/draftflow/internal/workflow/review"
	"github.com/chambersiq/draftflow/internal/workflow/session"
)

type decideOptions struct {
	verdict  string
	feedback string
	protocol string
}

func newDecideCmd(root *rootOptions) *cobra.Command {
	opts := &decideOptions{}
	cmd := &cobra.Command{
		Use:   "decide <thread>",
		Short: "Answer a run that is waiting for review",
		Long: `Decide sends a review verdict to a paused run. Reject and refine need
feedback; the binary protocol offers approve and reject only.

Example:
  draftflow decide th-42 --verdict approve
  draftflow decide th-42 --verdict refine --feedback "cite the 2019 amendment"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecide(cmd, root, opts, args[0])
		},
	}
	cmd.Flags().StringVar(&opts.verdict, "verdict", "", "approve, reject or refine (required)")
	cmd.Flags().StringVar(&opts.feedback, "feedback", "", "feedback for reject or refine")
	cmd.Flags().StringVar(&opts.protocol, "protocol", "", "binary or ternary (default from config)")
	_ = cmd.MarkFlagRequired("verdict")
	return cmd
}

func runDecide(cmd *cobra.Command, root *rootOptions, opts *decideOptions, threadID string) error {
	verdict, err := session.ParseVerdict(opts.verdict)
	if err != nil {
		return err
	}
	rt, err := openRuntime(root)
	if err != nil {
		return err
	}
	defer rt.Close()
	protocol, err := rt.protocol(opts.protocol)
	if err != nil {
		return err
	}

	// The gate needs the current snapshot to know a review is pending.
	s, err := rt.client.FetchStatus(cmd.Context(), threadID)
	if err != nil {
		return err
	}
	gate := review.NewGate(rt.client, protocol)
	if gate.Observe(s) != review.AwaitingDecision {
		return session.NewError(session.ErrInvalidState, "decide", threadID,
			fmt.Errorf("run is %s, not waiting for review", s.Status))
	}
	gate.SetFeedback(opts.feedback)
	next, err := gate.Submit(cmd.Context(), verdict)
	if err != nil {
		rt.logf("decide %s: %v", threadID, err)
		return err
	}
	rt.logf("decide %s: sent %s", threadID, verdict)
	printStatus(cmd.OutOrStdout(), next)
	return nil
}
