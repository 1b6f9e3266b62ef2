package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/chambersiq/draftflow/internal/tui"
)

func newWatchCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <thread>",
		Short: "Open the terminal UI on an existing run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(root)
			if err != nil {
				return err
			}
			defer rt.Close()
			return runTUI(cmd.Context(), rt, tui.WithThread(args[0]))
		},
	}
}

// runTUI blocks until the user quits the terminal UI.
func runTUI(ctx context.Context, rt *runtime, opts ...tui.AppOption) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctrl, closeAll, err := rt.controller(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeAll(); err != nil {
			rt.logf("tui: close: %v", err)
		}
	}()
	app := tui.NewApp(rt.cfg, ctrl, append([]tui.AppOption{tui.WithContext(ctx)}, opts...)...)
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run terminal UI: %w", err)
	}
	return nil
}
