package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chambersiq/draftflow/internal/enginestub"
)

type stdoutLogger struct{}

func (stdoutLogger) Printf(format string, args ...any) {
	fmt.Fprintf(os.Stdout, format+"\n", args...)
}

func newStubEngineCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "stub-engine",
		Short: "Serve an in-memory drafting engine for local development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := enginestub.DefaultSettings()
			if addr != "" {
				if err := settings.ParseAddress(addr); err != nil {
					return fmt.Errorf("parse --addr: %w", err)
				}
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			server := enginestub.NewServer(settings, enginestub.WithLogger(stdoutLogger{}))
			if err := server.Start(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stub engine ready at %s\n", server.BaseURL())
			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address as host:port (default 127.0.0.1:8790)")
	return cmd
}
