// cmd/draftflow/main.go
//
// Entry point for the draftflow CLI. Subcommands start drafting runs on the
// remote engine, inspect them, send review decisions, or open the terminal
// UI on a run.

package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
