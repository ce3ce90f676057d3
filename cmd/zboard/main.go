// Package main implements the zboard command, which serves a board of
// z-ordered widgets over HTTP and talks to a running server.
//
// Architecture:
//
//	┌─────────────────────────────────────────┐
//	│               zboard serve              │
//	├─────────────────────────────────────────┤
//	│  HTTP API (internal/api):               │
//	│    /widget...    - Widget operations    │
//	│    /health       - Health check         │
//	│    /stats        - Counters             │
//	│    /ws           - Change feed          │
//	├─────────────────────────────────────────┤
//	│  board.Service → storage.Store          │
//	│    memory | sqlite | postgres           │
//	│  events.Hub ← redis relay (optional)    │
//	└─────────────────────────────────────────┘
//
// Configuration comes from an optional file (--config), ZBOARD_* environment
// variables and flags, in that order of precedence (see internal/config).
//
// Example usage:
//
//	# Serve from a SQLite file
//	ZBOARD_BACKEND=sqlite ZBOARD_DSN=board.db zboard serve
//
//	# Place a widget on top and list the board
//	zboard create --x 10 --y 10 --width 100 --height 50
//	zboard list --page-size 20
package main

import (
	"context"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the command tree
// Every command finds its logger through loggerFromContext; --verbose
// switches it to debug level.
func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:          "zboard",
		Short:        "zboard stores widgets in strict z-order",
		Long:         `zboard keeps a board of rectangular widgets, each on its own z-index, and shifts overlapping widgets up when a new one takes their place.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := charmlog.InfoLevel
			if verbose {
				level = charmlog.DebugLevel
			}
			ctx := withLogger(cmd.Context(), newLogger(cmd.ErrOrStderr(), level))
			cmd.SetContext(ctx)
		},
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(newServeCmd(&verbose))
	for _, cmd := range newClientCmds() {
		root.AddCommand(cmd)
	}
	return root
}
