// Package cmd builds box's cobra command tree: attach, run (standalone),
// kill, list, and a hidden server entry point reached only via the spawn
// protocol's re-exec of the current binary.
package cmd

import (
	"github.com/spf13/cobra"
)

// NewRootCmd constructs the root command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "box",
		Short: "A local terminal-session multiplexer",
		Long: "box runs a command under a daemon that owns its PTY, so any number " +
			"of clients can attach, detach, and reattach without losing the session.",
		SilenceUsage: true,
	}

	root.AddCommand(
		newAttachCmd(),
		newRunCmd(),
		newKillCmd(),
		newListCmd(),
		newServerCmd(),
	)
	return root
}
