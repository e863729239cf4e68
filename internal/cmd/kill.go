package cmd

import (
	"github.com/spf13/cobra"

	"github.com/yusukeshib/box/internal/client"
)

// newKillCmd builds "box kill <name>": send Kill to a running session's
// child process without attaching, distinct from the in-session Ctrl+X.
func newKillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kill <name>",
		Short: "Terminate a running session's child process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client.SendKill(args[0])
		},
	}
}
