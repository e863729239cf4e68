package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/yusukeshib/box/internal/client"
)

// newRunCmd builds "box run <command...>": run the command under a
// locally-owned PTY with no server, so the session dies with its terminal.
func newRunCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "run <command> [args...]",
		Short: "Run a command in standalone mode (no daemon)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := client.RunStandalone(client.StandaloneOptions{
				Command:     args,
				SessionName: filepath.Base(args[0]),
				ProjectName: projectName(),
				PrefixKey:   loadConfig().PrefixKeyByte(),
			})
			if err != nil {
				return fmt.Errorf("run: %w", err)
			}
			if code != 0 {
				return exitCodeError(code)
			}
			return nil
		},
	}
	return c
}
