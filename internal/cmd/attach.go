package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yusukeshib/box/internal/client"
)

// newAttachCmd builds "box attach <name> [-- cmd...]": connect to name's
// server, spawning it first if it is not already running, then attach.
func newAttachCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "attach <name> [-- command...]",
		Short: "Attach to a session, starting its daemon if needed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			dashAt := cmd.ArgsLenAtDash()
			var cliCommand []string
			if dashAt > 0 {
				cliCommand = args[dashAt:]
			}

			cfg := loadConfig()
			command, dir, err := resolveCommand(cfg, name, cliCommand)
			if err != nil {
				return err
			}

			conn, err := client.Connect(client.SpawnConfig{
				SessionName: name,
				ServerArgs:  spawnServerArgs(name, dir, command),
			})
			if err != nil {
				return fmt.Errorf("connect to session %q: %w", name, err)
			}
			defer conn.Close()

			code, err := client.Attach(conn, client.Options{
				SessionName: name,
				ProjectName: projectName(),
				PrefixKey:   cfg.PrefixKeyByte(),
			})
			if err != nil {
				return err
			}
			if code != 0 {
				return exitCodeError(code)
			}
			return nil
		},
	}
	return c
}
