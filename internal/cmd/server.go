package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/yusukeshib/box/internal/rendezvous"
	"github.com/yusukeshib/box/internal/server"
)

// newServerCmd builds the hidden entry point a spawned daemon process
// re-execs itself into. It is never invoked directly by a user; attach
// constructs its argv (see spawnServerArgs).
func newServerCmd() *cobra.Command {
	var session string
	var dir string

	c := &cobra.Command{
		Use:    "_server --session <name> [--dir <dir>] -- <command> [args...]",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if session == "" {
				return fmt.Errorf("--session is required")
			}
			dashAt := cmd.ArgsLenAtDash()
			var command []string
			if dashAt >= 0 {
				command = args[dashAt:]
			} else {
				command = args
			}
			if len(command) == 0 {
				return fmt.Errorf("a command is required after --")
			}

			rd, err := rendezvous.For(session)
			if err != nil {
				return err
			}
			if err := rd.Ensure(); err != nil {
				return err
			}
			logFile, err := os.OpenFile(rd.ServerLog(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
			if err != nil {
				return fmt.Errorf("open server log: %w", err)
			}
			defer logFile.Close()
			logLevel := slog.LevelInfo
			if os.Getenv("BOX_DEBUG") == "1" {
				logLevel = slog.LevelDebug
			}
			log := slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: logLevel}))

			return server.Run(server.Config{
				SessionName: session,
				Command:     command,
				Dir:         dir,
				ExtraEnv:    map[string]string{"BOX_SESSION": session},
				Log:         log,
			})
		},
	}

	c.Flags().StringVar(&session, "session", "", "session name")
	c.Flags().StringVar(&dir, "dir", "", "working directory for the child process")
	return c
}

// spawnServerArgs builds the argv a re-exec of the current binary needs to
// run as sessionName's server, for client.SpawnConfig.ServerArgs.
func spawnServerArgs(sessionName, dir string, command []string) []string {
	args := []string{"_server", "--session", sessionName}
	if dir != "" {
		args = append(args, "--dir", dir)
	}
	args = append(args, "--")
	args = append(args, command...)
	return args
}
