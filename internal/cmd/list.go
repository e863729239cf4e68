package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yusukeshib/box/internal/rendezvous"
)

// newListCmd builds "box list": enumerate rendezvous directories, marking
// each with whether its recorded PID is still a live server.
func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions, err := rendezvous.List()
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Println("No sessions.")
				return nil
			}
			for _, s := range sessions {
				status := "dead"
				if s.Alive {
					status = "running"
				}
				fmt.Printf("%s\t%s\tpid %d\n", s.Name, status, s.PID)
			}
			return nil
		},
	}
}
