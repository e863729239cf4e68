// Command box is a local terminal-session multiplexer: a single daemon per
// named session owns a PTY, and any number of clients can attach, detach,
// and reattach to it without losing the child process or its scrollback.
package main

import (
	"fmt"
	"os"

	"github.com/yusukeshib/box/internal/cmd"
)

func main() {
	err := cmd.NewRootCmd().Execute()
	if err == nil {
		return
	}
	if exitErr, ok := err.(cmd.ExitCodeError); ok {
		os.Exit(exitErr.Code)
	}
	fmt.Fprintln(os.Stderr, "box:", err)
	os.Exit(1)
}
