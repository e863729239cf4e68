package termio

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// Size queries the terminal device directly via its file descriptor. It is
// never cached: every call issues a fresh ioctl, matching §4.2's requirement
// that size queries (and PTY resizing) never go through library-cached
// state — a SIGWINCH can invalidate a cached value between queries.
func Size(tty *os.File) (cols, rows int, err error) {
	cols, rows, err = term.GetSize(int(tty.Fd()))
	if err != nil {
		return 0, 0, fmt.Errorf("query terminal size: %w", err)
	}
	return cols, rows, nil
}
