// Package termio is the terminal I/O layer: raw-mode acquisition and
// restoration, direct (uncached) size queries, mouse-tracking toggling, and
// VT-screen-to-frame rendering.
package termio

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

// ErrNotATerminal is returned by Open when the controlling terminal device
// cannot be used as one.
var ErrNotATerminal = errors.New("termio: not a terminal")

const (
	enterAltScreenHideCursor = "\x1b[?1049h\x1b[?25l"
	leaveAltScreenSeq        = "\x1b[?1006l\x1b[?1002l\x1b[?1000l\x1b[?25h\x1b[?1049l\x1b[0m"
)

// Guard owns the controlling terminal's raw-mode state and restores it
// exactly once, from whichever of Restore or RunProtected's panic recovery
// runs first.
type Guard struct {
	tty   *os.File
	state *term.State

	mu        sync.Mutex
	restored  bool
}

// Open opens /dev/tty, verifies it is a terminal, and puts it into raw mode
// with the alternate screen active and the cursor hidden. The caller owns
// the returned Guard and must call Restore exactly once.
func Open() (*Guard, error) {
	tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open controlling terminal: %w", err)
	}
	if !isatty.IsTerminal(tty.Fd()) {
		tty.Close()
		return nil, ErrNotATerminal
	}
	state, err := term.MakeRaw(int(tty.Fd()))
	if err != nil {
		tty.Close()
		return nil, fmt.Errorf("enter raw mode: %w", err)
	}
	if _, err := tty.WriteString(enterAltScreenHideCursor); err != nil {
		term.Restore(int(tty.Fd()), state)
		tty.Close()
		return nil, fmt.Errorf("enter alternate screen: %w", err)
	}
	g := &Guard{tty: tty, state: state}
	registerForPanicRestore(g)
	return g, nil
}

// TTY returns the underlying terminal file, for reads and direct writes.
func (g *Guard) TTY() *os.File { return g.tty }

// Restore reverses Open's effects: disables mouse tracking, shows the
// cursor, leaves the alternate screen, resets attributes, and restores the
// original termios. Safe to call more than once and from a panic-unwind
// path; only the first call has effect.
func (g *Guard) Restore() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.restored {
		return
	}
	g.restored = true
	unregisterForPanicRestore(g)
	g.tty.WriteString(leaveAltScreenSeq)
	term.Restore(int(g.tty.Fd()), g.state)
	g.tty.Close()
}

// panicGuards is the process-wide registry consulted by RunProtected, in
// lieu of a free-function signal/panic hook (Go has neither): every active
// Guard registers itself here, and RunProtected's deferred recover walks the
// registry before re-panicking, so a panic inside the function it runs still
// restores the terminal before the process dies. A panic on any other
// goroutine is not recovered here.
var (
	panicGuardsMu sync.Mutex
	panicGuards   []*Guard
)

func registerForPanicRestore(g *Guard) {
	panicGuardsMu.Lock()
	defer panicGuardsMu.Unlock()
	panicGuards = append(panicGuards, g)
}

func unregisterForPanicRestore(g *Guard) {
	panicGuardsMu.Lock()
	defer panicGuardsMu.Unlock()
	for i, c := range panicGuards {
		if c == g {
			panicGuards = append(panicGuards[:i], panicGuards[i+1:]...)
			return
		}
	}
}

// RunProtected calls fn and, if fn panics, restores every open terminal
// Guard before re-raising the panic so a crash never leaves the user's
// terminal in raw mode with the alternate screen active.
func RunProtected(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			panicGuardsMu.Lock()
			guards := append([]*Guard(nil), panicGuards...)
			panicGuardsMu.Unlock()
			for _, g := range guards {
				g.Restore()
			}
			panic(r)
		}
	}()
	fn()
}
