package client

import (
	"testing"

	"github.com/yusukeshib/box/internal/input"
	"github.com/yusukeshib/box/internal/vt"
)

func newTestStandaloneLoop(t *testing.T, rows, cols int) *standaloneLoop {
	t.Helper()
	screen, err := vt.Start("cat", nil, rows, cols, nil)
	if err != nil {
		t.Skipf("cannot spawn cat for this test: %v", err)
	}
	t.Cleanup(func() {
		if screen.Cmd.Process != nil {
			screen.Cmd.Process.Kill()
		}
		screen.Wait()
	})
	screen.Scrollback.AutoResizeY = true
	return &standaloneLoop{
		screen:    screen,
		input:     input.New(0),
		cols:      cols,
		rows:      rows + 1,
		innerRows: rows,
	}
}

// TestStandaloneHandleInputForwardsToPTY verifies a plain keystroke is not
// interpreted as a detach or kill command.
func TestStandaloneHandleInputForwardsToPTY(t *testing.T) {
	l := newTestStandaloneLoop(t, 24, 80)
	if done := l.handleInput([]byte("x")); done {
		t.Fatal("unexpected detach/kill on plain input")
	}
}

// TestStandaloneHandleInputDetachReturnsTrue verifies the detach action (from
// the prefix-key command sequence) signals the run loop to stop.
func TestStandaloneHandleInputDetachReturnsTrue(t *testing.T) {
	l := newTestStandaloneLoop(t, 24, 80)
	l.input = input.New(0x02) // Ctrl+B as prefix key
	l.handleInput([]byte{0x02})
	if done := l.handleInput([]byte{0x11}); !done { // Ctrl+Q detaches
		t.Fatal("expected detach sequence to return done")
	}
}

// TestStandaloneScrollbackLineCountClampsAtZero verifies a freshly started
// loop with no scrollback history reports zero, not negative.
func TestStandaloneScrollbackLineCountClampsAtZero(t *testing.T) {
	l := newTestStandaloneLoop(t, 24, 80)
	if n := l.scrollbackLineCount(); n != 0 {
		t.Fatalf("expected 0 scrollback lines, got %d", n)
	}
}

// TestStandaloneKillChildTerminatesProcess verifies killChild actually ends
// the underlying child process.
func TestStandaloneKillChildTerminatesProcess(t *testing.T) {
	l := newTestStandaloneLoop(t, 24, 80)
	l.killChild()
	if code := l.waitExit(); code == 0 {
		t.Fatal("expected a nonzero exit code after killing the child")
	}
}
