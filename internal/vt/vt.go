// Package vt owns the PTY master/child pair and the virtual-terminal state
// derived from it: a live fixed-size screen grid and an append-only
// scrollback mirror, fed the same byte stream.
package vt

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/creack/pty"
	"github.com/vito/midterm"

	"github.com/yusukeshib/box/internal/rendezvous"
)

// MaxHistoryBytes bounds the raw PTY-output ring used to replay scrollback
// to a newly-attaching client. When over-full, bytes are dropped from the
// front up to the next newline so an escape sequence never gets split.
const MaxHistoryBytes = 4 * 1024 * 1024

// Screen owns the PTY master and the virtual terminal state derived from
// child output. Feed, Resize, History and FormattedScreen are not safe for
// concurrent use: callers keep them on one goroutine (the server's main
// loop), while other goroutines only read from Ptm and call Wait.
type Screen struct {
	Ptm *os.File
	Cmd *exec.Cmd

	Vt         *midterm.Terminal // live screen, fixed at Rows x Cols
	Scrollback *midterm.Terminal // auto-growing, append-only mirror of the same bytes

	Rows, Cols int

	history []byte

	ChildExited bool
	ExitError   error
}

// Start spawns command on the slave side of a fresh PTY sized rows x cols
// and begins tracking its output.
func Start(command string, args []string, rows, cols int, extraEnv map[string]string) (*Screen, error) {
	cmd := exec.Command(command, args...)
	// The child never inherits the sentinel that marks this process as a
	// session's server, so a later stale-server check can't mistake the
	// child for a live server of its own session.
	cmd.Env = mergeEnv(os.Environ(), extraEnv, rendezvous.ServerMarkerEnv)
	ptm, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
	if err != nil {
		return nil, fmt.Errorf("start command: %w", err)
	}

	s := &Screen{
		Ptm:        ptm,
		Cmd:        cmd,
		Vt:         midterm.NewTerminal(rows, cols),
		Scrollback: midterm.NewTerminal(rows, cols),
		Rows:       rows,
		Cols:       cols,
	}
	s.Scrollback.AutoResizeY = true
	s.Scrollback.AppendOnly = true
	return s, nil
}

// Feed writes PTY output into the live screen, the scrollback mirror, and
// the raw-history ring, in that order. Call this once per PTY read.
func (s *Screen) Feed(data []byte) {
	s.Vt.Write(data)
	s.Scrollback.Write(data)
	s.appendHistory(data)
}

func (s *Screen) appendHistory(data []byte) {
	s.history = append(s.history, data...)
	if len(s.history) <= MaxHistoryBytes {
		return
	}
	excess := len(s.history) - MaxHistoryBytes
	// Drop from the front up to the next newline past the excess point so a
	// partial escape sequence is never left dangling at the new start.
	cut := excess
	for cut < len(s.history) && s.history[cut-1] != '\n' {
		cut++
	}
	if cut > len(s.history) {
		cut = len(s.history)
	}
	s.history = append([]byte(nil), s.history[cut:]...)
}

// History returns the current raw-history ring. The returned slice is the
// ring itself, not a copy, and must not be mutated by the caller. The server
// encodes it into a newly allocated Output frame for each attaching client.
func (s *Screen) History() []byte {
	return s.history
}

// FormattedScreen renders the live screen's current contents with SGR
// styling, row by row, suitable for seeding a freshly-attached client's local
// parser to an identical visible state.
func (s *Screen) FormattedScreen() []byte {
	return renderTerminal(s.Vt)
}

// Resize updates the live screen and the PTY to rows x cols. The scrollback
// mirror only follows the column change: its row count is intentionally
// append-only so old lines are never truncated by a resize.
func (s *Screen) Resize(rows, cols int) {
	s.Rows = rows
	s.Cols = cols
	s.Vt.Resize(rows, cols)
	s.Scrollback.ResizeX(cols)
	pty.Setsize(s.Ptm, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
}

// WritePTY writes to the child's PTY, retrying on short writes. It gives up
// silently on error, matching the spec's "input is not replayed" policy.
func WritePTY(w *os.File, p []byte) {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return
		}
		p = p[n:]
	}
}

// Wait blocks until the child exits and records its outcome.
func (s *Screen) Wait() {
	err := s.Cmd.Wait()
	s.ChildExited = true
	s.ExitError = err
}

// ExitCode returns the child's exit status: 0 when Wait returned no error,
// the *exec.ExitError's code otherwise (-1 when the child was killed by a
// signal), and -1 for any other Wait error.
func (s *Screen) ExitCode() int32 {
	if s.ExitError == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if ok := asExitError(s.ExitError, &exitErr); ok {
		return int32(exitErr.ExitCode())
	}
	return -1
}

func asExitError(err error, target **exec.ExitError) bool {
	ee, ok := err.(*exec.ExitError)
	if ok {
		*target = ee
	}
	return ok
}

// mergeEnv builds a child environment from base with overrides applied and
// every key named in remove stripped out, even if base never explicitly set
// it (remove is for keys that must never reach the child, not just ones that
// conflict with an override).
func mergeEnv(base []string, overrides map[string]string, remove ...string) []string {
	drop := make(map[string]bool, len(remove))
	for _, k := range remove {
		drop[k] = true
	}
	out := make([]string, 0, len(base)+len(overrides))
	for _, e := range base {
		key := e
		for i, c := range e {
			if c == '=' {
				key = e[:i]
				break
			}
		}
		if _, dup := overrides[key]; dup {
			continue
		}
		if drop[key] {
			continue
		}
		out = append(out, e)
	}
	for k, v := range overrides {
		out = append(out, k+"="+v)
	}
	return out
}

// renderTerminal formats every row of t with SGR codes, resetting between
// format regions so background colors never bleed from one region into the
// next (midterm's own RenderLine does not reset between regions).
func renderTerminal(t *midterm.Terminal) []byte {
	var out []byte
	for row := 0; row < len(t.Content); row++ {
		out = append(out, []byte("\x1b[0m")...)
		out = appendRow(out, t, row)
		if row < len(t.Content)-1 {
			out = append(out, '\r', '\n')
		}
	}
	out = append(out, []byte("\x1b[0m")...)
	return out
}

func appendRow(out []byte, t *midterm.Terminal, row int) []byte {
	if row >= len(t.Content) {
		return out
	}
	line := t.Content[row]
	var pos int
	var lastFormat midterm.Format
	for region := range t.Format.Regions(row) {
		f := region.F
		if f != lastFormat {
			out = append(out, []byte("\x1b[0m")...)
			out = append(out, []byte(f.Render())...)
			lastFormat = f
		}
		end := pos + region.Size
		if pos < len(line) {
			contentEnd := end
			if contentEnd > len(line) {
				contentEnd = len(line)
			}
			out = append(out, []byte(string(line[pos:contentEnd]))...)
		}
		pos = end
	}
	return out
}
