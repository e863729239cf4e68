package client

import (
	"bytes"
	"errors"
	"os"
	"time"

	"github.com/yusukeshib/box/internal/input"
	"github.com/yusukeshib/box/internal/termio"
	"github.com/yusukeshib/box/internal/vt"
)

// StandaloneOptions configures a server-less session: a PTY and child owned
// directly by the attaching process, used when the caller wants a session
// that dies with its terminal rather than surviving detach.
type StandaloneOptions struct {
	Command     []string
	Dir         string
	ExtraEnv    map[string]string
	SessionName string
	ProjectName string
	PrefixKey   byte
}

// RunStandalone starts the command under a locally-owned PTY and runs the
// same render/input loop as Attach, except Detach and Kill both terminate
// the child before returning.
func RunStandalone(opts StandaloneOptions) (int, error) {
	if len(opts.Command) == 0 {
		return 0, errors.New("client: command must not be empty")
	}

	guard, err := termio.Open()
	if err != nil {
		return RunFallback(opts)
	}
	tty := guard.TTY()

	cols, rows, err := termio.Size(tty)
	if err != nil {
		guard.Restore()
		return RunFallback(opts)
	}
	defer guard.Restore()
	innerRows := rows - 1
	if innerRows <= 0 || cols <= 0 {
		return 0, errors.New("client: terminal too small")
	}

	screen, err := vt.Start(opts.Command[0], opts.Command[1:], innerRows, cols, opts.ExtraEnv)
	if err != nil {
		return 0, err
	}
	if opts.Dir != "" {
		screen.Cmd.Dir = opts.Dir
	}
	screen.Scrollback.AutoResizeY = true

	var code int
	termio.RunProtected(func() {
		code, err = runStandaloneLoop(screen, tty, opts, cols, rows, innerRows)
	})
	return code, err
}

func runStandaloneLoop(screen *vt.Screen, tty *os.File, opts StandaloneOptions, cols, rows, innerRows int) (int, error) {
	events := make(chan standaloneEvent, 256)
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := screen.Ptm.Read(buf)
			if n > 0 {
				events <- standaloneEvent{kind: saPtyOutput, data: append([]byte(nil), buf[:n]...)}
			}
			if err != nil {
				events <- standaloneEvent{kind: saChildExited}
				return
			}
		}
	}()
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := tty.Read(buf)
			if n > 0 {
				select {
				case events <- standaloneEvent{kind: saInputBytes, data: append([]byte(nil), buf[:n]...)}:
				case <-stop:
					return
				}
			}
			if err != nil {
				return
			}
			select {
			case <-stop:
				return
			default:
			}
		}
	}()

	l := &standaloneLoop{
		screen:      screen,
		tty:         tty,
		input:       input.New(opts.PrefixKey),
		sessionName: opts.SessionName,
		projectName: opts.ProjectName,
		cols:        cols,
		rows:        rows,
		innerRows:   innerRows,
		dirty:       true,
	}
	return l.run(events)
}

type standaloneEventKind int

const (
	saPtyOutput standaloneEventKind = iota
	saInputBytes
	saChildExited
)

type standaloneEvent struct {
	kind standaloneEventKind
	data []byte
}

type standaloneLoop struct {
	screen      *vt.Screen
	tty         *os.File
	input       *input.State
	sessionName string
	projectName string

	cols, rows      int
	innerRows       int
	dirty           bool
	mouseTrackingOn bool
}

func (l *standaloneLoop) run(events chan standaloneEvent) (int, error) {
	for {
		timeout := idlePollInterval
		if l.dirty {
			timeout = dirtyPollInterval
		}
		select {
		case ev := <-events:
			switch ev.kind {
			case saPtyOutput:
				l.screen.Feed(ev.data)
				l.dirty = true
			case saInputBytes:
				if done := l.handleInput(ev.data); done {
					l.killChild()
					return l.waitExit(), nil
				}
			case saChildExited:
				l.screen.Wait()
				return int(l.screen.ExitCode()), nil
			}
		case <-time.After(timeout):
			l.onTimeout()
		}
	}
}

func (l *standaloneLoop) handleInput(data []byte) (detachOrKill bool) {
	maxScrollback := l.scrollbackLineCount()
	actions := l.input.Process(data, l.innerRows, l.cols, maxScrollback)
	for _, a := range actions {
		switch a.Kind {
		case input.ActionForward:
			vt.WritePTY(l.screen.Ptm, a.Bytes)
		case input.ActionDetach, input.ActionKill:
			return true
		case input.ActionRedraw:
			l.dirty = true
		}
	}
	return false
}

func (l *standaloneLoop) killChild() {
	if l.screen.Cmd.Process != nil {
		l.screen.Cmd.Process.Kill()
	}
}

func (l *standaloneLoop) waitExit() int {
	l.screen.Wait()
	return int(l.screen.ExitCode())
}

func (l *standaloneLoop) onTimeout() {
	maxScrollback := l.scrollbackLineCount()
	for _, a := range l.input.FlushPending(l.innerRows, l.cols, maxScrollback) {
		switch a.Kind {
		case input.ActionForward:
			vt.WritePTY(l.screen.Ptm, a.Bytes)
		case input.ActionRedraw:
			l.dirty = true
		}
	}

	if cols, rows, err := termio.Size(l.tty); err == nil {
		if cols != l.cols || rows != l.rows {
			l.cols, l.rows = cols, rows
			newInner := rows - 1
			if newInner > 0 && cols > 0 {
				l.innerRows = newInner
				l.screen.Resize(newInner, cols)
			}
			l.input.ResetScrollOffset()
			l.dirty = true
		}
	}

	if l.dirty {
		maxScrollback = l.scrollbackLineCount()
		wantMouse := maxScrollback > 0
		if wantMouse != l.mouseTrackingOn {
			l.mouseTrackingOn = wantMouse
			termio.SetMouseTracking(l.tty, wantMouse)
		}
		l.render(maxScrollback)
		l.dirty = false
	}
}

func (l *standaloneLoop) render(maxScrollback int) {
	var buf bytes.Buffer
	frame := termio.Frame{
		SessionName:   l.sessionName,
		ProjectName:   l.projectName,
		CommandMode:   l.input.CommandMode(),
		ScrollOffset:  l.input.ScrollOffset(),
		MaxScrollback: maxScrollback,
		Cols:          l.cols,
		Rows:          l.rows,
	}
	offset := l.input.ScrollOffset()
	if offset == 0 {
		startRow := l.screen.Vt.Cursor.Y - l.innerRows + 1
		if startRow < 0 {
			startRow = 0
		}
		termio.Render(&buf, frame, l.screen.Vt, startRow, true)
	} else {
		bottom := l.screen.Scrollback.Cursor.Y
		startRow := bottom - l.innerRows + 1 - offset
		if startRow < 0 {
			startRow = 0
		}
		termio.Render(&buf, frame, l.screen.Scrollback, startRow, false)
	}
	l.tty.Write(buf.Bytes())
}

func (l *standaloneLoop) scrollbackLineCount() int {
	n := l.screen.Scrollback.Cursor.Y - l.innerRows + 1
	if n < 0 {
		return 0
	}
	return n
}
