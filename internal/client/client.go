package client

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/vito/midterm"

	"github.com/yusukeshib/box/internal/input"
	"github.com/yusukeshib/box/internal/termio"
	"github.com/yusukeshib/box/internal/wire"
)

const (
	handshakeReadTimeout = 10 * time.Second
	dirtyPollInterval    = 2 * time.Millisecond
	idlePollInterval     = 50 * time.Millisecond
)

// Options configures one attach session.
type Options struct {
	SessionName string
	ProjectName string // "" when unknown
	PrefixKey   byte   // 0 selects input.DefaultPrefixKey
}

// Attach opens the controlling terminal, completes the handshake with conn,
// and runs the render/input loop until the server reports the child exited
// or the user detaches. It returns the child's exit code (0 on detach).
func Attach(conn net.Conn, opts Options) (int, error) {
	guard, err := termio.Open()
	if err != nil {
		return 0, err
	}
	defer guard.Restore()
	tty := guard.TTY()

	var code int
	termio.RunProtected(func() {
		code, err = runAttachLoop(conn, tty, opts)
	})
	return code, err
}

func runAttachLoop(conn net.Conn, tty *os.File, opts Options) (int, error) {
	cols, rows, err := termio.Size(tty)
	if err != nil {
		return 0, err
	}
	innerRows := rows - 1
	if innerRows <= 0 || cols <= 0 {
		return 0, errors.New("client: terminal too small")
	}

	if err := wire.WriteClientMsg(conn, wire.NewResize(uint16(cols), uint16(innerRows))); err != nil {
		return 0, fmt.Errorf("client: send initial resize: %w", err)
	}

	setReadDeadline(conn, time.Now().Add(handshakeReadTimeout))
	resizedMsg, err := wire.ReadServerMsg(conn)
	if err != nil {
		return 0, fmt.Errorf("client: handshake: %w", err)
	}
	var ptyCols, ptyRows int
	switch resizedMsg.Tag {
	case wire.TagResized:
		ptyCols, ptyRows = int(resizedMsg.Cols), int(resizedMsg.Rows)
	case wire.TagExited:
		return int(resizedMsg.Code), nil
	default:
		ptyCols, ptyRows = cols, innerRows
	}

	screen := midterm.NewTerminal(ptyRows, ptyCols)
	scrollback := midterm.NewTerminal(ptyRows, ptyCols)
	scrollback.AutoResizeY = true
	scrollback.AppendOnly = true

	screenMsg, err := wire.ReadServerMsg(conn)
	if err != nil {
		return 0, fmt.Errorf("client: handshake screen dump: %w", err)
	}
	switch screenMsg.Tag {
	case wire.TagOutput:
		screen.Write(screenMsg.Output)
		scrollback.Write(screenMsg.Output)
	case wire.TagExited:
		return int(screenMsg.Code), nil
	}
	setReadDeadline(conn, time.Time{})

	events := make(chan clientEvent, 256)
	go socketReader(conn, events)
	stopInput := make(chan struct{})
	go ttyReader(tty, events, stopInput)
	defer close(stopInput)

	loop := &attachLoop{
		conn:        conn,
		tty:         tty,
		screen:      screen,
		scrollback:  scrollback,
		input:       input.New(opts.PrefixKey),
		sessionName: opts.SessionName,
		projectName: opts.ProjectName,
		cols:        cols,
		rows:        rows,
		innerRows:   innerRows,
		ptyCols:     ptyCols,
		ptyRows:     ptyRows,
		dirty:       true,
	}
	return loop.run(events)
}

type clientEventKind int

const (
	evServerMsg clientEventKind = iota
	evInputBytes
	evServerDisconnected
)

type clientEvent struct {
	kind clientEventKind
	msg  wire.ServerMsg
	data []byte
}

func socketReader(conn net.Conn, events chan<- clientEvent) {
	for {
		msg, err := wire.ReadServerMsg(conn)
		if err != nil {
			events <- clientEvent{kind: evServerDisconnected}
			return
		}
		events <- clientEvent{kind: evServerMsg, msg: msg}
	}
}

func ttyReader(tty *os.File, events chan<- clientEvent, stop <-chan struct{}) {
	buf := make([]byte, 4096)
	for {
		n, err := tty.Read(buf)
		if n > 0 {
			select {
			case events <- clientEvent{kind: evInputBytes, data: append([]byte(nil), buf[:n]...)}:
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
}

type attachLoop struct {
	conn        net.Conn
	tty         *os.File
	screen      *midterm.Terminal
	scrollback  *midterm.Terminal
	input       *input.State
	sessionName string
	projectName string

	cols, rows       int
	innerRows        int
	ptyCols, ptyRows int
	dirty            bool
	mouseTrackingOn  bool
}

func (l *attachLoop) run(events chan clientEvent) (int, error) {
	for {
		timeout := idlePollInterval
		if l.dirty {
			timeout = dirtyPollInterval
		}
		select {
		case ev := <-events:
			switch ev.kind {
			case evServerMsg:
				if code, done := l.handleServerMsg(ev.msg); done {
					return code, nil
				}
			case evInputBytes:
				if code, done := l.handleInput(ev.data); done {
					return code, nil
				}
			case evServerDisconnected:
				return 0, nil
			}
		case <-time.After(timeout):
			l.onTimeout()
		}
	}
}

func (l *attachLoop) handleServerMsg(msg wire.ServerMsg) (code int, done bool) {
	switch msg.Tag {
	case wire.TagOutput:
		l.screen.Write(msg.Output)
		l.scrollback.Write(msg.Output)
		l.dirty = true
	case wire.TagResized:
		l.ptyCols, l.ptyRows = int(msg.Cols), int(msg.Rows)
		l.screen.Resize(l.ptyRows, l.ptyCols)
		l.scrollback.ResizeX(l.ptyCols)
		l.screen.Write([]byte("\x1b[H\x1b[2J"))
		l.input.ResetScrollOffset()
		l.dirty = true
	case wire.TagExited:
		return int(msg.Code), true
	}
	return 0, false
}

func (l *attachLoop) handleInput(data []byte) (code int, done bool) {
	maxScrollback := l.scrollbackLineCount()
	actions := l.input.Process(data, l.innerRows, l.cols, maxScrollback)
	for _, a := range actions {
		switch a.Kind {
		case input.ActionForward:
			wire.WriteClientMsg(l.conn, wire.NewInput(a.Bytes))
		case input.ActionDetach:
			return 0, true
		case input.ActionKill:
			wire.WriteClientMsg(l.conn, wire.NewKill())
		case input.ActionRedraw:
			l.dirty = true
		}
	}
	return 0, false
}

func (l *attachLoop) onTimeout() {
	maxScrollback := l.scrollbackLineCount()
	for _, a := range l.input.FlushPending(l.innerRows, l.cols, maxScrollback) {
		switch a.Kind {
		case input.ActionForward:
			wire.WriteClientMsg(l.conn, wire.NewInput(a.Bytes))
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
				wire.WriteClientMsg(l.conn, wire.NewResize(uint16(cols), uint16(newInner)))
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

func (l *attachLoop) render(maxScrollback int) {
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
		startRow := l.screen.Cursor.Y - l.ptyRows + 1
		if startRow < 0 {
			startRow = 0
		}
		termio.Render(&buf, frame, l.screen, startRow, true)
	} else {
		bottom := l.scrollback.Cursor.Y
		startRow := bottom - l.ptyRows + 1 - offset
		if startRow < 0 {
			startRow = 0
		}
		termio.Render(&buf, frame, l.scrollback, startRow, false)
	}
	l.tty.Write(buf.Bytes())
}

// scrollbackLineCount reports how many lines of history are available above
// the live view, for clamping the scroll offset and sizing the scrollbar.
func (l *attachLoop) scrollbackLineCount() int {
	n := l.scrollback.Cursor.Y - l.ptyRows + 1
	if n < 0 {
		return 0
	}
	return n
}

func setReadDeadline(conn net.Conn, t time.Time) {
	conn.SetReadDeadline(t)
}
