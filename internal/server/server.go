// Package server runs the box daemon: it owns the PTY and the VT screen
// state, accepts Unix socket connections from clients, and keeps every
// attached client's view in sync with the child process and with each
// other.
package server

import (
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yusukeshib/box/internal/rendezvous"
	"github.com/yusukeshib/box/internal/vt"
	"github.com/yusukeshib/box/internal/wire"
)

const (
	defaultRows = 24
	defaultCols = 80

	// clientQueueCapacity bounds how far a slow client can lag before the
	// server gives up broadcasting to it and drops the connection, so one
	// stuck client cannot stall output to the rest.
	clientQueueCapacity = 64

	tickInterval = 100 * time.Millisecond
)

// Config describes the session a server instance serves.
type Config struct {
	SessionName string
	Command     []string
	Dir         string // working directory for the child process, "" for inherited
	ExtraEnv    map[string]string
	Log         *slog.Logger
}

// Run binds the session's socket, starts the child under a PTY, and blocks
// running the event loop until the child exits or the server is asked to
// shut down. It always cleans up the socket and PID file before returning,
// even on error.
func Run(cfg Config) error {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	log := cfg.Log

	rd, err := rendezvous.For(cfg.SessionName)
	if err != nil {
		return err
	}
	if err := rd.Ensure(); err != nil {
		return err
	}
	defer rd.RemoveSock()
	defer rd.RemovePID()

	if err := rd.RemoveSock(); err != nil {
		log.Warn("remove stale socket", "error", err)
	}
	ln, err := net.Listen("unix", rd.Sock())
	if err != nil {
		return err
	}
	defer ln.Close()

	if err := rd.WritePID(); err != nil {
		return err
	}

	if len(cfg.Command) == 0 {
		return errors.New("server: command must not be empty")
	}
	screen, err := vt.Start(cfg.Command[0], cfg.Command[1:], defaultRows, defaultCols, cfg.ExtraEnv)
	if err != nil {
		return err
	}
	if cfg.Dir != "" {
		screen.Cmd.Dir = cfg.Dir
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGTERM)
	signal.Ignore(syscall.SIGHUP)
	defer signal.Stop(shutdown)

	s := &loopState{
		screen:   screen,
		clients:  make(map[uint64]*clientEntry),
		log:      log,
		ptyCols:  defaultCols,
		ptyRows:  defaultRows,
	}

	events := make(chan event, 256)

	go s.readPTY(events)
	go s.acceptLoop(ln, events)
	go func() {
		screen.Wait()
		events <- event{kind: evChildExited}
	}()

	return s.run(events, shutdown)
}

type eventKind int

const (
	evPtyOutput eventKind = iota
	evNewClient
	evClientMsg
	evClientDisconnected
	evChildExited
)

type event struct {
	kind     eventKind
	data     []byte
	conn     net.Conn
	clientID uint64
	msg      wire.ClientMsg
}

type clientEntry struct {
	send       chan []byte
	cols, rows int
	hasResized bool
}

type loopState struct {
	screen       *vt.Screen
	clients      map[uint64]*clientEntry
	nextID       uint64
	ptyCols      int
	ptyRows      int
	log          *slog.Logger
	shuttingDown bool
}

func (s *loopState) readPTY(events chan<- event) {
	buf := make([]byte, 4096)
	for {
		n, err := s.screen.Ptm.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			events <- event{kind: evPtyOutput, data: chunk}
		}
		if err != nil {
			return
		}
	}
}

func (s *loopState) acceptLoop(ln net.Listener, events chan<- event) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		events <- event{kind: evNewClient, conn: conn}
	}
}

func (s *loopState) run(events chan event, shutdown chan os.Signal) error {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case ev := <-events:
			switch ev.kind {
			case evPtyOutput:
				s.handlePtyOutput(ev.data)
			case evNewClient:
				s.handleNewClient(ev.conn, events)
			case evClientMsg:
				s.handleClientMsg(ev.clientID, ev.msg)
			case evClientDisconnected:
				s.removeClient(ev.clientID)
			case evChildExited:
				s.drainAndBroadcastExit(events)
				return nil
			}
		case <-ticker.C:
			continue
		case <-shutdown:
			s.log.Info("received SIGTERM, stopping child")
			s.shuttingDown = true
			if s.screen.Cmd.Process != nil {
				s.screen.Cmd.Process.Kill()
			}
			// The background goroutine blocked in screen.Wait() observes the
			// exit and delivers evChildExited, which drives the rest of
			// shutdown through the normal child-exit path below.
			continue
		}
	}
}

func (s *loopState) handlePtyOutput(data []byte) {
	s.screen.Feed(data)
	frame, err := wire.EncodeServerMsg(wire.NewOutput(data))
	if err != nil {
		s.log.Error("encode output frame", "error", err)
		return
	}
	disconnected := s.broadcast(frame)
	if len(disconnected) > 0 {
		for _, id := range disconnected {
			s.removeClient(id)
		}
		if len(s.clients) > 0 {
			s.recalcSize()
		}
	}
}

// broadcast fans a pre-encoded frame out to every client's non-blocking send
// queue and returns the IDs of clients whose queue was full.
func (s *loopState) broadcast(frame []byte) []uint64 {
	var disconnected []uint64
	for id, c := range s.clients {
		select {
		case c.send <- frame:
		default:
			disconnected = append(disconnected, id)
		}
	}
	return disconnected
}

func (s *loopState) handleNewClient(conn net.Conn, events chan<- event) {
	id := s.nextID
	s.nextID++

	entry := &clientEntry{send: make(chan []byte, clientQueueCapacity)}
	s.clients[id] = entry

	go clientWriter(conn, entry.send)
	go clientReader(conn, id, events)
}

// clientWriterTimeout bounds a single write to a client socket so a stuck
// client cannot block its own writer goroutine forever.
const clientWriterTimeout = 5 * time.Second

func clientWriter(conn net.Conn, send <-chan []byte) {
	for frame := range send {
		conn.SetWriteDeadline(time.Now().Add(clientWriterTimeout))
		if _, err := conn.Write(frame); err != nil {
			return
		}
	}
}

func clientReader(conn net.Conn, id uint64, events chan<- event) {
	for {
		msg, err := wire.ReadClientMsg(conn)
		if err != nil {
			events <- event{kind: evClientDisconnected, clientID: id}
			return
		}
		events <- event{kind: evClientMsg, clientID: id, msg: msg}
	}
}

func (s *loopState) handleClientMsg(id uint64, msg wire.ClientMsg) {
	c, ok := s.clients[id]
	if !ok {
		return
	}
	switch msg.Tag {
	case wire.TagResize:
		if msg.Cols == 0 || msg.Rows == 0 {
			return
		}
		firstResize := !c.hasResized
		c.cols = int(msg.Cols)
		c.rows = int(msg.Rows)
		c.hasResized = true

		if firstResize {
			s.sendEncoded(c, wire.NewResized(uint16(s.ptyCols), uint16(s.ptyRows)))
			if hist := s.screen.History(); len(hist) > 0 {
				s.sendEncoded(c, wire.NewOutput(hist))
			}
			s.sendEncoded(c, wire.NewOutput(s.screen.FormattedScreen()))
		}
		s.recalcSize()

	case wire.TagInput:
		vt.WritePTY(s.screen.Ptm, msg.Input)

	case wire.TagKill:
		if s.screen.Cmd.Process != nil {
			s.screen.Cmd.Process.Kill()
		}
	}
}

func (s *loopState) sendEncoded(c *clientEntry, msg wire.ServerMsg) {
	frame, err := wire.EncodeServerMsg(msg)
	if err != nil {
		s.log.Error("encode message", "error", err)
		return
	}
	select {
	case c.send <- frame:
	default:
	}
}

// recalcSize computes the effective terminal size as the minimum cols and
// minimum rows across every client that has reported at least one resize,
// resizes the PTY and screen if it changed, and broadcasts the new size.
func (s *loopState) recalcSize() {
	minCols, minRows := 0, 0
	any := false
	for _, c := range s.clients {
		if !c.hasResized {
			continue
		}
		if !any || c.cols < minCols {
			minCols = c.cols
		}
		if !any || c.rows < minRows {
			minRows = c.rows
		}
		any = true
	}
	if !any {
		return
	}
	if minCols == s.ptyCols && minRows == s.ptyRows {
		return
	}
	s.ptyCols, s.ptyRows = minCols, minRows
	s.screen.Resize(minRows, minCols)

	frame, err := wire.EncodeServerMsg(wire.NewResized(uint16(minCols), uint16(minRows)))
	if err != nil {
		s.log.Error("encode resized frame", "error", err)
		return
	}
	disconnected := s.broadcast(frame)
	for _, id := range disconnected {
		s.removeClient(id)
	}
}

func (s *loopState) removeClient(id uint64) {
	c, ok := s.clients[id]
	if !ok {
		return
	}
	close(c.send)
	delete(s.clients, id)
}

func (s *loopState) closeAllClients() {
	for id := range s.clients {
		s.removeClient(id)
	}
}

func (s *loopState) drainAndBroadcastExit(events chan event) {
	for {
		select {
		case ev := <-events:
			if ev.kind == evPtyOutput {
				s.handlePtyOutput(ev.data)
				continue
			}
		default:
		}
		break
	}

	// Wait was already called by the goroutine that produced evChildExited,
	// so ExitError is populated by the time we observe the event. A SIGTERM
	// shutdown always reports Exited(0) regardless of the child's actual
	// signal-kill status, since the exit was the server's own doing, not
	// the child's.
	code := s.screen.ExitCode()
	if s.shuttingDown {
		code = 0
	}
	s.broadcastExited(code)
	s.closeAllClients()
}

func (s *loopState) broadcastExited(code int32) {
	frame, err := wire.EncodeServerMsg(wire.NewExited(code))
	if err != nil {
		s.log.Error("encode exited frame", "error", err)
		return
	}
	s.broadcast(frame)
}
