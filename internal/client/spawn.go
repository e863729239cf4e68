// Package client implements the attaching side of box: the race-free
// spawn-or-connect protocol, the attach loop that renders a remote session
// locally, and a standalone mode that runs without a server at all.
package client

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/yusukeshib/box/internal/rendezvous"
	"github.com/yusukeshib/box/internal/wire"
)

// ServerMarkerEnv is set on a spawned server process so it can be told apart
// from an ordinary re-exec of the same binary, and so a later attach can
// verify a PID found on disk is actually one of ours.
const ServerMarkerEnv = rendezvous.ServerMarkerEnv

const (
	connectTimeout    = 500 * time.Millisecond
	spawnPollInterval = 100 * time.Millisecond
	spawnPollDeadline = 3 * time.Second
	killWaitDeadline  = 5 * time.Second
)

// SpawnConfig carries what's needed to bring a dormant session's server into
// existence.
type SpawnConfig struct {
	SessionName string
	// ServerArgs are the arguments this same executable must be re-invoked
	// with to run as the server for SessionName (e.g. ["_server",
	// "--session", name]).
	ServerArgs []string
}

// Connect implements the race-free spawn protocol: it returns a live
// connection to SessionName's server, spawning the server itself if no
// server was already listening.
func Connect(cfg SpawnConfig) (net.Conn, error) {
	rd, err := rendezvous.For(cfg.SessionName)
	if err != nil {
		return nil, err
	}

	if conn, err := dial(rd); err == nil {
		return conn, nil
	}

	if err := rd.Ensure(); err != nil {
		return nil, err
	}

	fl := flock.New(rd.Lock())
	if err := fl.Lock(); err != nil {
		return nil, fmt.Errorf("client: acquire spawn lock: %w", err)
	}
	defer fl.Unlock()

	// Another caller may have spawned the server while we waited for the lock.
	if conn, err := dial(rd); err == nil {
		return conn, nil
	}

	if pid := rd.ReadPID(); pid > 0 && rendezvous.IsLiveServer(pid, cfg.SessionName) {
		killStaleServer(pid)
	}
	if err := rd.RemoveSock(); err != nil {
		return nil, err
	}

	if err := spawnServer(rd, cfg); err != nil {
		return nil, err
	}

	conn, err := waitForSocket(rd)
	if err != nil {
		logTail, _ := os.ReadFile(rd.ServerLog())
		return nil, fmt.Errorf("client: server did not start in time: %w\n%s", err, logTail)
	}
	return conn, nil
}

func dial(rd rendezvous.Dir) (net.Conn, error) {
	return net.DialTimeout("unix", rd.Sock(), connectTimeout)
}

func killStaleServer(pid int) {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return
	}
	proc.Signal(syscall.SIGKILL)

	deadline := time.Now().Add(killWaitDeadline)
	for time.Now().Before(deadline) {
		if proc.Signal(syscall.Signal(0)) != nil {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func spawnServer(rd rendezvous.Dir, cfg SpawnConfig) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("client: find executable: %w", err)
	}

	cmd := exec.Command(exe, cfg.ServerArgs...)
	cmd.Env = append(os.Environ(), ServerMarkerEnv+"="+cfg.SessionName)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	devNull, err := os.Open(os.DevNull)
	if err != nil {
		return fmt.Errorf("client: open /dev/null: %w", err)
	}
	defer devNull.Close()
	cmd.Stdin = devNull
	cmd.Stdout = devNull

	logFile, err := os.OpenFile(rd.ServerLog(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("client: open server log: %w", err)
	}
	defer logFile.Close()
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("client: start server: %w", err)
	}
	go cmd.Wait()
	return nil
}

func waitForSocket(rd rendezvous.Dir) (net.Conn, error) {
	deadline := time.Now().Add(spawnPollDeadline)
	for time.Now().Before(deadline) {
		if conn, err := dial(rd); err == nil {
			return conn, nil
		}
		time.Sleep(spawnPollInterval)
	}
	return nil, fmt.Errorf("timed out waiting for %s", rd.Sock())
}

// SendKill connects to a running session and sends Kill, waiting up to 5
// seconds for the socket to disappear before giving up.
func SendKill(sessionName string) error {
	rd, err := rendezvous.For(sessionName)
	if err != nil {
		return err
	}
	conn, err := dial(rd)
	if err != nil {
		return fmt.Errorf("client: session %q is not running", sessionName)
	}
	defer conn.Close()

	if err := writeKill(conn); err != nil {
		return err
	}

	deadline := time.Now().Add(killWaitDeadline)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(rd.Sock()); os.IsNotExist(err) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return nil
}

func writeKill(conn net.Conn) error {
	return wire.WriteClientMsg(conn, wire.NewKill())
}
