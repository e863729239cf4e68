// Package rendezvous resolves a session name to its filesystem rendezvous
// directory — the socket, lockfile, PID file, and log a server and its
// clients coordinate through — and verifies a recorded PID still belongs to
// a live box server before anything signals it.
package rendezvous

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// nullSignal probes process liveness without actually signaling it.
const nullSignal = syscall.Signal(0)

// ServerMarkerEnv is the sentinel environment variable a spawned server
// process carries, naming the session it serves. The stale-process detector
// checks a candidate PID's /proc/<pid>/environ for this variable before
// sending it a signal, so a recycled PID belonging to an unrelated process is
// not killed; when environ cannot be read it only checks that the process's
// cmdline contains "box".
const ServerMarkerEnv = "BOX_MUX_SESSION"

// Dir is the four well-known paths rooted at one session's rendezvous
// directory.
type Dir struct {
	Root string
}

// For resolves the rendezvous directory for a session name under
// $XDG_STATE_HOME/box/sessions/<name> (or ~/.local/state/box/sessions/<name>
// when XDG_STATE_HOME is unset).
func For(sessionName string) (Dir, error) {
	if sessionName == "" {
		return Dir{}, fmt.Errorf("rendezvous: session name must not be empty")
	}
	root, err := sessionsRoot()
	if err != nil {
		return Dir{}, err
	}
	return Dir{Root: filepath.Join(root, sessionName)}, nil
}

// Ensure creates the rendezvous directory with owner-only permissions if it
// does not already exist, and re-applies 0700 if it does (in case an
// umask or a prior run left it looser).
func (d Dir) Ensure() error {
	if err := os.MkdirAll(d.Root, 0o700); err != nil {
		return fmt.Errorf("rendezvous: create session directory: %w", err)
	}
	if err := os.Chmod(d.Root, 0o700); err != nil {
		return fmt.Errorf("rendezvous: restrict session directory permissions: %w", err)
	}
	return nil
}

func (d Dir) Sock() string      { return filepath.Join(d.Root, "sock") }
func (d Dir) Lock() string      { return filepath.Join(d.Root, "lock") }
func (d Dir) PidFile() string   { return filepath.Join(d.Root, "pid") }
func (d Dir) ServerLog() string { return filepath.Join(d.Root, "server.log") }

// WritePID writes the current process's PID to the PID file.
func (d Dir) WritePID() error {
	pid := strconv.Itoa(os.Getpid())
	if err := os.WriteFile(d.PidFile(), []byte(pid), 0o600); err != nil {
		return fmt.Errorf("rendezvous: write pid file: %w", err)
	}
	return nil
}

// RemovePID removes the PID file, ignoring a not-exist error (clean exit may
// race a concurrent cleanup).
func (d Dir) RemovePID() error {
	if err := os.Remove(d.PidFile()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rendezvous: remove pid file: %w", err)
	}
	return nil
}

// RemoveSock removes the socket file, ignoring a not-exist error.
func (d Dir) RemoveSock() error {
	if err := os.Remove(d.Sock()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rendezvous: remove socket file: %w", err)
	}
	return nil
}

// ReadPID reads the PID recorded in the PID file, or 0 if the file is
// missing or unparsable.
func (d Dir) ReadPID() int {
	raw, err := os.ReadFile(d.PidFile())
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0
	}
	return pid
}

// IsLiveServer reports whether pid names a running process whose
// environment or command line identifies it as a box server for this
// session — guarding against the PID having been recycled by an unrelated
// process since the file was written.
func IsLiveServer(pid int, sessionName string) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix, FindProcess always succeeds; signal 0 probes liveness
	// without actually signaling.
	if err := proc.Signal(nullSignal); err != nil {
		return false
	}
	return processIdentifiesAsServer(pid, sessionName)
}

// Session summarizes one entry returned by List.
type Session struct {
	Name  string
	PID   int
	Alive bool
}

// sessionsRoot returns $XDG_STATE_HOME/box/sessions (or the
// ~/.local/state fallback), the parent of every session's Dir.Root.
func sessionsRoot() (string, error) {
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("rendezvous: resolve home directory: %w", err)
		}
		base = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(base, "box", "sessions"), nil
}

// List enumerates every session directory, reporting each one's recorded PID
// and whether that PID still identifies a live server. A session directory
// left behind by a server that never cleaned up still appears, with
// Alive == false, so callers can offer to remove it.
func List() ([]Session, error) {
	root, err := sessionsRoot()
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("rendezvous: list sessions: %w", err)
	}
	var sessions []Session
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		d := Dir{Root: filepath.Join(root, e.Name())}
		pid := d.ReadPID()
		sessions = append(sessions, Session{
			Name:  e.Name(),
			PID:   pid,
			Alive: pid > 0 && IsLiveServer(pid, e.Name()),
		})
	}
	return sessions, nil
}

// Remove deletes a session's rendezvous directory outright. Callers must
// only call this against a directory whose server is confirmed dead (never
// against a live session, which owns its socket and PID file until it exits).
func (d Dir) Remove() error {
	if err := os.RemoveAll(d.Root); err != nil {
		return fmt.Errorf("rendezvous: remove session directory: %w", err)
	}
	return nil
}

// processIdentifiesAsServer inspects /proc/<pid>/environ for the sentinel
// marker set on a real box server, falling back to /proc/<pid>/cmdline
// containing the literal "box" (without checking the session name) when
// environ cannot be read. Without /proc (e.g. non-Linux) it returns false.
func processIdentifiesAsServer(pid int, sessionName string) bool {
	environPath := fmt.Sprintf("/proc/%d/environ", pid)
	if data, err := os.ReadFile(environPath); err == nil {
		marker := ServerMarkerEnv + "=" + sessionName
		for _, v := range strings.Split(string(data), "\x00") {
			if v == marker {
				return true
			}
		}
		return false
	}
	cmdlinePath := fmt.Sprintf("/proc/%d/cmdline", pid)
	if data, err := os.ReadFile(cmdlinePath); err == nil {
		return strings.Contains(string(data), "box")
	}
	// /proc unavailable: cannot verify, so refuse to treat it as a known
	// server rather than risk signaling an unrelated recycled-PID process.
	return false
}
