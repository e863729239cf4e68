package client

import (
	"net"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/yusukeshib/box/internal/rendezvous"
)

func TestDialSucceedsAgainstListeningSocket(t *testing.T) {
	dir := t.TempDir()
	sock := filepath.Join(dir, "sock")
	ln, err := net.Listen("unix", sock)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err == nil {
			c.Close()
		}
	}()

	rd := rendezvous.Dir{Root: dir}
	conn, err := dial(rd)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.Close()
}

func TestDialFailsWhenNoListener(t *testing.T) {
	dir := t.TempDir()
	rd := rendezvous.Dir{Root: dir}
	if _, err := dial(rd); err == nil {
		t.Fatal("expected dial to fail with no listener")
	}
}

func TestWaitForSocketPicksUpLateListener(t *testing.T) {
	dir := t.TempDir()
	rd := rendezvous.Dir{Root: dir}
	go func() {
		time.Sleep(150 * time.Millisecond)
		ln, err := net.Listen("unix", rd.Sock())
		if err != nil {
			return
		}
		defer ln.Close()
		c, err := ln.Accept()
		if err == nil {
			c.Close()
		}
	}()

	conn, err := waitForSocket(rd)
	if err != nil {
		t.Fatalf("waitForSocket: %v", err)
	}
	conn.Close()
}

func TestKillStaleServerTerminatesProcess(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot spawn sleep for this test: %v", err)
	}
	pid := cmd.Process.Pid

	killStaleServer(pid)

	if err := cmd.Wait(); err == nil {
		t.Fatal("expected sleep to have been killed, got clean exit")
	}
}

func TestSendKillFailsWhenSessionNotRunning(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	if err := SendKill("no-such-session-should-exist"); err == nil {
		t.Fatal("expected error for a session with no running server")
	}
}
