package rendezvous

import (
	"os"
	"path/filepath"
	"testing"
)

func TestForUsesXDGStateHome(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/tmp/xdgstate")
	d, err := For("mysession")
	if err != nil {
		t.Fatalf("For: %v", err)
	}
	want := filepath.Join("/tmp/xdgstate", "box", "sessions", "mysession")
	if d.Root != want {
		t.Fatalf("got %q want %q", d.Root, want)
	}
}

func TestForRejectsEmptyName(t *testing.T) {
	if _, err := For(""); err == nil {
		t.Fatal("expected error for empty session name")
	}
}

func TestEnsureCreatesPrivateDirectory(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_STATE_HOME", tmp)
	d, err := For("work")
	if err != nil {
		t.Fatalf("For: %v", err)
	}
	if err := d.Ensure(); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	info, err := os.Stat(d.Root)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o700 {
		t.Fatalf("expected mode 0700, got %v", info.Mode().Perm())
	}
}

func TestPathAccessors(t *testing.T) {
	d := Dir{Root: "/x/y"}
	if d.Sock() != "/x/y/sock" {
		t.Fatalf("unexpected sock path: %s", d.Sock())
	}
	if d.Lock() != "/x/y/lock" {
		t.Fatalf("unexpected lock path: %s", d.Lock())
	}
	if d.PidFile() != "/x/y/pid" {
		t.Fatalf("unexpected pid path: %s", d.PidFile())
	}
	if d.ServerLog() != "/x/y/server.log" {
		t.Fatalf("unexpected log path: %s", d.ServerLog())
	}
}

func TestWriteReadRemovePID(t *testing.T) {
	tmp := t.TempDir()
	d := Dir{Root: tmp}
	if err := d.WritePID(); err != nil {
		t.Fatalf("WritePID: %v", err)
	}
	if got := d.ReadPID(); got != os.Getpid() {
		t.Fatalf("ReadPID: got %d want %d", got, os.Getpid())
	}
	if err := d.RemovePID(); err != nil {
		t.Fatalf("RemovePID: %v", err)
	}
	if got := d.ReadPID(); got != 0 {
		t.Fatalf("expected 0 after removal, got %d", got)
	}
	// Removing again must be a no-op, not an error.
	if err := d.RemovePID(); err != nil {
		t.Fatalf("RemovePID (already gone): %v", err)
	}
}

func TestReadPIDMissingFile(t *testing.T) {
	d := Dir{Root: t.TempDir()}
	if got := d.ReadPID(); got != 0 {
		t.Fatalf("expected 0 for missing pid file, got %d", got)
	}
}

func TestIsLiveServerRejectsNonPositivePID(t *testing.T) {
	if IsLiveServer(0, "anything") {
		t.Fatal("pid 0 must never be treated as live")
	}
	if IsLiveServer(-5, "anything") {
		t.Fatal("negative pid must never be treated as live")
	}
}

func TestIsLiveServerRejectsUnmarkedProcess(t *testing.T) {
	// The test process itself is alive but was not spawned with the box
	// server marker, so it must not be mistaken for one.
	if IsLiveServer(os.Getpid(), "whatever-session") {
		t.Fatal("expected current test process to not identify as a box server")
	}
}
