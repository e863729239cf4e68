package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFromValidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yamlSrc := `prefix_key: 16
default_shell: "bash -l"
sessions:
  work:
    command: "tmux new -A -s work"
    dir: "~/projects/work"
`
	if err := os.WriteFile(path, []byte(yamlSrc), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.PrefixKey != 16 {
		t.Errorf("prefix_key = %d, want 16", cfg.PrefixKey)
	}
	if cfg.DefaultShell != "bash -l" {
		t.Errorf("default_shell = %q, want %q", cfg.DefaultShell, "bash -l")
	}
	sc, ok := cfg.Sessions["work"]
	if !ok {
		t.Fatal("expected session \"work\"")
	}
	if sc.Command != "tmux new -A -s work" {
		t.Errorf("command = %q", sc.Command)
	}
}

func TestLoadFromMissingFile(t *testing.T) {
	cfg, err := LoadFrom("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("expected no error for missing file, got: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected non-nil config")
	}
	if cfg.PrefixKeyByte() != 0 {
		t.Errorf("expected zero-value prefix key, got %d", cfg.PrefixKeyByte())
	}
}

func TestPrefixKeyByteRejectsOutOfRange(t *testing.T) {
	cfg := &Config{PrefixKey: 300}
	if got := cfg.PrefixKeyByte(); got != 0 {
		t.Errorf("expected out-of-range prefix key to fall back to 0, got %d", got)
	}
}

func TestCommandForSessionOverride(t *testing.T) {
	cfg := &Config{
		DefaultShell: "sh",
		Sessions: map[string]SessionConfig{
			"work": {Command: "tmux new -A -s work", Dir: "/tmp/work"},
		},
	}
	argv, dir, err := cfg.CommandFor("work")
	if err != nil {
		t.Fatalf("CommandFor: %v", err)
	}
	want := []string{"tmux", "new", "-A", "-s", "work"}
	if len(argv) != len(want) {
		t.Fatalf("argv = %v, want %v", argv, want)
	}
	for i := range want {
		if argv[i] != want[i] {
			t.Fatalf("argv = %v, want %v", argv, want)
		}
	}
	if dir != "/tmp/work" {
		t.Errorf("dir = %q, want /tmp/work", dir)
	}
}

func TestCommandForFallsBackToDefaultShell(t *testing.T) {
	cfg := &Config{DefaultShell: "bash -l"}
	argv, _, err := cfg.CommandFor("unconfigured")
	if err != nil {
		t.Fatalf("CommandFor: %v", err)
	}
	if len(argv) != 2 || argv[0] != "bash" || argv[1] != "-l" {
		t.Fatalf("argv = %v, want [bash -l]", argv)
	}
}

func TestCommandForNilConfig(t *testing.T) {
	var cfg *Config
	argv, dir, err := cfg.CommandFor("anything")
	if err != nil {
		t.Fatalf("CommandFor: %v", err)
	}
	if argv != nil || dir != "" {
		t.Fatalf("expected empty result for nil config, got argv=%v dir=%q", argv, dir)
	}
}

func TestExpandHomeExpandsTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory available")
	}
	if got := expandHome("~/projects/work"); got != filepath.Join(home, "projects", "work") {
		t.Errorf("expandHome = %q, want %q", got, filepath.Join(home, "projects", "work"))
	}
	if got := expandHome("~"); got != home {
		t.Errorf("expandHome(~) = %q, want %q", got, home)
	}
	if got := expandHome("/abs/path"); got != "/abs/path" {
		t.Errorf("expandHome should leave absolute paths alone, got %q", got)
	}
}
