package cmd

import (
	"os"
	"path/filepath"

	"github.com/yusukeshib/box/internal/config"
)

// loadConfig reads the optional config file, never treating its absence or
// any other load failure as fatal to the caller's own error path — callers
// that need to surface a parse error do so themselves.
func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		return &config.Config{}
	}
	return cfg
}

// projectName derives the optional project label shown in the header from
// the current working directory's base name.
func projectName() string {
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	base := filepath.Base(wd)
	if base == "." || base == "/" {
		return ""
	}
	return base
}

// defaultShellCommand returns the invoking user's login shell as a
// single-element argv, falling back to /bin/sh.
func defaultShellCommand() []string {
	if shell := os.Getenv("SHELL"); shell != "" {
		return []string{shell}
	}
	return []string{"/bin/sh"}
}

// resolveCommand picks the argv to run for sessionName: explicit CLI
// arguments win, then the config file's per-session or default-shell entry,
// then the user's login shell.
func resolveCommand(cfg *config.Config, sessionName string, cliArgs []string) ([]string, string, error) {
	if len(cliArgs) > 0 {
		return cliArgs, "", nil
	}
	argv, dir, err := cfg.CommandFor(sessionName)
	if err != nil {
		return nil, "", err
	}
	if len(argv) > 0 {
		return argv, dir, nil
	}
	return defaultShellCommand(), "", nil
}
