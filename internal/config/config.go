// Package config loads box's optional YAML settings file: the prefix key,
// the default shell, and per-session command/directory overrides. It is
// consumed only by cmd/box; the core packages never read it directly.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/shlex"
	"gopkg.in/yaml.v3"
)

// Config is the decoded contents of config.yaml. A missing file yields a
// zero-value Config; callers fall back to built-in defaults.
type Config struct {
	PrefixKey    int                      `yaml:"prefix_key"`
	DefaultShell string                   `yaml:"default_shell"`
	Sessions     map[string]SessionConfig `yaml:"sessions"`
}

// SessionConfig overrides the command and working directory for one named
// session.
type SessionConfig struct {
	Command string `yaml:"command"`
	Dir     string `yaml:"dir"`
}

// Dir returns box's configuration directory: $XDG_CONFIG_HOME/box, falling
// back to ~/.config/box.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "box")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "box")
	}
	return filepath.Join(home, ".config", "box")
}

// Load reads config.yaml from Dir(). A missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(filepath.Join(Dir(), "config.yaml"))
}

// LoadFrom reads and decodes the YAML config at path. A missing file yields
// a zero-value Config and no error.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}

// PrefixKeyByte resolves the configured prefix key to a single byte, 0 when
// unset (callers should then fall back to input.DefaultPrefixKey).
func (c *Config) PrefixKeyByte() byte {
	if c == nil || c.PrefixKey <= 0 || c.PrefixKey > 255 {
		return 0
	}
	return byte(c.PrefixKey)
}

// CommandFor resolves the argv vector to run for sessionName: the session's
// own command override if set, else DefaultShell, split with shell-style
// quoting rules into a []string the core accepts directly.
func (c *Config) CommandFor(sessionName string) ([]string, string, error) {
	var commandStr, dir string
	if c != nil {
		if sc, ok := c.Sessions[sessionName]; ok {
			commandStr = sc.Command
			dir = sc.Dir
		}
		if commandStr == "" {
			commandStr = c.DefaultShell
		}
	}
	if commandStr == "" {
		return nil, dir, nil
	}
	argv, err := shlex.Split(commandStr)
	if err != nil {
		return nil, "", fmt.Errorf("config: split command %q: %w", commandStr, err)
	}
	return argv, expandHome(dir), nil
}

func expandHome(dir string) string {
	if dir == "~" || (len(dir) > 1 && dir[:2] == "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return dir
		}
		if dir == "~" {
			return home
		}
		return filepath.Join(home, dir[2:])
	}
	return dir
}
