package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
)

// userConfig holds CLI defaults a user would otherwise have to repeat as
// flags or environment variables on every invocation (spec.md §5 "CLI
// configuration"), grounded on the teacher's gocfl config command.
type userConfig struct {
	Name  string `yaml:"name,omitempty"`
	Email string `yaml:"email,omitempty"`
	Root  string `yaml:"root,omitempty"`
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "ocfl", "config.yaml")
}

// loadUserConfig reads path, returning a zero-value config (not an error)
// when the file doesn't exist yet.
func loadUserConfig(path string) (*userConfig, error) {
	cfg := &userConfig{}
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("opening config file %s: %w", path, err)
	}
	defer f.Close()
	if err := yaml.NewDecoder(f).Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// --- config ---

type ConfigCmd struct {
	Save bool `help:"Write the current globals back to the config file."`
}

func (c *ConfigCmd) Run(g *Globals) error {
	cfg := &userConfig{Name: g.UserName, Email: g.UserEmail, Root: g.Root}
	w := io.Writer(os.Stdout)
	if c.Save {
		path := defaultConfigPath()
		if path == "" {
			return fmt.Errorf("could not determine a user config directory")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		w = io.MultiWriter(os.Stdout, f)
	}
	return yaml.NewEncoder(w).Encode(cfg)
}
