package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadUserConfigMissingFileReturnsZeroValue(t *testing.T) {
	cfg, err := loadUserConfig(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("loadUserConfig: %v", err)
	}
	if cfg.Name != "" || cfg.Email != "" || cfg.Root != "" {
		t.Fatalf("expected a zero-value config, got %+v", cfg)
	}
}

func TestLoadUserConfigEmptyPath(t *testing.T) {
	cfg, err := loadUserConfig("")
	if err != nil {
		t.Fatalf("loadUserConfig(\"\"): %v", err)
	}
	if cfg == nil {
		t.Fatal("expected a non-nil zero-value config")
	}
}

func TestLoadUserConfigParsesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "name: Jo Example\nemail: jo@example.org\nroot: /srv/ocfl\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := loadUserConfig(path)
	if err != nil {
		t.Fatalf("loadUserConfig: %v", err)
	}
	if cfg.Name != "Jo Example" || cfg.Email != "jo@example.org" || cfg.Root != "/srv/ocfl" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestConfigCmdRunSavesFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	path := defaultConfigPath()
	if path == "" {
		t.Skip("no user config directory available in this environment")
	}
	cmd := &ConfigCmd{Save: true}
	g := &Globals{UserName: "Jo Example", UserEmail: "jo@example.org", Root: "/srv/ocfl"}
	if err := cmd.Run(g); err != nil {
		t.Fatalf("ConfigCmd.Run: %v", err)
	}
	cfg, err := loadUserConfig(path)
	if err != nil {
		t.Fatalf("loadUserConfig after save: %v", err)
	}
	if cfg.Name != g.UserName || cfg.Email != g.UserEmail || cfg.Root != g.Root {
		t.Fatalf("saved config = %+v, want %+v", cfg, g)
	}
}
