package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if cfg.Server.Name != "refactorforge" {
		t.Errorf("server name = %s", cfg.Server.Name)
	}
	if len(cfg.LSP.Servers) == 0 {
		t.Error("defaults carry no language servers")
	}
	if cfg.LSP.DefaultTimeout() != 30*time.Second {
		t.Errorf("default timeout = %s", cfg.LSP.DefaultTimeout())
	}
}

func TestLoadFromMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file must not fail: %v", err)
	}
	if cfg.Server.Name != "refactorforge" {
		t.Errorf("name = %s", cfg.Server.Name)
	}
}

func TestLoadFromYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rf.yaml")
	yaml := `
logging:
  level: debug
workspace:
  root: /repo
lsp:
  default_timeout_ms: 5000
  servers:
    - language: typescript
      extensions: [ts]
      command: [typescript-language-server, --stdio]
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %s", cfg.Logging.Level)
	}
	if cfg.Workspace.Root != "/repo" {
		t.Errorf("root = %s", cfg.Workspace.Root)
	}
	if cfg.LSP.DefaultTimeout() != 5*time.Second {
		t.Errorf("timeout = %s", cfg.LSP.DefaultTimeout())
	}
	if len(cfg.LSP.Servers) != 1 || cfg.LSP.Servers[0].Language != "typescript" {
		t.Errorf("servers = %+v", cfg.LSP.Servers)
	}
}

func TestLoadFromInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rf.yaml")
	if err := os.WriteFile(path, []byte(":\tnot yaml"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	t.Setenv("REFACTORFORGE_LOG_LEVEL", "warn")
	t.Setenv("REFACTORFORGE_LSP_TIMEOUT_MS", "1500")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("level = %s", cfg.Logging.Level)
	}
	if cfg.LSP.DefaultTimeoutMS != 1500 {
		t.Errorf("timeout_ms = %d", cfg.LSP.DefaultTimeoutMS)
	}
}

func TestCLIFlagsWinOverEnv(t *testing.T) {
	t.Setenv("REFACTORFORGE_LOG_LEVEL", "warn")

	flags, err := ParseFlags([]string{"--log-level", "error", "--workspace", "/elsewhere"})
	if err != nil {
		t.Fatal(err)
	}
	cfg, _, err := LoadWithCLI(flags)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("level = %s, want error (flag beats env)", cfg.Logging.Level)
	}
	if cfg.Workspace.Root != "/elsewhere" {
		t.Errorf("root = %s", cfg.Workspace.Root)
	}
}

func TestParseFlagsLeavesUnsetNil(t *testing.T) {
	flags, err := ParseFlags([]string{"--log-level", "debug"})
	if err != nil {
		t.Fatal(err)
	}
	if flags.LogLevel == nil || *flags.LogLevel != "debug" {
		t.Error("explicit flag not captured")
	}
	if flags.Workspace != nil || flags.ConfigPath != nil || flags.HealthAddr != nil {
		t.Error("unset flags must stay nil")
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty server name", func(c *Config) { c.Server.Name = "" }},
		{"empty workspace root", func(c *Config) { c.Workspace.Root = "" }},
		{"zero parallelism", func(c *Config) { c.Workspace.MaxParallel = 0 }},
		{"server without command", func(c *Config) { c.LSP.Servers[0].Command = nil }},
		{"server without language", func(c *Config) { c.LSP.Servers[0].Language = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestValidateOverlappingExtensionsFirstMatchWins(t *testing.T) {
	cfg := Defaults()
	cfg.LSP.Servers = append(cfg.LSP.Servers, cfg.LSP.Servers[0])
	// Duplicate extension claims are tolerated with a warning; first wins.
	if err := cfg.Validate(); err != nil {
		t.Fatalf("overlap must warn, not fail: %v", err)
	}
}

func TestHolderReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rf.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: info\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	holder := NewHolder(cfg, path)

	if err := os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := holder.Reload(); err != nil {
		t.Fatal(err)
	}
	if holder.Get().Logging.Level != "debug" {
		t.Errorf("level after reload = %s", holder.Get().Logging.Level)
	}
}

func TestHolderReloadKeepsOldOnFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rf.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: info\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	holder := NewHolder(cfg, path)

	if err := os.WriteFile(path, []byte(":\tbroken"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := holder.Reload(); err == nil {
		t.Fatal("expected reload failure")
	}
	if holder.Get().Logging.Level != "info" {
		t.Error("failed reload must keep the previous config")
	}
}
