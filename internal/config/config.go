// Package config provides hierarchical configuration loading for
// RefactorForge. Precedence: defaults < YAML file < environment variables <
// CLI flags.
package config

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	lspDomain "github.com/Strob0t/RefactorForge/internal/domain/lsp"
)

// Holder provides thread-safe access to a Config with hot-reload support.
type Holder struct {
	mu       sync.RWMutex
	cfg      Config
	yamlPath string
}

// NewHolder creates a Holder from an initial Config and the YAML path used
// for reloading.
func NewHolder(cfg *Config, yamlPath string) *Holder {
	return &Holder{cfg: *cfg, yamlPath: yamlPath}
}

// Get returns a pointer to the Config. Callers must not store the pointer
// long-term; read values immediately and release.
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return &h.cfg
}

// Reload re-reads the YAML file and environment variables, validates, and
// swaps the config in-place. If validation fails, the old config is
// preserved. Server definitions cannot be hot-swapped onto running clients;
// changed definitions take effect on the next spawn.
func (h *Holder) Reload() error {
	newCfg, err := LoadFrom(h.yamlPath)
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if newCfg.Server.HealthAddr != h.cfg.Server.HealthAddr {
		slog.Warn("config reload: server.health_addr changed but requires restart",
			"old", h.cfg.Server.HealthAddr, "new", newCfg.Server.HealthAddr)
	}
	if len(newCfg.LSP.Servers) != len(h.cfg.LSP.Servers) {
		slog.Info("config reload: language server set changed; applies to new spawns",
			"old", len(h.cfg.LSP.Servers), "new", len(newCfg.LSP.Servers))
	}
	if newCfg.Logging.Level != h.cfg.Logging.Level {
		slog.Info("config reload: logging level changed",
			"old", h.cfg.Logging.Level, "new", newCfg.Logging.Level)
	}

	h.cfg = *newCfg
	return nil
}

// Config holds all runtime configuration.
type Config struct {
	Server    Server    `yaml:"server"`
	Logging   Logging   `yaml:"logging"`
	LSP       LSP       `yaml:"lsp"`
	Workspace Workspace `yaml:"workspace"`
	Cache     Cache     `yaml:"cache"`
	OTEL      OTEL      `yaml:"otel"`
}

// Server holds the MCP identity and the optional health HTTP endpoint.
type Server struct {
	Name       string `yaml:"name"`        // MCP server name
	Version    string `yaml:"version"`     // MCP server version
	HealthAddr string `yaml:"health_addr"` // empty disables the HTTP endpoint
}

// Logging holds log output configuration.
type Logging struct {
	Level   string `yaml:"level"`   // debug, info, warn, error
	Service string `yaml:"service"` // service attribute on every record
	Async   bool   `yaml:"async"`   // buffered async handler
}

// LSP holds the language server pool configuration.
type LSP struct {
	Servers          []lspDomain.ServerConfig `yaml:"servers"`
	DefaultTimeoutMS int                      `yaml:"default_timeout_ms"`
	EnablePreload    bool                     `yaml:"enable_preload"`
	SweepInterval    time.Duration            `yaml:"sweep_interval"`
}

// DefaultTimeout returns the request timeout as a duration.
func (l *LSP) DefaultTimeout() time.Duration {
	if l.DefaultTimeoutMS <= 0 {
		return 30 * time.Second
	}
	return time.Duration(l.DefaultTimeoutMS) * time.Millisecond
}

// Workspace holds the workspace root and scan bounds.
type Workspace struct {
	Root        string `yaml:"root"`
	MaxParallel int64  `yaml:"max_parallel"` // validated as positive; the reference updater's fan-out is fixed at 8 and does not read it
}

// Cache holds the in-process file cache configuration.
type Cache struct {
	Enabled      bool  `yaml:"enabled"`
	MaxCostBytes int64 `yaml:"max_cost_bytes"`
}

// OTEL holds OpenTelemetry exporter configuration.
type OTEL struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	Insecure    bool    `yaml:"insecure"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Server: Server{
			Name:    "refactorforge",
			Version: "0.1.0",
		},
		Logging: Logging{
			Level:   "info",
			Service: "refactorforge",
		},
		LSP: LSP{
			Servers:          append([]lspDomain.ServerConfig(nil), lspDomain.DefaultServers...),
			DefaultTimeoutMS: 30000,
			SweepInterval:    30 * time.Second,
		},
		Workspace: Workspace{
			Root:        ".",
			MaxParallel: 8,
		},
		Cache: Cache{
			Enabled:      true,
			MaxCostBytes: 64 << 20,
		},
		OTEL: OTEL{
			ServiceName: "refactorforge",
			SampleRate:  1.0,
		},
	}
}

// Validate checks invariants the loader enforces. An extension claimed by
// more than one server definition is not an error: the first definition
// claiming it wins and every later claim is logged as a warning.
func (c *Config) Validate() error {
	if c.Server.Name == "" {
		return fmt.Errorf("server.name must not be empty")
	}
	if c.Workspace.Root == "" {
		return fmt.Errorf("workspace.root must not be empty")
	}
	if c.Workspace.MaxParallel < 1 {
		return fmt.Errorf("workspace.max_parallel must be positive")
	}

	owner := make(map[string]string)
	for i := range c.LSP.Servers {
		srv := &c.LSP.Servers[i]
		if srv.Language == "" {
			return fmt.Errorf("lsp.servers[%d]: language must not be empty", i)
		}
		if len(srv.Command) == 0 {
			return fmt.Errorf("lsp.servers[%d] (%s): command must not be empty", i, srv.Language)
		}
		for _, ext := range srv.Extensions {
			if prev, taken := owner[ext]; taken {
				slog.Warn("config: extension claimed twice, first match wins",
					"extension", ext, "first", prev, "ignored", srv.Language)
				continue
			}
			owner[ext] = srv.Language
		}
	}
	return nil
}
