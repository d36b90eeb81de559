package lsp

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// ServerConfig defines how to launch a language server and which file
// extensions it owns. All servers communicate via stdio.
type ServerConfig struct {
	Language        string         `yaml:"language"`
	Extensions      []string       `yaml:"extensions"` // without leading dot
	Command         []string       `yaml:"command"`    // e.g. ["gopls", "serve"]
	RootDir         string         `yaml:"root_dir,omitempty"`
	RestartInterval time.Duration  `yaml:"restart_interval,omitempty"`
	InitOpts        map[string]any `yaml:"initialization_options,omitempty"`
}

// Key derives the pool key for this configuration. Distinct command lines
// sharing a language produce distinct clients, so the key hashes the full
// argv plus the root.
func (c *ServerConfig) Key() string {
	h := sha256.Sum256([]byte(strings.Join(c.Command, "\x00") + "\x00" + c.RootDir))
	return c.Language + "-" + hex.EncodeToString(h[:8])
}

// Handles reports whether the config claims the given extension
// (without leading dot, case-insensitive).
func (c *ServerConfig) Handles(ext string) bool {
	for _, e := range c.Extensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

// DefaultServers are the built-in configurations used when the workspace
// config file does not define any.
var DefaultServers = []ServerConfig{
	{
		Language:   "typescript",
		Extensions: []string{"ts", "tsx", "js", "jsx", "mjs", "cjs"},
		Command:    []string{"typescript-language-server", "--stdio"},
	},
	{
		Language:   "rust",
		Extensions: []string{"rs"},
		Command:    []string{"rust-analyzer"},
	},
	{
		Language:   "go",
		Extensions: []string{"go"},
		Command:    []string{"gopls", "serve"},
	},
	{
		Language:   "python",
		Extensions: []string{"py", "pyi"},
		Command:    []string{"pyright-langserver", "--stdio"},
	},
}
