// Package rust implements the language plugin for Rust sources: use-tree
// and mod-declaration parsing, module renames, module file resolution
// (mod.rs and named files), and Cargo.toml path-dependency updates.
package rust

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/Strob0t/RefactorForge/internal/plugin"
)

// Plugin implements plugin.Plugin for Rust.
type Plugin struct{}

// New returns the Rust plugin.
func New() *Plugin { return &Plugin{} }

func (p *Plugin) Language() string { return "rust" }

func (p *Plugin) Extensions() []string { return []string{"rs"} }

func (p *Plugin) Capabilities() plugin.Capabilities {
	return plugin.Capabilities{Imports: true, Workspace: true}
}

func (p *Plugin) ManifestFilenames() []string { return []string{"Cargo.toml"} }

// LocateModuleFiles resolves a module path to candidate files: a/b matches
// a/b.rs and a/b/mod.rs. Both layouts must be detected when a module
// directory moves.
func (p *Plugin) LocateModuleFiles(modulePath string, roots []string) []string {
	rel := filepath.FromSlash(strings.ReplaceAll(modulePath, "::", "/"))
	var out []string
	for _, root := range roots {
		base := filepath.Join(root, rel)
		for _, cand := range []string{base + ".rs", filepath.Join(base, "mod.rs")} {
			if fi, err := os.Stat(cand); err == nil && !fi.IsDir() {
				out = append(out, cand)
			}
		}
	}
	return out
}

// moduleName derives the Rust module name a file or directory path denotes:
// src/foo.rs and src/foo/mod.rs are both module foo; a directory is its own
// name.
func moduleName(path string) string {
	base := filepath.Base(path)
	if base == "mod.rs" {
		return filepath.Base(filepath.Dir(path))
	}
	return strings.TrimSuffix(base, ".rs")
}

// RebaseImports is a no-op for Rust: use paths are module-relative, not
// file-relative, so moving a file does not invalidate its own imports.
func (p *Plugin) RebaseImports(content, oldFile, newFile string) (string, int) {
	return content, 0
}
