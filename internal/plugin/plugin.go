// Package plugin defines the per-language capability bundle the reference
// updater and the AST-fallback planners build on, and the registry that maps
// file extensions to plugins. Registration happens at startup; afterwards
// the registry is read-only.
package plugin

import (
	"github.com/Strob0t/RefactorForge/internal/domain/text"
)

// ImportKind classifies an import statement.
type ImportKind string

const (
	ImportStatic     ImportKind = "static"
	ImportDynamic    ImportKind = "dynamic"
	ImportTypeOnly   ImportKind = "type-only"
	ImportSideEffect ImportKind = "side-effect"
	ImportRequire    ImportKind = "require"
	ImportReExport   ImportKind = "re-export"
	ImportUse        ImportKind = "use"
	ImportMod        ImportKind = "mod"
)

// ImportRecord is one parsed import statement. Range covers the whole
// statement; SpecRange covers just the module specifier (without quotes).
// Ranges are in UTF-16 code units per the text domain.
type ImportRecord struct {
	ModulePath string     `json:"module_path"`
	Names      []string   `json:"imported_names,omitempty"`
	Range      text.Range `json:"range"`
	SpecRange  text.Range `json:"spec_range"`
	Kind       ImportKind `json:"kind"`
}

// Capabilities advertises which operation groups a plugin implements.
type Capabilities struct {
	Imports   bool
	Workspace bool
}

// Plugin is the per-language capability bundle. One plugin value per
// language; implementations are stateless and safe for concurrent use.
type Plugin interface {
	// Language returns the language identifier (matches server configs).
	Language() string

	// Extensions returns the owned file extensions, without leading dot.
	Extensions() []string

	// Capabilities reports which operation groups are implemented.
	Capabilities() Capabilities

	// ParseImports extracts every import statement from content.
	ParseImports(content string) []ImportRecord

	// RewriteImportsForPathChange rewrites any import in content whose
	// resolved target is oldPath so that it resolves to newPath from
	// containingFile, preserving quote and slash style. Returns the new
	// content and the number of imports changed; zero changes returns
	// content unmodified.
	RewriteImportsForPathChange(content, oldPath, newPath, containingFile string) (string, int)

	// RebaseImports recomputes the relative imports of a file that itself
	// moves from oldFile to newFile, keeping their targets fixed.
	RebaseImports(content, oldFile, newFile string) (string, int)

	// LocateModuleFiles resolves a module specifier to candidate files under
	// the given roots (e.g. a/b -> a/b.ts, a/b/index.ts; Rust a/b -> a/b.rs,
	// a/b/mod.rs). Only existing files are returned.
	LocateModuleFiles(modulePath string, roots []string) []string

	// FindModuleReferences finds references to modulePath outside import
	// statements: qualified paths in code and, for callers that ask,
	// string-literal occurrences.
	FindModuleReferences(content, modulePath string) []text.Range

	// ManifestFilenames returns the names of the language's manifest files
	// (package.json, Cargo.toml).
	ManifestFilenames() []string

	// RewriteManifest updates a manifest at manifestPath for a move of
	// oldPath to newPath (either may be a file or a directory). Returns the
	// new manifest content and the number of entries changed.
	RewriteManifest(content, manifestPath, oldPath, newPath string) (string, int, error)
}

// Registry maps file extensions to plugins. Lookups are O(1).
type Registry struct {
	byExt   map[string]Plugin
	plugins []Plugin
}

// NewRegistry creates a registry over the given plugins. Later plugins do
// not override extensions already claimed by earlier ones.
func NewRegistry(plugins ...Plugin) *Registry {
	r := &Registry{byExt: make(map[string]Plugin)}
	for _, p := range plugins {
		r.plugins = append(r.plugins, p)
		for _, ext := range p.Extensions() {
			if _, taken := r.byExt[ext]; !taken {
				r.byExt[ext] = p
			}
		}
	}
	return r
}

// ForExtension returns the plugin owning ext (without leading dot).
func (r *Registry) ForExtension(ext string) (Plugin, bool) {
	p, ok := r.byExt[ext]
	return p, ok
}

// All returns every registered plugin in registration order.
func (r *Registry) All() []Plugin { return r.plugins }

// Extensions returns every registered extension.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	return exts
}
