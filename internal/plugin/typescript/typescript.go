// Package typescript implements the language plugin for TypeScript and
// JavaScript sources: import parsing, import rewriting on file moves,
// module file resolution, and package.json manifest updates.
package typescript

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/Strob0t/RefactorForge/internal/plugin"
)

// extensions a module specifier may omit, in resolution order.
var resolveExts = []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs"}

// Plugin implements plugin.Plugin for TypeScript and JavaScript.
type Plugin struct{}

// New returns the TS+JS plugin.
func New() *Plugin { return &Plugin{} }

func (p *Plugin) Language() string { return "typescript" }

func (p *Plugin) Extensions() []string {
	return []string{"ts", "tsx", "js", "jsx", "mjs", "cjs"}
}

func (p *Plugin) Capabilities() plugin.Capabilities {
	return plugin.Capabilities{Imports: true, Workspace: true}
}

func (p *Plugin) ManifestFilenames() []string { return []string{"package.json"} }

// LocateModuleFiles resolves a module specifier to files on disk: a/b
// matches a/b.<ext> and a/b/index.<ext>. Specifiers carrying an extension
// match that file directly.
func (p *Plugin) LocateModuleFiles(modulePath string, roots []string) []string {
	var out []string
	for _, root := range roots {
		base := filepath.Join(root, filepath.FromSlash(modulePath))
		for _, cand := range moduleCandidates(base) {
			if fi, err := os.Stat(cand); err == nil && !fi.IsDir() {
				out = append(out, cand)
			}
		}
	}
	return out
}

// moduleCandidates lists the files a resolved specifier base may denote.
func moduleCandidates(base string) []string {
	var cands []string
	if hasSourceExt(base) {
		cands = append(cands, base)
	}
	for _, ext := range resolveExts {
		cands = append(cands, base+ext)
	}
	for _, ext := range resolveExts {
		cands = append(cands, filepath.Join(base, "index"+ext))
	}
	return cands
}

func hasSourceExt(path string) bool {
	ext := filepath.Ext(path)
	for _, e := range resolveExts {
		if ext == e {
			return true
		}
	}
	return false
}

// specResolvesTo reports whether a relative specifier, resolved from
// fromDir, denotes target (directly, via an omitted extension, or via an
// index file).
func specResolvesTo(spec, fromDir, target string) bool {
	if !isRelative(spec) {
		return false
	}
	resolved := filepath.Clean(filepath.Join(fromDir, filepath.FromSlash(spec)))
	target = filepath.Clean(target)
	if resolved == target {
		return true
	}
	if !hasSourceExt(resolved) {
		for _, ext := range resolveExts {
			if resolved+ext == target {
				return true
			}
		}
		for _, ext := range resolveExts {
			if filepath.Join(resolved, "index"+ext) == target {
				return true
			}
		}
	}
	return false
}

// specTargetsUnder reports whether a relative specifier resolves to a path
// inside dir, returning the resolved path.
func specTargetsUnder(spec, fromDir, dir string) (string, bool) {
	if !isRelative(spec) {
		return "", false
	}
	resolved := filepath.Clean(filepath.Join(fromDir, filepath.FromSlash(spec)))
	dir = filepath.Clean(dir)
	if resolved == dir || strings.HasPrefix(resolved, dir+string(filepath.Separator)) {
		return resolved, true
	}
	return "", false
}

func isRelative(spec string) bool {
	return strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../") || spec == "." || spec == ".."
}

// relativeSpecifier builds the import specifier for target as seen from
// fromDir. extensionless controls whether the source extension (or /index)
// is stripped, matching the style of the import being rewritten. The result
// always uses forward slashes and a leading ./ for same-or-below paths.
func relativeSpecifier(fromDir, target string, extensionless bool) string {
	rel, err := filepath.Rel(fromDir, target)
	if err != nil {
		rel = target
	}
	rel = filepath.ToSlash(rel)
	if extensionless {
		for _, ext := range resolveExts {
			if strings.HasSuffix(rel, "/index"+ext) {
				rel = strings.TrimSuffix(rel, "/index"+ext)
				break
			}
			if strings.HasSuffix(rel, ext) {
				rel = strings.TrimSuffix(rel, ext)
				break
			}
		}
	}
	if !strings.HasPrefix(rel, ".") {
		rel = "./" + rel
	}
	return rel
}
