package typescript

import (
	"path/filepath"
	"strings"

	"github.com/Strob0t/RefactorForge/internal/domain/text"
)

// RewriteImportsForPathChange rewrites every import in content whose target
// resolves to oldPath (a file) or into oldPath (a directory) so that it
// resolves to the corresponding location under newPath, as seen from
// containingFile. Quote style and the extensionless form of the original
// specifier are preserved. Unrelated text is never touched.
func (p *Plugin) RewriteImportsForPathChange(content, oldPath, newPath, containingFile string) (string, int) {
	fromDir := filepath.Dir(containingFile)
	var edits []text.Edit

	for _, rec := range p.ParseImports(content) {
		spec := rec.ModulePath
		if !isRelative(spec) {
			continue
		}

		var target string
		switch {
		case specResolvesTo(spec, fromDir, oldPath):
			target = newPath
		default:
			resolved, under := specTargetsUnder(spec, fromDir, oldPath)
			if !under {
				continue
			}
			rel, err := filepath.Rel(oldPath, resolved)
			if err != nil {
				continue
			}
			target = filepath.Join(newPath, rel)
		}

		extensionless := !hasSourceExt(filepath.FromSlash(spec))
		newSpec := relativeSpecifier(fromDir, target, extensionless)
		if newSpec == spec {
			continue
		}
		edits = append(edits, text.Edit{Range: rec.SpecRange, NewText: newSpec})
	}

	if len(edits) == 0 {
		return content, 0
	}
	out, err := text.ApplyEdits(content, edits)
	if err != nil {
		return content, 0
	}
	return out, len(edits)
}

// RebaseImports recomputes the relative imports of a file that moves from
// oldFile to newFile so they keep pointing at their original targets.
func (p *Plugin) RebaseImports(content, oldFile, newFile string) (string, int) {
	oldDir := filepath.Dir(oldFile)
	newDir := filepath.Dir(newFile)
	if oldDir == newDir {
		return content, 0
	}

	var edits []text.Edit
	for _, rec := range p.ParseImports(content) {
		spec := rec.ModulePath
		if !isRelative(spec) {
			continue
		}
		target := filepath.Clean(filepath.Join(oldDir, filepath.FromSlash(spec)))
		extensionless := !hasSourceExt(filepath.FromSlash(spec))
		newSpec := relativeSpecifier(newDir, target, extensionless)
		// An extensionless original stays extensionless; reattach nothing.
		if !extensionless && !hasSourceExt(filepath.FromSlash(newSpec)) {
			newSpec += filepath.Ext(spec)
		}
		if newSpec == spec {
			continue
		}
		edits = append(edits, text.Edit{Range: rec.SpecRange, NewText: newSpec})
	}

	if len(edits) == 0 {
		return content, 0
	}
	out, err := text.ApplyEdits(content, edits)
	if err != nil {
		return content, 0
	}
	return out, len(edits)
}

// sameSpec reports whether two specifiers denote the same module, ignoring
// the optional ./ prefix.
func sameSpec(a, b string) bool {
	return strings.TrimPrefix(a, "./") == strings.TrimPrefix(b, "./")
}
