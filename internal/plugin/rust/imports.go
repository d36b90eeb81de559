package rust

import (
	"regexp"
	"strings"

	"github.com/Strob0t/RefactorForge/internal/domain/text"
	"github.com/Strob0t/RefactorForge/internal/plugin"
)

var (
	reUse = regexp.MustCompile(`(?m)^[ \t]*(?:pub(?:\([^)]*\))?\s+)?use\s+([A-Za-z_][\w:]*(?:::\{[^}]*\})?[\w:, \t*]*)\s*;`)
	reMod = regexp.MustCompile(`(?m)^[ \t]*(?:pub(?:\([^)]*\))?\s+)?mod\s+([A-Za-z_]\w*)\s*;`)
)

// ParseImports extracts use declarations and mod declarations. A use tree
// `use a::b::{c, d};` yields one record with ModulePath "a::b" and the
// brace-list entries as names.
func (p *Plugin) ParseImports(content string) []plugin.ImportRecord {
	ix := text.NewIndex(content)
	var records []plugin.ImportRecord

	for _, m := range reUse.FindAllStringSubmatchIndex(content, -1) {
		tree := content[m[2]:m[3]]
		modPath, names := splitUseTree(tree)
		records = append(records, plugin.ImportRecord{
			ModulePath: modPath,
			Names:      names,
			Range:      ix.OffsetsToRange(m[0], m[1]),
			SpecRange:  ix.OffsetsToRange(m[2], m[3]),
			Kind:       plugin.ImportUse,
		})
	}

	for _, m := range reMod.FindAllStringSubmatchIndex(content, -1) {
		records = append(records, plugin.ImportRecord{
			ModulePath: content[m[2]:m[3]],
			Range:      ix.OffsetsToRange(m[0], m[1]),
			SpecRange:  ix.OffsetsToRange(m[2], m[3]),
			Kind:       plugin.ImportMod,
		})
	}

	return records
}

// splitUseTree separates a use tree into its path prefix and leaf names:
// "a::b::{c, d as e}" -> ("a::b", [c, e]); "a::b::c" -> ("a::b", [c]).
func splitUseTree(tree string) (string, []string) {
	tree = strings.TrimSpace(tree)

	if i := strings.Index(tree, "::{"); i >= 0 {
		prefix := tree[:i]
		inner := tree[i+3:]
		if j := strings.LastIndex(inner, "}"); j >= 0 {
			inner = inner[:j]
		}
		var names []string
		for _, part := range strings.Split(inner, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if k := strings.Index(part, " as "); k >= 0 {
				part = strings.TrimSpace(part[k+4:])
			}
			names = append(names, part)
		}
		return prefix, names
	}

	if i := strings.LastIndex(tree, "::"); i >= 0 {
		leaf := strings.TrimSpace(tree[i+2:])
		if k := strings.Index(leaf, " as "); k >= 0 {
			leaf = strings.TrimSpace(leaf[k+4:])
		}
		return tree[:i], []string{leaf}
	}

	return tree, nil
}

// RewriteImportsForPathChange handles module renames: when the module name
// derived from oldPath differs from newPath's, mod declarations and use
// paths naming the old module are rewritten. A directory move that keeps
// the crate and module names produces zero changes, since Rust paths are
// name-based, not file-relative.
func (p *Plugin) RewriteImportsForPathChange(content, oldPath, newPath, containingFile string) (string, int) {
	oldName := moduleName(oldPath)
	newName := moduleName(newPath)
	if oldName == newName || oldName == "" {
		return content, 0
	}

	ix := text.NewIndex(content)
	var edits []text.Edit

	for _, rec := range p.ParseImports(content) {
		start, end := ix.RangeToOffsets(rec.SpecRange)
		spec := content[start:end]

		switch rec.Kind {
		case plugin.ImportMod:
			if spec == oldName {
				edits = append(edits, text.Edit{Range: rec.SpecRange, NewText: newName})
			}
		case plugin.ImportUse:
			rewritten, n := renamePathSegment(spec, oldName, newName)
			if n > 0 {
				edits = append(edits, text.Edit{Range: rec.SpecRange, NewText: rewritten})
			}
		}
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

// renamePathSegment replaces whole path segments equal to oldName inside a
// use tree, leaving identifiers that merely contain the name untouched.
func renamePathSegment(tree, oldName, newName string) (string, int) {
	var b strings.Builder
	count := 0
	segStart := 0
	flush := func(end int) {
		seg := tree[segStart:end]
		if strings.TrimSpace(seg) == oldName {
			b.WriteString(strings.Replace(seg, oldName, newName, 1))
			count++
		} else {
			b.WriteString(seg)
		}
	}
	for i := 0; i < len(tree); i++ {
		c := tree[i]
		if c == ':' || c == '{' || c == '}' || c == ',' {
			flush(i)
			b.WriteByte(c)
			segStart = i + 1
		}
	}
	flush(len(tree))
	return b.String(), count
}

// FindModuleReferences finds qualified-path references to the module named
// by modulePath outside use and mod declarations: `name::` segments in code.
func (p *Plugin) FindModuleReferences(content, modulePath string) []text.Range {
	name := moduleName(modulePath)
	if name == "" {
		return nil
	}

	ix := text.NewIndex(content)
	imports := p.ParseImports(content)
	inImport := func(start, end int) bool {
		for _, rec := range imports {
			rs, re := ix.RangeToOffsets(rec.Range)
			if start < re && end > rs {
				return true
			}
		}
		return false
	}

	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `::`)
	var out []text.Range
	for _, m := range re.FindAllStringIndex(content, -1) {
		start, end := m[0], m[0]+len(name)
		if !inImport(start, end) {
			out = append(out, ix.OffsetsToRange(start, end))
		}
	}
	return out
}
