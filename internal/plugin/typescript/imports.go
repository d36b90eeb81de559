package typescript

import (
	"regexp"
	"strings"

	"github.com/Strob0t/RefactorForge/internal/domain/text"
	"github.com/Strob0t/RefactorForge/internal/plugin"
)

// The submatch layout of every pattern ends with (quote)(specifier)(quote)
// so the specifier group index is uniform.
var (
	reImportFrom = regexp.MustCompile(`(?m)^[ \t]*import\s+(type\s+)?([^'";]+?)\s+from\s*(['"])([^'"]+)(['"]);?`)
	reExportFrom = regexp.MustCompile(`(?m)^[ \t]*export\s+(type\s+)?(?:\*(?:\s+as\s+[\w$]+)?|\{[^}]*\})\s*from\s*(['"])([^'"]+)(['"]);?`)
	reSideEffect = regexp.MustCompile(`(?m)^[ \t]*import\s*(['"])([^'"]+)(['"]);?`)
	reRequire    = regexp.MustCompile(`\brequire\(\s*(['"])([^'"]+)(['"])\s*\)`)
	reDynamic    = regexp.MustCompile(`\bimport\(\s*(['"])([^'"]+)(['"])\s*\)`)
)

// ParseImports extracts import statements: static imports, type-only
// imports, re-exports, side-effect imports, require calls, and dynamic
// import() expressions.
func (p *Plugin) ParseImports(content string) []plugin.ImportRecord {
	ix := text.NewIndex(content)
	var records []plugin.ImportRecord
	// Spans already claimed by an earlier pattern; a side-effect match that
	// falls inside an import-from statement is the same statement.
	var claimed [][2]int

	claim := func(start, end int) bool {
		for _, c := range claimed {
			if start < c[1] && end > c[0] {
				return false
			}
		}
		claimed = append(claimed, [2]int{start, end})
		return true
	}

	add := func(kind plugin.ImportKind, m []int, specGroup int, names []string) {
		start, end := m[0], m[1]
		specStart, specEnd := m[2*specGroup], m[2*specGroup+1]
		if !claim(start, end) {
			return
		}
		records = append(records, plugin.ImportRecord{
			ModulePath: content[specStart:specEnd],
			Names:      names,
			Range:      ix.OffsetsToRange(start, end),
			SpecRange:  ix.OffsetsToRange(specStart, specEnd),
			Kind:       kind,
		})
	}

	for _, m := range reImportFrom.FindAllStringSubmatchIndex(content, -1) {
		kind := plugin.ImportStatic
		if m[2] >= 0 {
			kind = plugin.ImportTypeOnly
		}
		names := parseImportClause(content[m[4]:m[5]])
		add(kind, m, 4, names)
	}
	for _, m := range reExportFrom.FindAllStringSubmatchIndex(content, -1) {
		add(plugin.ImportReExport, m, 3, nil)
	}
	for _, m := range reSideEffect.FindAllStringSubmatchIndex(content, -1) {
		add(plugin.ImportSideEffect, m, 2, nil)
	}
	for _, m := range reRequire.FindAllStringSubmatchIndex(content, -1) {
		add(plugin.ImportRequire, m, 2, nil)
	}
	for _, m := range reDynamic.FindAllStringSubmatchIndex(content, -1) {
		add(plugin.ImportDynamic, m, 2, nil)
	}

	return records
}

// parseImportClause extracts bound names from the clause between "import"
// and "from": default imports, namespace imports, and named bindings
// (the local name when aliased).
func parseImportClause(clause string) []string {
	clause = strings.TrimSpace(clause)
	var names []string

	if i := strings.Index(clause, "{"); i >= 0 {
		head := strings.TrimSuffix(strings.TrimSpace(clause[:i]), ",")
		if head != "" {
			names = append(names, strings.TrimSpace(head))
		}
		inner := clause[i+1:]
		if j := strings.Index(inner, "}"); j >= 0 {
			inner = inner[:j]
		}
		for _, part := range strings.Split(inner, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if k := strings.Index(part, " as "); k >= 0 {
				part = strings.TrimSpace(part[k+4:])
			}
			part = strings.TrimPrefix(part, "type ")
			names = append(names, strings.TrimSpace(part))
		}
		return names
	}

	if i := strings.Index(clause, "* as "); i >= 0 {
		names = append(names, strings.TrimSpace(clause[i+5:]))
		return names
	}

	if clause != "" {
		names = append(names, clause)
	}
	return names
}

// FindModuleReferences finds string-literal occurrences of modulePath
// outside import statements. Import statement spans are excluded so callers
// can union this with rewritten imports without double edits.
func (p *Plugin) FindModuleReferences(content, modulePath string) []text.Range {
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

	var out []text.Range
	for _, quote := range []string{`'`, `"`, "`"} {
		needle := quote + modulePath + quote
		for off := 0; ; {
			i := strings.Index(content[off:], needle)
			if i < 0 {
				break
			}
			start := off + i + 1
			end := start + len(modulePath)
			if !inImport(start, end) {
				out = append(out, ix.OffsetsToRange(start, end))
			}
			off = end + 1
		}
	}
	return out
}
