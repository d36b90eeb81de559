package typescript

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Strob0t/RefactorForge/internal/plugin"
)

func TestParseImports(t *testing.T) {
	content := `import {foo, bar as baz} from './a';
import type {T} from './types';
import * as ns from '../lib/ns';
import def from "./def";
import './side-effect';
export {x} from './re';
const c = require('./cjs');
const d = await import('./dyn');
`
	p := New()
	records := p.ParseImports(content)

	byKind := make(map[plugin.ImportKind]int)
	for _, r := range records {
		byKind[r.Kind]++
	}

	want := map[plugin.ImportKind]int{
		plugin.ImportStatic:     3, // foo/bar, ns, def
		plugin.ImportTypeOnly:   1,
		plugin.ImportSideEffect: 1,
		plugin.ImportReExport:   1,
		plugin.ImportRequire:    1,
		plugin.ImportDynamic:    1,
	}
	for kind, n := range want {
		if byKind[kind] != n {
			t.Errorf("kind %s: got %d, want %d (records: %+v)", kind, byKind[kind], n, records)
		}
	}

	// Named bindings resolve to local names.
	first := records[0]
	if first.ModulePath != "./a" {
		t.Errorf("first module path = %s, want ./a", first.ModulePath)
	}
	if len(first.Names) != 2 || first.Names[0] != "foo" || first.Names[1] != "baz" {
		t.Errorf("first names = %v, want [foo baz]", first.Names)
	}
}

func TestParseImportsRanges(t *testing.T) {
	content := "import {a} from './m';\ncode();\n"
	p := New()
	records := p.ParseImports(content)
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	r := records[0]
	if r.Range.Start.Line != 0 || r.SpecRange.Start.Line != 0 {
		t.Errorf("ranges on wrong line: %+v", r)
	}
	// Specifier range covers "./m" without quotes.
	if r.SpecRange.Start.Character != 17 || r.SpecRange.End.Character != 20 {
		t.Errorf("spec range = %+v, want 17-20", r.SpecRange)
	}
}

func TestLocateModuleFiles(t *testing.T) {
	root := t.TempDir()
	mk := func(rel string) {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	mk("lib/util.ts")
	mk("lib/widgets/index.ts")

	p := New()
	tests := []struct {
		module string
		want   int
	}{
		{"lib/util", 1},    // extension resolution
		{"lib/widgets", 1}, // index resolution
		{"lib/absent", 0},
	}
	for _, tt := range tests {
		got := p.LocateModuleFiles(tt.module, []string{root})
		if len(got) != tt.want {
			t.Errorf("LocateModuleFiles(%s) = %v, want %d hits", tt.module, got, tt.want)
		}
	}
}

func TestFindModuleReferences(t *testing.T) {
	content := "import x from './m';\nconst p = './m';\nconst q = \"other\";\n"
	p := New()
	refs := p.FindModuleReferences(content, "./m")
	if len(refs) != 1 {
		t.Fatalf("expected 1 reference outside imports, got %d", len(refs))
	}
	if refs[0].Start.Line != 1 {
		t.Errorf("reference on line %d, want 1", refs[0].Start.Line)
	}
}
