package workspace

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWalkFiltersByExtension(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.ts"), "a")
	writeFile(t, filepath.Join(root, "b.rs"), "b")
	writeFile(t, filepath.Join(root, "sub", "c.ts"), "c")
	writeFile(t, filepath.Join(root, "d.txt"), "d")

	s, err := NewScanner(root)
	if err != nil {
		t.Fatal(err)
	}

	var got []string
	err = s.Walk([]string{"ts"}, func(path string) error {
		rel, _ := filepath.Rel(root, path)
		got = append(got, rel)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(got)
	want := []string{"a.ts", filepath.Join("sub", "c.ts")}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Walk = %v, want %v", got, want)
	}
}

func TestWalkHonoursIgnoreRules(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".gitignore"), "dist/\n*.gen.ts\n")
	writeFile(t, filepath.Join(root, "keep.ts"), "k")
	writeFile(t, filepath.Join(root, "skip.gen.ts"), "s")
	writeFile(t, filepath.Join(root, "dist", "out.ts"), "o")
	writeFile(t, filepath.Join(root, "node_modules", "dep", "index.ts"), "n")

	s, err := NewScanner(root)
	if err != nil {
		t.Fatal(err)
	}

	var got []string
	if err := s.Walk([]string{"ts"}, func(path string) error {
		got = append(got, filepath.Base(path))
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "keep.ts" {
		t.Errorf("Walk = %v, want [keep.ts]", got)
	}
}

func TestWalkFilenames(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Cargo.toml"), "")
	writeFile(t, filepath.Join(root, "crates", "a", "Cargo.toml"), "")
	writeFile(t, filepath.Join(root, "crates", "a", "src", "main.rs"), "")

	s, err := NewScanner(root)
	if err != nil {
		t.Fatal(err)
	}

	count := 0
	if err := s.WalkFilenames([]string{"Cargo.toml"}, func(string) error {
		count++
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("found %d manifests, want 2", count)
	}
}

func TestForEachParallelBounded(t *testing.T) {
	paths := make([]string, 50)
	for i := range paths {
		paths[i] = "p"
	}

	var inFlight, peak atomic.Int64
	err := ForEachParallel(context.Background(), paths, 4, func(context.Context, string) error {
		cur := inFlight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		defer inFlight.Add(-1)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if peak.Load() > 4 {
		t.Errorf("concurrency peak %d exceeded bound 4", peak.Load())
	}
}

func TestIgnoreRulesMatch(t *testing.T) {
	ig := &IgnoreRules{patterns: []string{"build/", "*.log", "vendor"}}
	tests := []struct {
		rel   string
		isDir bool
		want  bool
	}{
		{"build", true, true},
		{"src/app.log", false, true},
		{"vendor", true, true},
		{"src/main.ts", false, false},
		{"node_modules", true, true}, // always ignored
	}
	for _, tt := range tests {
		if got := ig.Match(tt.rel, tt.isDir); got != tt.want {
			t.Errorf("Match(%s, %v) = %v, want %v", tt.rel, tt.isDir, got, tt.want)
		}
	}
}
