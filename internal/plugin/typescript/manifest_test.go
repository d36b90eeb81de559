package typescript

import (
	"strings"
	"testing"

	"github.com/tidwall/gjson"
)

func TestRewriteManifestEntryPoints(t *testing.T) {
	manifest := `{
  "name": "pkg",
  "main": "./src/index.ts",
  "types": "src/index.ts",
  "exports": {
    ".": "./src/index.ts",
    "./util": "./src/util.ts"
  }
}`
	p := New()
	out, n, err := p.RewriteManifest(manifest, "/pkg/package.json", "/pkg/src/index.ts", "/pkg/lib/index.ts")
	if err != nil {
		t.Fatalf("RewriteManifest: %v", err)
	}
	if n != 3 {
		t.Errorf("count = %d, want 3", n)
	}
	if got := gjson.Get(out, "main").String(); got != "./lib/index.ts" {
		t.Errorf("main = %q", got)
	}
	// Dot-prefix style of the original value is preserved.
	if got := gjson.Get(out, "types").String(); got != "lib/index.ts" {
		t.Errorf("types = %q", got)
	}
	if got := gjson.Get(out, `exports.\.`).String(); got != "./lib/index.ts" {
		t.Errorf("exports[.] = %q", got)
	}
	if got := gjson.Get(out, `exports.\./util`).String(); got != "./src/util.ts" {
		t.Errorf("exports[./util] changed: %q", got)
	}
}

func TestRewriteManifestWorkspaces(t *testing.T) {
	manifest := `{"name":"root","workspaces":["packages/a","packages/b"]}`
	p := New()
	out, n, err := p.RewriteManifest(manifest, "/ws/package.json", "/ws/packages/a", "/ws/libs/a")
	if err != nil {
		t.Fatalf("RewriteManifest: %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
	if !strings.Contains(out, `"libs/a"`) || !strings.Contains(out, `"packages/b"`) {
		t.Errorf("workspaces not rewritten correctly: %s", out)
	}
}

func TestRewriteManifestNoChange(t *testing.T) {
	manifest := `{"name":"pkg","main":"./src/index.ts"}`
	p := New()
	out, n, err := p.RewriteManifest(manifest, "/pkg/package.json", "/pkg/src/other.ts", "/pkg/lib/other.ts")
	if err != nil {
		t.Fatalf("RewriteManifest: %v", err)
	}
	if n != 0 || out != manifest {
		t.Errorf("unrelated move changed manifest: n=%d out=%s", n, out)
	}
}

func TestRewriteManifestInvalidJSON(t *testing.T) {
	p := New()
	if _, _, err := p.RewriteManifest("{not json", "/pkg/package.json", "/a", "/b"); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}
