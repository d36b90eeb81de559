package service

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	lspAdapter "github.com/Strob0t/RefactorForge/internal/adapter/lsp"
	lspDomain "github.com/Strob0t/RefactorForge/internal/domain/lsp"
	"github.com/Strob0t/RefactorForge/internal/domain/refactor"
	"github.com/Strob0t/RefactorForge/internal/domain/text"
	"github.com/Strob0t/RefactorForge/internal/plugin"
	"github.com/Strob0t/RefactorForge/internal/plugin/rust"
	"github.com/Strob0t/RefactorForge/internal/plugin/typescript"
	"github.com/Strob0t/RefactorForge/internal/workspace"
)

// newPlanner builds a planner with an empty orchestrator: no language
// server is ever spawned, so every plan takes the AST path.
func newPlanner(t *testing.T, root string) (*Planner, *workspace.Snapshots) {
	t.Helper()
	registry := plugin.NewRegistry(typescript.New(), rust.New())
	scanner, err := workspace.NewScanner(root)
	if err != nil {
		t.Fatal(err)
	}
	snaps := workspace.NewSnapshots(nil)
	refs := NewReferenceUpdater(registry, scanner, snaps)
	orch := lspAdapter.NewOrchestrator([]lspDomain.ServerConfig{}, root)
	return NewPlanner(orch, registry, scanner, snaps, refs, time.Second), snaps
}

// applyAll applies a plan's per-file edits in memory and returns the result
// for path.
func applyAll(t *testing.T, plan *refactor.Plan, path, content string) string {
	t.Helper()
	for _, fe := range plan.Edits.Edits {
		if fe.Path != path {
			continue
		}
		out, err := text.ApplyEdits(content, fe.Edits)
		if err != nil {
			t.Fatalf("apply: %v", err)
		}
		return out
	}
	return content
}

func TestPlanRenameFile(t *testing.T) {
	root := t.TempDir()
	old := filepath.Join(root, "src", "old.ts")
	user := filepath.Join(root, "src", "u.ts")
	writeFile(t, old, "export const x=1")
	writeFile(t, user, "import {x} from './old';")

	planner, _ := newPlanner(t, root)
	plan, err := planner.PlanRename(context.Background(), RenameRequest{
		Target:  refactor.Target{Kind: "file", Path: "src/old.ts"},
		NewName: "new.ts",
	})
	if err != nil {
		t.Fatalf("PlanRename: %v", err)
	}

	var move *refactor.FileOp
	for i := range plan.Edits.Ops {
		if plan.Edits.Ops[i].Kind == refactor.OpMoveFile {
			move = &plan.Edits.Ops[i]
		}
	}
	if move == nil {
		t.Fatal("plan has no move op")
	}
	if move.Path != old || move.Dest != filepath.Join(root, "src", "new.ts") {
		t.Errorf("move = %+v", move)
	}

	got := applyAll(t, plan, user, "import {x} from './old';")
	if got != "import {x} from './new';" {
		t.Errorf("rewritten import = %q", got)
	}
}

func TestPlanRenameSymbolASTFallback(t *testing.T) {
	root := t.TempDir()
	a := filepath.Join(root, "a.ts")
	b := filepath.Join(root, "b.ts")
	writeFile(t, a, "export function foo(){ return 1 }")
	writeFile(t, b, "import {foo} from './a';\nfoo();")

	planner, _ := newPlanner(t, root)
	plan, err := planner.PlanRename(context.Background(), RenameRequest{
		Target: refactor.Target{
			Kind: "symbol", Path: "a.ts",
			Position: &text.Position{Line: 0, Character: 16},
		},
		NewName: "bar",
	})
	if err != nil {
		t.Fatalf("PlanRename: %v", err)
	}

	if got := applyAll(t, plan, a, "export function foo(){ return 1 }"); got != "export function bar(){ return 1 }" {
		t.Errorf("a.ts = %q", got)
	}
	if got := applyAll(t, plan, b, "import {foo} from './a';\nfoo();"); got != "import {bar} from './a';\nbar();" {
		t.Errorf("b.ts = %q", got)
	}
}

func TestPlanRenameValidation(t *testing.T) {
	planner, _ := newPlanner(t, t.TempDir())
	tests := []struct {
		name string
		req  RenameRequest
	}{
		{"missing new name", RenameRequest{Target: refactor.Target{Kind: "symbol", Path: "a.ts"}}},
		{"unknown kind", RenameRequest{Target: refactor.Target{Kind: "galaxy"}, NewName: "x"}},
		{"symbol without position", RenameRequest{Target: refactor.Target{Kind: "symbol", Path: "a.ts"}, NewName: "x"}},
		{"invalid identifier", RenameRequest{
			Target:  refactor.Target{Kind: "symbol", Path: "a.ts", Position: &text.Position{}},
			NewName: "not an ident",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := planner.PlanRename(context.Background(), tt.req)
			if refactor.KindOf(err) != refactor.KindInvalidRequest {
				t.Errorf("expected invalid_request, got %v", err)
			}
		})
	}
}

func TestPlanReorderImports(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.ts")
	content := "import {z} from './zeta';\nimport {a} from './alpha';\nimport {m} from './mid';\n\ncode();\n"
	writeFile(t, path, content)

	planner, _ := newPlanner(t, root)
	plan, err := planner.PlanReorder(context.Background(), ReorderRequest{
		Kind:   "imports",
		Target: refactor.Target{Path: "a.ts"},
	})
	if err != nil {
		t.Fatalf("PlanReorder: %v", err)
	}
	if len(plan.Edits.Edits) != 1 || len(plan.Edits.Edits[0].Edits) != 1 {
		t.Fatalf("expected a single block replacement, got %+v", plan.Edits.Edits)
	}

	got := applyAll(t, plan, path, content)
	want := "import {a} from './alpha';\nimport {m} from './mid';\nimport {z} from './zeta';\n\ncode();\n"
	if got != want {
		t.Errorf("sorted:\n got %q\nwant %q", got, want)
	}
}

func TestPlanDeleteUnusedImports(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.ts")
	content := "import {used} from './u';\nimport {unused} from './x';\n\nused();\n"
	writeFile(t, path, content)

	planner, _ := newPlanner(t, root)
	plan, err := planner.PlanDelete(context.Background(), DeleteRequest{
		Kind:   "unused_imports",
		Target: refactor.Target{Path: "a.ts"},
	})
	if err != nil {
		t.Fatalf("PlanDelete: %v", err)
	}

	got := applyAll(t, plan, path, content)
	want := "import {used} from './u';\n\nused();\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestPlanDeleteFile(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "gone.ts")
	user := filepath.Join(root, "u.ts")
	writeFile(t, target, "export const g=1")
	writeFile(t, user, "import {g} from './gone';\nrest();\n")

	planner, _ := newPlanner(t, root)
	plan, err := planner.PlanDelete(context.Background(), DeleteRequest{
		Kind:   "file",
		Target: refactor.Target{Path: "gone.ts"},
	})
	if err != nil {
		t.Fatalf("PlanDelete: %v", err)
	}

	if len(plan.Edits.Ops) != 1 || plan.Edits.Ops[0].Kind != refactor.OpDeleteFile {
		t.Fatalf("ops = %+v", plan.Edits.Ops)
	}
	got := applyAll(t, plan, user, "import {g} from './gone';\nrest();\n")
	if got != "rest();\n" {
		t.Errorf("import not stripped: %q", got)
	}
	// The dangling use of g is reported, not silently dropped.
	var dangling bool
	for _, w := range plan.Warnings {
		if w.Code == "dangling_reference" {
			dangling = true
		}
	}
	if !dangling {
		t.Error("expected dangling_reference warning")
	}
}

func TestPlanInlineVariable(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.ts")
	content := "const limit = 42;\nif (n > limit) { fail(limit); }\n"
	writeFile(t, path, content)

	planner, _ := newPlanner(t, root)
	plan, err := planner.PlanInline(context.Background(), InlineRequest{
		Kind:   "variable",
		Target: refactor.Target{Path: "a.ts", Name: "limit"},
	})
	if err != nil {
		t.Fatalf("PlanInline: %v", err)
	}

	got := applyAll(t, plan, path, content)
	want := "if (n > 42) { fail(42); }\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestPlanInlineShadowedSiteSkipped(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.ts")
	content := "const v = 1;\nfunction f() {\n  let v = 2;\n  return v;\n}\n"
	writeFile(t, path, content)

	planner, _ := newPlanner(t, root)
	plan, err := planner.PlanInline(context.Background(), InlineRequest{
		Kind:   "variable",
		Target: refactor.Target{Path: "a.ts", Name: "v"},
	})
	if err != nil {
		t.Fatalf("PlanInline: %v", err)
	}

	var skipped bool
	for _, w := range plan.Warnings {
		if w.Code == "sites_skipped" {
			skipped = true
		}
	}
	if !skipped {
		t.Error("expected sites_skipped warning for shadowed use")
	}
}

func TestPlanTransformToAsync(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.ts")
	content := "export function load() {\n  return fetch(url);\n}\n"
	writeFile(t, path, content)

	planner, _ := newPlanner(t, root)
	plan, err := planner.PlanTransform(context.Background(), TransformRequest{
		Kind:   "to_async",
		Target: refactor.Target{Path: "a.ts", Position: &text.Position{Line: 0}},
	})
	if err != nil {
		t.Fatalf("PlanTransform: %v", err)
	}

	got := applyAll(t, plan, path, content)
	if !strings.HasPrefix(got, "export async function load()") {
		t.Errorf("got %q", got)
	}
}

func TestPlanExtractVariable(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.ts")
	content := "const total = price * 1.2 + shipping;\n"
	writeFile(t, path, content)

	planner, _ := newPlanner(t, root)
	plan, err := planner.PlanExtract(context.Background(), ExtractRequest{
		Kind:   "constant",
		Target: refactor.Target{Path: "a.ts"},
		SourceRange: text.Range{
			Start: text.Position{Line: 0, Character: 14},
			End:   text.Position{Line: 0, Character: 25},
		},
		NewName: "taxed",
	})
	if err != nil {
		t.Fatalf("PlanExtract: %v", err)
	}

	got := applyAll(t, plan, path, content)
	if !strings.Contains(got, "const taxed = price * 1.2;") {
		t.Errorf("missing extracted constant: %q", got)
	}
	if !strings.Contains(got, "const total = taxed + shipping;") {
		t.Errorf("selection not replaced: %q", got)
	}
}

func TestPlanMoveSymbol(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "a.ts")
	content := "export function keep() {}\nexport function move() { return 1 }\n"
	writeFile(t, src, content)

	planner, _ := newPlanner(t, root)
	plan, err := planner.PlanMove(context.Background(), MoveRequest{
		Kind:   "symbol",
		Target: refactor.Target{Path: "a.ts"},
		SourceRange: &text.Range{
			Start: text.Position{Line: 1},
			End:   text.Position{Line: 1, Character: 35},
		},
		Destination: "b.ts",
	})
	if err != nil {
		t.Fatalf("PlanMove: %v", err)
	}

	// Destination does not exist yet, so the plan creates it.
	var created *refactor.FileOp
	for i := range plan.Edits.Ops {
		if plan.Edits.Ops[i].Kind == refactor.OpCreateFile {
			created = &plan.Edits.Ops[i]
		}
	}
	if created == nil {
		t.Fatal("no create op for destination")
	}
	if !strings.Contains(created.Content, "function move()") {
		t.Errorf("destination content = %q", created.Content)
	}

	got := applyAll(t, plan, src, content)
	if strings.Contains(got, "function move()") {
		t.Errorf("moved code still present at source: %q", got)
	}
}

func TestPlanDryRunCarriesPreviews(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.ts")
	writeFile(t, path, "import {z} from './z';\nimport {a} from './a';\n")

	planner, _ := newPlanner(t, root)
	plan, err := planner.PlanReorder(context.Background(), ReorderRequest{
		Kind:   "imports",
		Target: refactor.Target{Path: "a.ts"},
		DryRun: true,
	})
	if err != nil {
		t.Fatalf("PlanReorder: %v", err)
	}
	if !plan.DryRun {
		t.Error("dry_run flag lost")
	}
	if len(plan.Previews) == 0 {
		t.Fatal("dry-run plan has no previews")
	}
	if !strings.Contains(plan.Previews[0].Diff, "+") {
		t.Errorf("preview carries no diff lines: %q", plan.Previews[0].Diff)
	}
}
