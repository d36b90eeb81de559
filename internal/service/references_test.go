package service

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Strob0t/RefactorForge/internal/domain/refactor"
	"github.com/Strob0t/RefactorForge/internal/domain/text"
	"github.com/Strob0t/RefactorForge/internal/plugin"
	"github.com/Strob0t/RefactorForge/internal/plugin/rust"
	"github.com/Strob0t/RefactorForge/internal/plugin/typescript"
	"github.com/Strob0t/RefactorForge/internal/workspace"
)

func newUpdater(t *testing.T, root string) (*ReferenceUpdater, *workspace.Snapshots) {
	t.Helper()
	registry := plugin.NewRegistry(typescript.New(), rust.New())
	scanner, err := workspace.NewScanner(root)
	if err != nil {
		t.Fatal(err)
	}
	snaps := workspace.NewSnapshots(nil)
	return NewReferenceUpdater(registry, scanner, snaps), snaps
}

// applyPlanEdits applies an EditPlan's text edits in memory for assertions.
func applyPlanEdits(t *testing.T, plan refactor.EditPlan, path, content string) string {
	t.Helper()
	for _, fe := range plan.Edits {
		if fe.Path != path {
			continue
		}
		out, err := text.ApplyEdits(content, fe.Edits)
		if err != nil {
			t.Fatalf("apply edits for %s: %v", path, err)
		}
		return out
	}
	return content
}

func TestUpdateReferencesFileRename(t *testing.T) {
	root := t.TempDir()
	old := filepath.Join(root, "src", "old.ts")
	user := filepath.Join(root, "src", "u.ts")
	writeFile(t, old, "export const x=1")
	writeFile(t, user, "import {x} from './old';")

	updater, _ := newUpdater(t, root)
	plan, warnings, err := updater.UpdateReferences(context.Background(),
		old, filepath.Join(root, "src", "new.ts"), DefaultUpdateOptions())
	if err != nil {
		t.Fatalf("UpdateReferences: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
	if len(plan.Edits) != 1 || plan.Edits[0].Path != user {
		t.Fatalf("expected edits only for u.ts, got %+v", plan.Edits)
	}

	got := applyPlanEdits(t, plan, user, "import {x} from './old';")
	if got != "import {x} from './new';" {
		t.Errorf("rewritten import = %q", got)
	}

	// Every edited file carries its snapshot.
	if len(plan.Snapshots) != 1 || plan.Snapshots[0].Path != user {
		t.Errorf("snapshots = %+v", plan.Snapshots)
	}
}

func TestUpdateReferencesSkipsMovedTree(t *testing.T) {
	root := t.TempDir()
	moved := filepath.Join(root, "lib")
	inner := filepath.Join(moved, "inner.ts")
	writeFile(t, inner, "import {a} from './a';")
	writeFile(t, filepath.Join(moved, "a.ts"), "export const a=1")
	writeFile(t, filepath.Join(root, "outside.ts"), "import {a} from './lib/a';")

	updater, _ := newUpdater(t, root)
	plan, _, err := updater.UpdateReferences(context.Background(),
		moved, filepath.Join(root, "core"), DefaultUpdateOptions())
	if err != nil {
		t.Fatal(err)
	}

	for _, fe := range plan.Edits {
		if strings.HasPrefix(fe.Path, moved) {
			t.Errorf("edit inside the moved tree: %s", fe.Path)
		}
	}
	outside := filepath.Join(root, "outside.ts")
	got := applyPlanEdits(t, plan, outside, "import {a} from './lib/a';")
	if got != "import {a} from './core/a';" {
		t.Errorf("outside import = %q", got)
	}
}

func TestUpdateReferencesCargoPathDeps(t *testing.T) {
	root := t.TempDir()
	libx := filepath.Join(root, "crates", "languages", "libx")
	writeFile(t, filepath.Join(libx, "src", "lib.rs"), "pub fn parse() {}\n")
	writeFile(t, filepath.Join(libx, "Cargo.toml"),
		"[package]\nname = \"libx\"\n")
	appManifest := filepath.Join(root, "crates", "app", "Cargo.toml")
	writeFile(t, appManifest,
		"[package]\nname = \"app\"\n\n[dependencies]\nlibx = { path = \"../languages/libx\" }\n")
	appMain := filepath.Join(root, "crates", "app", "src", "main.rs")
	writeFile(t, appMain, "use libx::parse;\n\nfn main() { parse(); }\n")

	updater, _ := newUpdater(t, root)
	plan, _, err := updater.UpdateReferences(context.Background(),
		libx, filepath.Join(root, "crates", "libx"), DefaultUpdateOptions())
	if err != nil {
		t.Fatal(err)
	}

	// use statements stand (crate name unchanged); the path dep moves.
	for _, fe := range plan.Edits {
		if fe.Path == appMain {
			t.Errorf("use statement edited on a crate-preserving move")
		}
	}

	var manifestEdited bool
	for _, fe := range plan.Edits {
		if fe.Path == appManifest {
			manifestEdited = true
			original := "[package]\nname = \"app\"\n\n[dependencies]\nlibx = { path = \"../languages/libx\" }\n"
			got := applyPlanEdits(t, plan, appManifest, original)
			if !strings.Contains(got, `path = "../libx"`) {
				t.Errorf("path dep not rewritten:\n%s", got)
			}
		}
	}
	if !manifestEdited {
		t.Fatal("app Cargo.toml was not updated")
	}
}

func TestUpdateReferencesQualifiedOptIn(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "m.ts")
	writeFile(t, target, "export const v=1")
	user := filepath.Join(root, "u.ts")
	writeFile(t, user, "const p = './m';\n")

	updater, _ := newUpdater(t, root)

	// Off by default.
	plan, _, err := updater.UpdateReferences(context.Background(),
		target, filepath.Join(root, "n.ts"), DefaultUpdateOptions())
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Edits) != 0 {
		t.Errorf("string literal rewritten without opt-in: %+v", plan.Edits)
	}
}
