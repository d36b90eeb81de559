package service

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Strob0t/RefactorForge/internal/domain/refactor"
	"github.com/Strob0t/RefactorForge/internal/domain/text"
	"github.com/Strob0t/RefactorForge/internal/plugin"
	"github.com/Strob0t/RefactorForge/internal/workspace"
)

// UpdateOptions controls which reference classes the updater touches.
type UpdateOptions struct {
	IncludeBodyImports   bool `json:"include_body_imports"`
	IncludeQualifiedRefs bool `json:"include_qualified_refs"`
	IncludeManifests     bool `json:"include_manifests"`
}

// DefaultUpdateOptions rewrites imports and manifests; qualified references
// and string literals are opt-in.
func DefaultUpdateOptions() UpdateOptions {
	return UpdateOptions{IncludeBodyImports: true, IncludeManifests: true}
}

// ReferenceUpdater computes the edits that keep a workspace consistent when
// a file or directory moves. Language specifics are delegated to plugins.
type ReferenceUpdater struct {
	registry *plugin.Registry
	scanner  *workspace.Scanner
	snaps    *workspace.Snapshots
	workers  int64
}

// NewReferenceUpdater creates an updater over the registry and workspace.
func NewReferenceUpdater(registry *plugin.Registry, scanner *workspace.Scanner, snaps *workspace.Snapshots) *ReferenceUpdater {
	return &ReferenceUpdater{registry: registry, scanner: scanner, snaps: snaps, workers: 8}
}

// UpdateReferences returns the edit plan that rewrites every import,
// optional qualified reference, and manifest affected by moving oldPath to
// newPath. Every edited file carries its pre-edit snapshot.
func (u *ReferenceUpdater) UpdateReferences(ctx context.Context, oldPath, newPath string, opts UpdateOptions) (refactor.EditPlan, []refactor.Warning, error) {
	var plan refactor.EditPlan
	var warnings []refactor.Warning
	var mu sync.Mutex

	owner := u.ownerOf(oldPath)

	// 1. Candidate source files: every registered extension, minus anything
	// inside the moved tree itself (those move with it).
	var candidates []string
	err := u.scanner.Walk(u.registry.Extensions(), func(path string) error {
		if within(path, oldPath) {
			return nil
		}
		candidates = append(candidates, path)
		return nil
	})
	if err != nil {
		return plan, warnings, refactor.WrapError(refactor.KindInternal, err, "workspace walk")
	}

	// 2-3. Per-file import rewrites and optional qualified references,
	// bounded fan-out.
	err = workspace.ForEachParallel(ctx, candidates, u.workers, func(_ context.Context, path string) error {
		p, ok := u.registry.ForExtension(extOf(path))
		if !ok {
			return nil
		}

		snap, content, readErr := u.snaps.Capture(path)
		if readErr != nil {
			mu.Lock()
			warnings = append(warnings, refactor.Warning{
				Code: "unreadable_file", Severity: refactor.SeverityWarn,
				Message: "skipped unreadable file " + path,
			})
			mu.Unlock()
			return nil // per-file failures degrade to warnings
		}

		edits := u.fileEdits(p, content, path, oldPath, newPath, opts)
		if len(edits) == 0 {
			return nil
		}

		mu.Lock()
		plan.Merge(refactor.EditPlan{
			Edits:     []refactor.FileEdits{{Path: path, Edits: edits}},
			Snapshots: []refactor.FileSnapshot{snap},
		})
		mu.Unlock()
		return nil
	})
	if err != nil {
		return plan, warnings, err
	}

	// 4. Manifests of the plugin owning the moved path.
	if opts.IncludeManifests && owner != nil && owner.Capabilities().Workspace {
		manifestWarnings, err := u.updateManifests(owner, &plan, oldPath, newPath)
		if err != nil {
			return plan, warnings, err
		}
		warnings = append(warnings, manifestWarnings...)
	}

	slog.Debug("reference update computed",
		"old", oldPath, "new", newPath, "files", len(plan.Edits), "warnings", len(warnings))
	return plan, warnings, nil
}

// fileEdits computes the edits for one candidate file.
func (u *ReferenceUpdater) fileEdits(p plugin.Plugin, content, path, oldPath, newPath string, opts UpdateOptions) []text.Edit {
	var edits []text.Edit

	if opts.IncludeBodyImports {
		rewritten, n := p.RewriteImportsForPathChange(content, oldPath, newPath, path)
		if n > 0 {
			edits = append(edits, diffAsEdits(p, content, rewritten)...)
		}
	}

	if opts.IncludeQualifiedRefs {
		newRef := referenceReplacement(p, oldPath, newPath)
		if newRef != "" {
			for _, rng := range p.FindModuleReferences(content, oldPath) {
				edits = append(edits, text.Edit{Range: rng, NewText: newRef})
			}
		}
	}

	return edits
}

// diffAsEdits re-derives span edits from a plugin rewrite by comparing the
// import records of the original and rewritten content. Plugins rewrite
// whole specifier spans, so record-by-record comparison reproduces the
// exact edits.
func diffAsEdits(p plugin.Plugin, original, rewritten string) []text.Edit {
	if original == rewritten {
		return nil
	}
	origRecs := p.ParseImports(original)
	newRecs := p.ParseImports(rewritten)
	if len(origRecs) != len(newRecs) {
		// Structure changed unexpectedly; fall back to a whole-file edit.
		ix := text.NewIndex(original)
		last := ix.LineCount() - 1
		return []text.Edit{{
			Range: text.Range{
				Start: text.Position{},
				End:   text.Position{Line: last, Character: ix.LineUTF16Len(last)},
			},
			NewText: rewritten,
		}}
	}

	var edits []text.Edit
	for i := range origRecs {
		if origRecs[i].ModulePath != newRecs[i].ModulePath {
			edits = append(edits, text.Edit{
				Range:   origRecs[i].SpecRange,
				NewText: newRecs[i].ModulePath,
			})
		}
	}
	return edits
}

// referenceReplacement derives the replacement text for qualified
// references: the new module's specifier-ish name.
func referenceReplacement(p plugin.Plugin, oldPath, newPath string) string {
	oldBase := strings.TrimSuffix(filepath.Base(oldPath), filepath.Ext(oldPath))
	newBase := strings.TrimSuffix(filepath.Base(newPath), filepath.Ext(newPath))
	if oldBase == newBase {
		return ""
	}
	return newBase
}

// updateManifests rewrites the owning plugin's manifests across the
// workspace, including a manifest inside the moved tree whose own relative
// dependencies point outward.
func (u *ReferenceUpdater) updateManifests(owner plugin.Plugin, plan *refactor.EditPlan, oldPath, newPath string) ([]refactor.Warning, error) {
	var warnings []refactor.Warning

	err := u.scanner.WalkFilenames(owner.ManifestFilenames(), func(path string) error {
		snap, content, readErr := u.snaps.Capture(path)
		if readErr != nil {
			warnings = append(warnings, refactor.Warning{
				Code: "manifest_unreadable", Severity: refactor.SeverityWarn,
				Message: "could not read manifest " + path,
			})
			return nil
		}

		rewritten, n, rwErr := owner.RewriteManifest(content, path, oldPath, newPath)
		if rwErr != nil {
			warnings = append(warnings, refactor.Warning{
				Code: "manifest_update_failed", Severity: refactor.SeverityWarn,
				Message: rwErr.Error(),
			})
			return nil
		}
		if n == 0 {
			return nil
		}

		// Manifests are rewritten wholesale; emit one full-document edit.
		ix := text.NewIndex(content)
		last := ix.LineCount() - 1
		plan.Merge(refactor.EditPlan{
			Edits: []refactor.FileEdits{{Path: path, Edits: []text.Edit{{
				Range: text.Range{
					Start: text.Position{},
					End:   text.Position{Line: last, Character: ix.LineUTF16Len(last)},
				},
				NewText: rewritten,
			}}}},
			Snapshots: []refactor.FileSnapshot{snap},
		})
		return nil
	})
	return warnings, err
}

// ownerOf resolves the plugin owning a path. Files resolve by extension; a
// directory is owned by the plugin owning the most source files inside it.
func (u *ReferenceUpdater) ownerOf(path string) plugin.Plugin {
	if p, ok := u.registry.ForExtension(extOf(path)); ok {
		return p
	}
	fi, err := os.Stat(path)
	if err != nil || !fi.IsDir() {
		return nil
	}

	counts := make(map[plugin.Plugin]int)
	_ = filepath.WalkDir(path, func(entry string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if p, ok := u.registry.ForExtension(extOf(entry)); ok {
			counts[p]++
		}
		return nil
	})

	var best plugin.Plugin
	bestN := 0
	for p, n := range counts {
		if n > bestN {
			best, bestN = p, n
		}
	}
	return best
}

func extOf(path string) string {
	return strings.TrimPrefix(filepath.Ext(path), ".")
}

func within(path, root string) bool {
	path = filepath.Clean(path)
	root = filepath.Clean(root)
	return path == root || strings.HasPrefix(path, root+string(filepath.Separator))
}
