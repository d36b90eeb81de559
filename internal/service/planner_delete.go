package service

import (
	"context"
	"regexp"

	"github.com/Strob0t/RefactorForge/internal/domain/refactor"
	"github.com/Strob0t/RefactorForge/internal/domain/text"
	"github.com/Strob0t/RefactorForge/internal/plugin"
)

// DeleteRequest is the argument shape of delete.plan.
type DeleteRequest struct {
	Kind    string          `json:"kind"` // unused_imports, dead_code, redundant_code, file
	Target  refactor.Target `json:"target"`
	Targets []string        `json:"targets,omitempty"`
	DryRun  bool            `json:"dry_run,omitempty"`
	Options *UpdateOptions  `json:"options,omitempty"`
}

// PlanDelete builds a delete plan.
func (p *Planner) PlanDelete(ctx context.Context, req DeleteRequest) (*refactor.Plan, error) {
	switch req.Kind {
	case "unused_imports":
		return p.planDeleteUnusedImports(req)
	case "file":
		return p.planDeleteFile(ctx, req)
	case "dead_code", "redundant_code":
		plan := p.newPlan(refactor.FamilyDelete, req.Kind, req.Target, req.DryRun)
		plan.Warn("manual_followup_needed", refactor.SeverityWarn,
			req.Kind+" detection requires language server diagnostics; none identified an edit")
		return p.finish(plan)
	default:
		return nil, refactor.NewError(refactor.KindInvalidRequest, "unknown delete kind %q", req.Kind)
	}
}

// planDeleteUnusedImports removes import statements none of whose bound
// names appear in the file body. A partially used named-import list is left
// unchanged and reported with a partial_import warning.
func (p *Planner) planDeleteUnusedImports(req DeleteRequest) (*refactor.Plan, error) {
	path := p.absPath(req.Target.Path)
	plan := p.newPlan(refactor.FamilyDelete, "unused_imports", req.Target, req.DryRun)

	pl, err := p.pluginFor(path)
	if err != nil {
		return nil, err
	}

	snap, content, err := p.snaps.Capture(path)
	if err != nil {
		return nil, refactor.WrapError(refactor.KindInvalidRequest, err, "read %s", path)
	}

	ix := text.NewIndex(content)
	records := pl.ParseImports(content)
	var edits []text.Edit
	removed := 0

	for _, rec := range records {
		if rec.Kind == plugin.ImportSideEffect {
			continue // side-effect imports are loaded for effect, never unused
		}
		if len(rec.Names) == 0 {
			continue
		}

		start, end := ix.RangeToOffsets(rec.Range)
		body := content[:start] + content[end:]

		used := 0
		for _, name := range rec.Names {
			re := regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`)
			if re.MatchString(body) {
				used++
			}
		}

		if used == 0 {
			// Remove the whole statement including its line terminator.
			delEnd := rec.Range.End
			if delEnd.Line+1 < ix.LineCount() && delEnd.Character == ix.LineUTF16Len(delEnd.Line) {
				delEnd = text.Position{Line: delEnd.Line + 1}
			}
			edits = append(edits, text.Edit{
				Range: text.Range{Start: rec.Range.Start, End: delEnd},
			})
			removed += len(rec.Names)
		} else if used < len(rec.Names) {
			plan.Warn("partial_import", refactor.SeverityInfo,
				"import of "+rec.ModulePath+" is partially used; prune names manually or rerun per-name")
		}
	}

	if len(edits) == 0 {
		plan.Warn("no_unused_imports", refactor.SeverityInfo, "no unused imports found")
		return p.finish(plan)
	}

	plan.Detail["removed_names"] = removed
	plan.Edits = refactor.EditPlan{
		Edits:     []refactor.FileEdits{{Path: path, Edits: edits}},
		Snapshots: []refactor.FileSnapshot{snap},
	}
	return p.finish(plan)
}

// planDeleteFile deletes the targets and strips imports of them from the
// rest of the workspace.
func (p *Planner) planDeleteFile(ctx context.Context, req DeleteRequest) (*refactor.Plan, error) {
	targets := req.Targets
	if len(targets) == 0 && req.Target.Path != "" {
		targets = []string{req.Target.Path}
	}
	if len(targets) == 0 {
		return nil, refactor.NewError(refactor.KindInvalidRequest, "no targets to delete")
	}

	plan := p.newPlan(refactor.FamilyDelete, "file", req.Target, req.DryRun)
	plan.Detail["targets"] = targets

	for _, t := range targets {
		target := p.absPath(t)
		snap, _, err := p.snaps.Capture(target)
		if err != nil {
			return nil, refactor.WrapError(refactor.KindInvalidRequest, err, "read %s", target)
		}
		plan.Edits.Snapshots = append(plan.Edits.Snapshots, snap)
		plan.Edits.Ops = append(plan.Edits.Ops, refactor.FileOp{Kind: refactor.OpDeleteFile, Path: target})

		// Strip imports of the deleted file across the workspace.
		stripped, warnings, err := p.stripImportsOf(ctx, target)
		if err != nil {
			return nil, err
		}
		plan.Edits.Merge(stripped)
		plan.Warnings = append(plan.Warnings, warnings...)
	}

	return p.finish(plan)
}

// stripImportsOf removes import statements resolving to target from every
// workspace file; remaining code references become warnings.
func (p *Planner) stripImportsOf(ctx context.Context, target string) (refactor.EditPlan, []refactor.Warning, error) {
	var out refactor.EditPlan
	var warnings []refactor.Warning

	pl, err := p.pluginFor(target)
	if err != nil {
		return out, nil, err
	}

	err = p.scanner.Walk(pl.Extensions(), func(candidate string) error {
		if candidate == target {
			return nil
		}
		snap, content, readErr := p.snaps.Capture(candidate)
		if readErr != nil {
			return nil
		}

		// A rewrite against a sentinel destination flags which imports
		// resolve to the target; those statements are deleted instead of
		// rewritten.
		rewritten, n := pl.RewriteImportsForPathChange(content, target, target+".deleted", candidate)
		if n == 0 {
			return nil
		}
		origRecs := pl.ParseImports(content)
		newRecs := pl.ParseImports(rewritten)
		if len(origRecs) != len(newRecs) {
			return nil
		}

		ix := text.NewIndex(content)
		var edits []text.Edit
		for i, rec := range origRecs {
			if rec.ModulePath == newRecs[i].ModulePath {
				continue
			}
			delEnd := rec.Range.End
			if delEnd.Line+1 < ix.LineCount() && delEnd.Character == ix.LineUTF16Len(delEnd.Line) {
				delEnd = text.Position{Line: delEnd.Line + 1}
			}
			edits = append(edits, text.Edit{Range: text.Range{Start: rec.Range.Start, End: delEnd}})
			for _, name := range rec.Names {
				warnings = append(warnings, refactor.Warning{
					Code: "dangling_reference", Severity: refactor.SeverityWarn,
					Message: candidate + " used " + name + " from the deleted file",
				})
			}
		}
		if len(edits) > 0 {
			out.Merge(refactor.EditPlan{
				Edits:     []refactor.FileEdits{{Path: candidate, Edits: edits}},
				Snapshots: []refactor.FileSnapshot{snap},
			})
		}
		return ctx.Err()
	})
	return out, warnings, err
}
