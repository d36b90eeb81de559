package service

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/Strob0t/RefactorForge/internal/domain/refactor"
	"github.com/Strob0t/RefactorForge/internal/domain/text"
)

// MoveRequest is the argument shape of move.plan.
type MoveRequest struct {
	Kind        string          `json:"kind"` // symbol, to_module, to_namespace, consolidate
	Target      refactor.Target `json:"target"`
	SourceRange *text.Range     `json:"source_range,omitempty"`
	Destination string          `json:"destination"`
	DryRun      bool            `json:"dry_run,omitempty"`
	Options     *UpdateOptions  `json:"options,omitempty"`
}

// PlanMove builds a move plan. A symbol move extracts the definition text
// at the source, deletes it there, and inserts it at the destination
// (creating the file when absent). Imports in the source and destination
// and callers of the moved symbol are not adjusted, and no language-server
// code action is consulted; when the moved text declares names, the plan
// carries a manual_followup_needed warning listing them.
func (p *Planner) PlanMove(ctx context.Context, req MoveRequest) (*refactor.Plan, error) {
	switch req.Kind {
	case "symbol", "to_module", "to_namespace":
		return p.planSymbolMove(ctx, req)
	case "consolidate":
		return p.planConsolidate(ctx, req)
	default:
		return nil, refactor.NewError(refactor.KindInvalidRequest, "unknown move kind %q", req.Kind)
	}
}

func (p *Planner) planSymbolMove(ctx context.Context, req MoveRequest) (*refactor.Plan, error) {
	if req.SourceRange == nil {
		return nil, refactor.NewError(refactor.KindInvalidRequest, "move %s requires source_range", req.Kind)
	}
	if req.Destination == "" {
		return nil, refactor.NewError(refactor.KindInvalidRequest, "destination is required")
	}

	srcPath := p.absPath(req.Target.Path)
	dstPath := p.absPath(req.Destination)
	plan := p.newPlan(refactor.FamilyMove, req.Kind, req.Target, req.DryRun)
	plan.Detail["destination"] = dstPath

	srcSnap, srcContent, err := p.snaps.Capture(srcPath)
	if err != nil {
		return nil, refactor.WrapError(refactor.KindInvalidRequest, err, "read %s", srcPath)
	}

	ix := text.NewIndex(srcContent)
	if !ix.InBounds(req.SourceRange.Start) || !ix.InBounds(req.SourceRange.End) {
		return nil, refactor.NewError(refactor.KindInvalidEdit, "source_range outside %s", srcPath).
			WithDetail("path", srcPath)
	}
	start, end := ix.RangeToOffsets(*req.SourceRange)
	moved := srcContent[start:end]
	if strings.TrimSpace(moved) == "" {
		return nil, refactor.NewError(refactor.KindInvalidRequest, "source_range selects no code")
	}

	// (a,b) extract and delete at the source.
	plan.Edits.Merge(refactor.EditPlan{
		Edits: []refactor.FileEdits{{Path: srcPath, Edits: []text.Edit{{
			Range: *req.SourceRange, NewText: "",
		}}}},
		Snapshots: []refactor.FileSnapshot{srcSnap},
	})

	// (c) insert at the destination, creating the file when absent.
	if isFile(dstPath) {
		dstSnap, dstContent, dErr := p.snaps.Capture(dstPath)
		if dErr != nil {
			return nil, refactor.WrapError(refactor.KindInvalidRequest, dErr, "read %s", dstPath)
		}
		dstIx := text.NewIndex(dstContent)
		last := dstIx.LineCount() - 1
		endPos := text.Position{Line: last, Character: dstIx.LineUTF16Len(last)}
		insert := "\n" + strings.TrimRight(moved, "\n") + "\n"
		plan.Edits.Merge(refactor.EditPlan{
			Edits: []refactor.FileEdits{{Path: dstPath, Edits: []text.Edit{{
				Range: text.Range{Start: endPos, End: endPos}, NewText: insert,
			}}}},
			Snapshots: []refactor.FileSnapshot{dstSnap},
		})
	} else {
		plan.Edits.Ops = append(plan.Edits.Ops, refactor.FileOp{
			Kind:    refactor.OpCreateFile,
			Path:    dstPath,
			Content: strings.TrimRight(moved, "\n") + "\n",
		})
	}

	// (d,e) import adjustments and caller updates are language work the
	// text path cannot fully automate; record what remains.
	names := exportedNames(moved)
	if len(names) > 0 {
		plan.Detail["moved_symbols"] = names
		plan.Warn("manual_followup_needed", refactor.SeverityWarn,
			"imports referencing "+strings.Join(names, ", ")+" must be retargeted to "+
				filepath.Base(dstPath)+"; run rename.plan on remaining references if needed")
	}

	return p.finish(plan)
}

// planConsolidate merges the sources named in detail into the destination
// file: each source's content is appended and the source deleted.
func (p *Planner) planConsolidate(ctx context.Context, req MoveRequest) (*refactor.Plan, error) {
	if req.Destination == "" {
		return nil, refactor.NewError(refactor.KindInvalidRequest, "destination is required")
	}
	srcPath := p.absPath(req.Target.Path)
	dstPath := p.absPath(req.Destination)

	plan := p.newPlan(refactor.FamilyMove, "consolidate", req.Target, req.DryRun)
	plan.Detail["destination"] = dstPath

	srcSnap, srcContent, err := p.snaps.Capture(srcPath)
	if err != nil {
		return nil, refactor.WrapError(refactor.KindInvalidRequest, err, "read %s", srcPath)
	}

	dstSnap, dstContent, err := p.snaps.Capture(dstPath)
	if err != nil {
		return nil, refactor.WrapError(refactor.KindInvalidRequest, err, "read %s", dstPath)
	}

	dstIx := text.NewIndex(dstContent)
	last := dstIx.LineCount() - 1
	endPos := text.Position{Line: last, Character: dstIx.LineUTF16Len(last)}
	plan.Edits.Merge(refactor.EditPlan{
		Edits: []refactor.FileEdits{{Path: dstPath, Edits: []text.Edit{{
			Range:   text.Range{Start: endPos, End: endPos},
			NewText: "\n" + strings.TrimRight(srcContent, "\n") + "\n",
		}}}},
		Snapshots: []refactor.FileSnapshot{dstSnap, srcSnap},
	})
	plan.Edits.Ops = append(plan.Edits.Ops, refactor.FileOp{Kind: refactor.OpDeleteFile, Path: srcPath})

	// References to the absorbed file need retargeting to the destination.
	options := DefaultUpdateOptions()
	if req.Options != nil {
		options = *req.Options
	}
	refEdits, warnings, err := p.refs.UpdateReferences(ctx, srcPath, dstPath, options)
	if err != nil {
		return nil, err
	}
	plan.Edits.Merge(refEdits)
	plan.Warnings = append(plan.Warnings, warnings...)

	return p.finish(plan)
}

// exportedNames extracts declared names from a moved code block
// (best-effort, used for follow-up warnings).
func exportedNames(code string) []string {
	var names []string
	for _, re := range declRes {
		for _, m := range re.FindAllStringSubmatch(code, -1) {
			names = append(names, m[1])
		}
	}
	return names
}
