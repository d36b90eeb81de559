package service

import (
	"context"
	"sort"
	"strings"

	"github.com/Strob0t/RefactorForge/internal/domain/refactor"
	"github.com/Strob0t/RefactorForge/internal/domain/text"
)

// ReorderRequest is the argument shape of reorder.plan.
type ReorderRequest struct {
	Kind   string          `json:"kind"` // parameters, imports, members, statements
	Target refactor.Target `json:"target"`
	// Order is the new ordering as indices into the current order. Required
	// for parameters, members, and statements; ignored for imports (which
	// sort alphabetically).
	Order  []int       `json:"order,omitempty"`
	Scope  *text.Range `json:"scope,omitempty"`
	DryRun bool        `json:"dry_run,omitempty"`
}

// PlanReorder builds a reorder plan.
func (p *Planner) PlanReorder(ctx context.Context, req ReorderRequest) (*refactor.Plan, error) {
	switch req.Kind {
	case "imports":
		return p.planReorderImports(req)
	case "parameters", "members", "statements":
		return p.planReorderByRanges(req)
	default:
		return nil, refactor.NewError(refactor.KindInvalidRequest, "unknown reorder kind %q", req.Kind)
	}
}

// planReorderImports sorts the contiguous leading import block
// alphabetically by module path (stable) and emits one replacement edit
// covering the block.
func (p *Planner) planReorderImports(req ReorderRequest) (*refactor.Plan, error) {
	path := p.absPath(req.Target.Path)
	plan := p.newPlan(refactor.FamilyReorder, "imports", req.Target, req.DryRun)

	pl, err := p.pluginFor(path)
	if err != nil {
		return nil, err
	}

	snap, content, err := p.snaps.Capture(path)
	if err != nil {
		return nil, refactor.WrapError(refactor.KindInvalidRequest, err, "read %s", path)
	}

	records := pl.ParseImports(content)
	if len(records) < 2 {
		plan.Warn("nothing_to_sort", refactor.SeverityInfo, "fewer than two imports")
		return p.finish(plan)
	}

	// The sortable block is the contiguous run of import statements
	// separated by nothing but blank lines, starting from the first import.
	ix := text.NewIndex(content)
	sort.Slice(records, func(i, j int) bool {
		return records[i].Range.Start.Before(records[j].Range.Start)
	})

	blockEnd := 0
	for i, rec := range records {
		if i > 0 {
			between := content[offsetOf(ix, records[i-1].Range.End):offsetOf(ix, rec.Range.Start)]
			if strings.TrimSpace(between) != "" {
				break
			}
		}
		blockEnd = i + 1
	}
	block := records[:blockEnd]
	if len(block) < 2 {
		plan.Warn("nothing_to_sort", refactor.SeverityInfo, "import block has a single statement")
		return p.finish(plan)
	}

	lines := make([]string, len(block))
	for i, rec := range block {
		lines[i] = content[offsetOf(ix, rec.Range.Start):offsetOf(ix, rec.Range.End)]
	}
	order := make([]int, len(block))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return block[order[a]].ModulePath < block[order[b]].ModulePath
	})

	sorted := make([]string, len(block))
	for i, idx := range order {
		sorted[i] = lines[idx]
	}
	replacement := strings.Join(sorted, "\n")
	original := content[offsetOf(ix, block[0].Range.Start):offsetOf(ix, block[len(block)-1].Range.End)]
	if replacement == original {
		plan.Warn("already_sorted", refactor.SeverityInfo, "imports already sorted")
		return p.finish(plan)
	}

	plan.Edits = refactor.EditPlan{
		Edits: []refactor.FileEdits{{Path: path, Edits: []text.Edit{{
			Range: text.Range{
				Start: block[0].Range.Start,
				End:   block[len(block)-1].Range.End,
			},
			NewText: replacement,
		}}}},
		Snapshots: []refactor.FileSnapshot{snap},
	}
	return p.finish(plan)
}

// planReorderByRanges reorders the chunks of scope according to Order.
// Parameters are split on commas; members and statements are split on
// blank lines ("\n\n").
func (p *Planner) planReorderByRanges(req ReorderRequest) (*refactor.Plan, error) {
	if req.Scope == nil {
		return nil, refactor.NewError(refactor.KindInvalidRequest, "reorder %s requires scope", req.Kind)
	}
	if len(req.Order) == 0 {
		return nil, refactor.NewError(refactor.KindInvalidRequest, "order is required")
	}

	path := p.absPath(req.Target.Path)
	plan := p.newPlan(refactor.FamilyReorder, req.Kind, req.Target, req.DryRun)

	snap, content, err := p.snaps.Capture(path)
	if err != nil {
		return nil, refactor.WrapError(refactor.KindInvalidRequest, err, "read %s", path)
	}

	ix := text.NewIndex(content)
	if !ix.InBounds(req.Scope.Start) || !ix.InBounds(req.Scope.End) {
		return nil, refactor.NewError(refactor.KindInvalidEdit, "scope outside %s", path)
	}
	start, end := ix.RangeToOffsets(*req.Scope)
	scope := content[start:end]

	var sep string
	var chunks []string
	if req.Kind == "parameters" {
		sep = ","
		chunks = strings.Split(scope, ",")
	} else {
		sep = "\n\n"
		chunks = strings.Split(scope, "\n\n")
	}

	if len(req.Order) != len(chunks) {
		return nil, refactor.NewError(refactor.KindInvalidRequest,
			"order has %d entries but scope has %d %s", len(req.Order), len(chunks), req.Kind)
	}
	seen := make(map[int]bool, len(req.Order))
	for _, idx := range req.Order {
		if idx < 0 || idx >= len(chunks) || seen[idx] {
			return nil, refactor.NewError(refactor.KindInvalidRequest, "order is not a permutation")
		}
		seen[idx] = true
	}

	reordered := make([]string, len(chunks))
	for i, idx := range req.Order {
		reordered[i] = chunks[idx]
	}

	plan.Edits = refactor.EditPlan{
		Edits: []refactor.FileEdits{{Path: path, Edits: []text.Edit{{
			Range:   *req.Scope,
			NewText: strings.Join(reordered, sep),
		}}}},
		Snapshots: []refactor.FileSnapshot{snap},
	}
	if req.Kind == "parameters" {
		plan.Warn("manual_followup_needed", refactor.SeverityWarn,
			"call sites are not updated by a parameter reorder; update them with the language server")
	}
	return p.finish(plan)
}

func offsetOf(ix *text.Index, pos text.Position) int {
	return ix.PositionToOffset(pos)
}
