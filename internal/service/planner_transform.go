package service

import (
	"context"
	"regexp"

	"github.com/Strob0t/RefactorForge/internal/domain/refactor"
	"github.com/Strob0t/RefactorForge/internal/domain/text"
)

// TransformRequest is the argument shape of transform.plan.
type TransformRequest struct {
	Kind   string          `json:"kind"` // to_async, to_arrow_function
	Target refactor.Target `json:"target"`
	DryRun bool            `json:"dry_run,omitempty"`
}

var (
	reFuncDecl  = regexp.MustCompile(`^(\s*)(export\s+)?(async\s+)?function\s+([\w$]+)\s*\(([^)]*)\)`)
	reArrowable = regexp.MustCompile(`^(\s*)(export\s+)?function\s+([\w$]+)\s*\(([^)]*)\)\s*(\{)`)
)

// PlanTransform builds a structural transform plan. Transforms are pure
// text edits over the declaration named by the target.
func (p *Planner) PlanTransform(ctx context.Context, req TransformRequest) (*refactor.Plan, error) {
	switch req.Kind {
	case "to_async", "to_arrow_function":
	default:
		return nil, refactor.NewError(refactor.KindInvalidRequest, "unknown transform kind %q", req.Kind)
	}
	if req.Target.Position == nil {
		return nil, refactor.NewError(refactor.KindInvalidRequest, "transform requires target.position")
	}

	path := p.absPath(req.Target.Path)
	plan := p.newPlan(refactor.FamilyTransform, req.Kind, req.Target, req.DryRun)

	snap, content, err := p.snaps.Capture(path)
	if err != nil {
		return nil, refactor.WrapError(refactor.KindInvalidRequest, err, "read %s", path)
	}

	ix := text.NewIndex(content)
	lineNum := req.Target.Position.Line
	line := ix.Line(lineNum)

	var edit *text.Edit
	switch req.Kind {
	case "to_async":
		m := reFuncDecl.FindStringSubmatchIndex(line)
		if m == nil {
			return nil, refactor.NewError(refactor.KindInvalidRequest, "no function declaration at line %d", lineNum)
		}
		if m[6] >= 0 { // already async
			plan.Warn("already_async", refactor.SeverityInfo, "function is already async")
			return p.finish(plan)
		}
		// Insert "async " before the function keyword: after "export " when
		// present, otherwise after the indent.
		insertCol := m[3]
		if m[4] >= 0 {
			insertCol = m[5]
		}
		pos := text.Position{Line: lineNum, Character: byteColToUTF16(line, insertCol)}
		edit = &text.Edit{Range: text.Range{Start: pos, End: pos}, NewText: "async "}

	case "to_arrow_function":
		m := reArrowable.FindStringSubmatchIndex(line)
		if m == nil {
			return nil, refactor.NewError(refactor.KindInvalidRequest,
				"no convertible function declaration at line %d", lineNum)
		}
		exported := ""
		if m[4] >= 0 {
			exported = "export "
		}
		indent := line[m[2]:m[3]]
		name := line[m[6]:m[7]]
		args := line[m[8]:m[9]]
		replacement := indent + exported + "const " + name + " = (" + args + ") => {"
		edit = &text.Edit{
			Range: text.Range{
				Start: text.Position{Line: lineNum},
				End:   text.Position{Line: lineNum, Character: ix.LineUTF16Len(lineNum)},
			},
			NewText: replacement[:len(replacement)-1] + line[m[10]:],
		}
		plan.Warn("manual_followup_needed", refactor.SeverityInfo,
			"hoisting semantics change when a declaration becomes a const arrow function")
	}

	plan.Edits = refactor.EditPlan{
		Edits:     []refactor.FileEdits{{Path: path, Edits: []text.Edit{*edit}}},
		Snapshots: []refactor.FileSnapshot{snap},
	}
	return p.finish(plan)
}

// byteColToUTF16 converts a byte column within line to UTF-16 units.
func byteColToUTF16(line string, byteCol int) int {
	ix := text.NewIndex(line)
	return ix.OffsetToPosition(byteCol).Character
}
