package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/Strob0t/RefactorForge/internal/domain/refactor"
	"github.com/Strob0t/RefactorForge/internal/domain/text"
)

// InlineRequest is the argument shape of inline.plan.
type InlineRequest struct {
	Kind   string          `json:"kind"` // variable, function, constant, type_alias
	Target refactor.Target `json:"target"`
	DryRun bool            `json:"dry_run,omitempty"`
}

// PlanInline builds an inline plan: the definition's value replaces every
// use site, then the definition is removed. Each candidate site is checked
// for shadowing before substitution; skipped sites become warnings rather
// than wrong edits.
func (p *Planner) PlanInline(ctx context.Context, req InlineRequest) (*refactor.Plan, error) {
	switch req.Kind {
	case "variable", "function", "constant", "type_alias":
	default:
		return nil, refactor.NewError(refactor.KindInvalidRequest, "unknown inline kind %q", req.Kind)
	}
	if req.Target.Name == "" {
		return nil, refactor.NewError(refactor.KindInvalidRequest, "target.name is required")
	}

	path := p.absPath(req.Target.Path)
	plan := p.newPlan(refactor.FamilyInline, req.Kind, req.Target, req.DryRun)

	snap, content, err := p.snaps.Capture(path)
	if err != nil {
		return nil, refactor.WrapError(refactor.KindInvalidRequest, err, "read %s", path)
	}

	def, err := findDefinition(content, req.Kind, req.Target.Name)
	if err != nil {
		return nil, err
	}

	ix := text.NewIndex(content)
	var edits []text.Edit

	// Remove the definition (whole lines).
	defEndLine := def.endLine
	removeEnd := text.Position{Line: defEndLine + 1}
	if defEndLine+1 >= ix.LineCount() {
		removeEnd = text.Position{Line: defEndLine, Character: ix.LineUTF16Len(defEndLine)}
	}
	edits = append(edits, text.Edit{
		Range: text.Range{Start: text.Position{Line: def.startLine}, End: removeEnd},
	})

	// Substitute use sites.
	useRe := regexp.MustCompile(`\b` + regexp.QuoteMeta(req.Target.Name) + `\b`)
	skipped := 0
	for _, m := range useRe.FindAllStringIndex(content, -1) {
		pos := ix.OffsetToPosition(m[0])
		if pos.Line >= def.startLine && pos.Line <= def.endLine {
			continue // the definition itself
		}
		if shadowedAt(content, ix, pos.Line, req.Target.Name, def.startLine) {
			skipped++
			continue
		}
		replacement := def.value
		if req.Kind == "function" {
			// A call site f(x) becomes the body expression only when the
			// function is a single-expression arrow; otherwise skip.
			if !def.expression {
				skipped++
				continue
			}
		}
		edits = append(edits, text.Edit{
			Range:   ix.OffsetsToRange(m[0], m[1]),
			NewText: replacement,
		})
	}

	if len(edits) == 1 {
		plan.Warn("no_use_sites", refactor.SeverityInfo, "no inlinable use sites found for "+req.Target.Name)
	}
	if skipped > 0 {
		plan.Warn("sites_skipped", refactor.SeverityWarn,
			fmt.Sprintf("%d use sites skipped due to shadowing or non-expression bodies", skipped))
	}

	plan.Edits = refactor.EditPlan{
		Edits:     []refactor.FileEdits{{Path: path, Edits: edits}},
		Snapshots: []refactor.FileSnapshot{snap},
	}
	return p.finish(plan)
}

// definition describes a located inline target.
type definition struct {
	startLine  int
	endLine    int
	value      string
	expression bool
}

// findDefinition locates a single-declaration definition of name.
func findDefinition(content, kind, name string) (*definition, error) {
	quoted := regexp.QuoteMeta(name)
	var patterns []*regexp.Regexp
	switch kind {
	case "variable", "constant":
		patterns = []*regexp.Regexp{
			regexp.MustCompile(`(?m)^[ \t]*(?:export\s+)?(?:const|let|var)\s+` + quoted + `\s*(?::[^=]+)?=\s*(.+?);?\s*$`),
		}
	case "type_alias":
		patterns = []*regexp.Regexp{
			regexp.MustCompile(`(?m)^[ \t]*(?:export\s+)?type\s+` + quoted + `\s*=\s*(.+?);?\s*$`),
		}
	case "function":
		patterns = []*regexp.Regexp{
			regexp.MustCompile(`(?m)^[ \t]*(?:export\s+)?const\s+` + quoted + `\s*=\s*\([^)]*\)\s*=>\s*(.+?);?\s*$`),
		}
	}

	ix := text.NewIndex(content)
	for _, re := range patterns {
		if m := re.FindStringSubmatchIndex(content); m != nil {
			startPos := ix.OffsetToPosition(m[0])
			endPos := ix.OffsetToPosition(m[1])
			value := strings.TrimSuffix(strings.TrimSpace(content[m[2]:m[3]]), ";")
			return &definition{
				startLine:  startPos.Line,
				endLine:    endPos.Line,
				value:      value,
				expression: !strings.HasPrefix(value, "{"),
			}, nil
		}
	}
	return nil, refactor.NewError(refactor.KindInvalidRequest,
		"no inlinable %s definition found for %s", kind, name)
}

// shadowedAt reports whether name is re-declared on any line from the top
// of the file through the use site's line, other than the definition line.
// The check is conservative: scopes are not tracked, so a re-declaration
// shadows every later use, even after its enclosing block closes.
func shadowedAt(content string, ix *text.Index, useLine int, name string, defLine int) bool {
	declRe := regexp.MustCompile(`\b(?:const|let|var|function)\s+` + regexp.QuoteMeta(name) + `\b`)
	for line := 0; line <= useLine; line++ {
		if line == defLine {
			continue
		}
		if declRe.MatchString(ix.Line(line)) {
			return true
		}
	}
	return false
}
