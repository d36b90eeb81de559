package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	lspAdapter "github.com/Strob0t/RefactorForge/internal/adapter/lsp"
	lspDomain "github.com/Strob0t/RefactorForge/internal/domain/lsp"
	"github.com/Strob0t/RefactorForge/internal/domain/refactor"
	"github.com/Strob0t/RefactorForge/internal/domain/text"
)

// declRes match top-level declarations; group 1 is the declared name.
var declRes = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^\s*(?:export\s+)?(?:async\s+)?function\s+([\w$]+)`),
	regexp.MustCompile(`(?m)^\s*(?:export\s+)?(?:const|let|var)\s+([\w$]+)`),
	regexp.MustCompile(`(?m)^\s*(?:export\s+)?(?:class|interface|type|enum)\s+([\w$]+)`),
	regexp.MustCompile(`(?m)^\s*(?:pub\s+)?(?:fn|struct|enum|trait|mod)\s+(\w+)`),
}

// ExtractRequest is the argument shape of extract.plan.
type ExtractRequest struct {
	Kind        string          `json:"kind"` // function, variable, constant, type_alias, interface, class, module
	Target      refactor.Target `json:"target"`
	SourceRange text.Range      `json:"source_range"`
	NewName     string          `json:"new_name"`
	DryRun      bool            `json:"dry_run,omitempty"`
}

// PlanExtract builds an extract plan. The server's extract code actions are
// preferred; when none applies, the AST path constructs the new definition
// above the enclosing statement and replaces the range with a call or
// reference.
func (p *Planner) PlanExtract(ctx context.Context, req ExtractRequest) (*refactor.Plan, error) {
	switch req.Kind {
	case "function", "variable", "constant", "type_alias", "interface", "class", "module":
	default:
		return nil, refactor.NewError(refactor.KindInvalidRequest, "unknown extract kind %q", req.Kind)
	}
	if req.NewName == "" {
		return nil, refactor.NewError(refactor.KindInvalidRequest, "new_name is required")
	}

	path := p.absPath(req.Target.Path)
	plan := p.newPlan(refactor.FamilyExtract, req.Kind, req.Target, req.DryRun)
	plan.Detail["new_name"] = req.NewName

	if edits, ok := p.tryExtractCodeAction(ctx, path, req); ok {
		plan.Edits = edits
		return p.finish(plan)
	}

	snap, content, err := p.snaps.Capture(path)
	if err != nil {
		return nil, refactor.WrapError(refactor.KindInvalidRequest, err, "read %s", path)
	}

	ix := text.NewIndex(content)
	if !ix.InBounds(req.SourceRange.Start) || !ix.InBounds(req.SourceRange.End) {
		return nil, refactor.NewError(refactor.KindInvalidEdit, "source_range outside %s", path)
	}
	start, end := ix.RangeToOffsets(req.SourceRange)
	selected := content[start:end]
	if strings.TrimSpace(selected) == "" {
		return nil, refactor.NewError(refactor.KindInvalidRequest, "source_range selects no code")
	}

	decl, replacement := buildExtraction(req.Kind, req.NewName, selected)

	// The new definition lands at the start of the selection's first line;
	// the selection itself becomes the reference.
	insertAt := text.Position{Line: req.SourceRange.Start.Line}
	plan.Edits = refactor.EditPlan{
		Edits: []refactor.FileEdits{{Path: path, Edits: []text.Edit{
			{Range: text.Range{Start: insertAt, End: insertAt}, NewText: decl},
			{Range: req.SourceRange, NewText: replacement},
		}}},
		Snapshots: []refactor.FileSnapshot{snap},
	}
	plan.Warn("extract_ast_path", refactor.SeverityInfo,
		"extraction computed without language server assistance; verify free variables")
	return p.finish(plan)
}

// tryExtractCodeAction asks the server for extract refactorings over the
// range and converts the first matching action that carries an edit.
func (p *Planner) tryExtractCodeAction(ctx context.Context, path string, req ExtractRequest) (refactor.EditPlan, bool) {
	var out refactor.EditPlan
	ok := false

	_ = p.orch.WithRetry(ctx, path, func(client *lspAdapter.Client) error {
		if !client.Capabilities().SupportsCodeActions() {
			return nil
		}
		if _, _, err := p.openForLSP(client, path); err != nil {
			return err
		}

		params := map[string]any{
			"textDocument": map[string]any{"uri": lspAdapter.PathToURI(path)},
			"range":        req.SourceRange,
			"context":      map[string]any{"only": []string{"refactor.extract"}, "diagnostics": []any{}},
		}
		result, err := client.Request(ctx, "textDocument/codeAction", params, p.timeout)
		if err != nil || len(result) == 0 || string(result) == "null" {
			return nil
		}

		var actions []struct {
			Title string                   `json:"title"`
			Kind  string                   `json:"kind"`
			Edit  *lspDomain.WorkspaceEdit `json:"edit"`
		}
		if err := json.Unmarshal(result, &actions); err != nil {
			return nil
		}
		for _, action := range actions {
			if action.Edit == nil || !strings.HasPrefix(action.Kind, "refactor.extract") {
				continue
			}
			converted, convErr := p.workspaceEditToPlan(action.Edit)
			if convErr != nil {
				continue
			}
			out = converted
			ok = true
			return nil
		}
		return nil
	})

	return out, ok
}

// buildExtraction renders the new declaration and the replacement text for
// the selected range.
func buildExtraction(kind, name, selected string) (decl, replacement string) {
	body := strings.TrimSpace(selected)
	switch kind {
	case "function":
		decl = fmt.Sprintf("function %s() {\n\treturn %s;\n}\n", name, body)
		replacement = name + "()"
	case "variable", "constant":
		kw := "let"
		if kind == "constant" {
			kw = "const"
		}
		decl = fmt.Sprintf("%s %s = %s;\n", kw, name, body)
		replacement = name
	case "type_alias":
		decl = fmt.Sprintf("type %s = %s;\n", name, body)
		replacement = name
	case "interface":
		decl = fmt.Sprintf("interface %s %s\n", name, body)
		replacement = name
	case "class":
		decl = fmt.Sprintf("class %s %s\n", name, body)
		replacement = name
	case "module":
		decl = fmt.Sprintf("namespace %s {\n%s\n}\n", name, body)
		replacement = name
	}
	return decl, replacement
}
