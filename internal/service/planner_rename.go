package service

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"

	lspAdapter "github.com/Strob0t/RefactorForge/internal/adapter/lsp"
	lspDomain "github.com/Strob0t/RefactorForge/internal/domain/lsp"
	"github.com/Strob0t/RefactorForge/internal/domain/refactor"
	"github.com/Strob0t/RefactorForge/internal/domain/text"
)

// RenameRequest is the argument shape of rename.plan.
type RenameRequest struct {
	Target  refactor.Target `json:"target"`
	NewName string          `json:"new_name"`
	DryRun  bool            `json:"dry_run,omitempty"`
	Options *UpdateOptions  `json:"options,omitempty"`
}

var identRe = regexp.MustCompile(`^[\p{L}_$][\p{L}\p{N}_$]*$`)

// PlanRename builds a rename plan. Kinds: symbol, parameter, type, and
// module go through the LSP rename request; file and directory emit the
// filesystem move plus a reference update.
func (p *Planner) PlanRename(ctx context.Context, req RenameRequest) (*refactor.Plan, error) {
	if req.NewName == "" {
		return nil, refactor.NewError(refactor.KindInvalidRequest, "new_name is required")
	}

	switch req.Target.Kind {
	case "symbol", "parameter", "type", "module":
		return p.planSymbolRename(ctx, req)
	case "file":
		return p.planFileRename(ctx, req)
	case "directory":
		return p.planDirectoryRename(ctx, req)
	default:
		return nil, refactor.NewError(refactor.KindInvalidRequest, "unknown rename kind %q", req.Target.Kind)
	}
}

// planSymbolRename asks the server for textDocument/rename and converts the
// returned WorkspaceEdit. When the server returns nothing but the AST
// fallback finds references, the divergence is recorded as a warning.
func (p *Planner) planSymbolRename(ctx context.Context, req RenameRequest) (*refactor.Plan, error) {
	if req.Target.Position == nil {
		return nil, refactor.NewError(refactor.KindInvalidRequest, "rename %s requires target.position", req.Target.Kind)
	}
	if !identRe.MatchString(req.NewName) {
		return nil, refactor.NewError(refactor.KindInvalidRequest, "%q is not a valid identifier", req.NewName)
	}

	path := p.absPath(req.Target.Path)
	plan := p.newPlan(refactor.FamilyRename, req.Target.Kind, req.Target, req.DryRun)
	plan.Detail["new_name"] = req.NewName

	params := map[string]any{
		"textDocument": map[string]any{"uri": lspAdapter.PathToURI(path)},
		"position":     req.Target.Position,
		"newName":      req.NewName,
	}

	var we lspDomain.WorkspaceEdit
	gotLSPEdit := false
	err := p.orch.WithRetry(ctx, path, func(client *lspAdapter.Client) error {
		if !client.Capabilities().SupportsRename() {
			return nil // fall through to AST below
		}
		if _, _, err := p.openForLSP(client, path); err != nil {
			return err
		}
		warnOnDiagnostics(plan, client, path)

		result, err := client.Request(ctx, "textDocument/rename", params, p.timeout)
		if err != nil {
			return err
		}
		if len(result) > 0 && string(result) != "null" {
			if err := json.Unmarshal(result, &we); err != nil {
				return refactor.WrapError(refactor.KindInternal, err, "unmarshal WorkspaceEdit")
			}
			gotLSPEdit = len(we.Changes) > 0 || len(we.DocumentChanges) > 0
		}
		return nil
	})
	if err != nil {
		// No server for the language (or it cannot start) leaves the AST
		// path; transport-level failures surface.
		switch refactor.KindOf(err) {
		case refactor.KindNoLanguageConfigured, refactor.KindServerStartFailed:
			plan.Warn("no_language_server", refactor.SeverityInfo,
				"no language server available; rename computed by text scan")
		default:
			return nil, err
		}
	}

	if gotLSPEdit {
		edits, err := p.workspaceEditToPlan(&we)
		if err != nil {
			return nil, err
		}
		plan.Edits = edits
		return p.finish(plan)
	}

	// AST fallback: whole-word occurrences of the old identifier across the
	// owning language's files. The server saw no references; if the scan
	// finds some, record the divergence.
	fallback, oldName, err := p.astSymbolRename(ctx, path, *req.Target.Position, req.NewName)
	if err != nil {
		return nil, err
	}
	plan.Edits = fallback
	if len(fallback.Edits) > 0 {
		plan.Warn("lsp_ast_divergence", refactor.SeverityWarn,
			"language server returned no edits; references found by text scan for "+oldName)
	} else {
		plan.Warn("no_references", refactor.SeverityInfo, "no references found for symbol")
	}
	return p.finish(plan)
}

// astSymbolRename renames by whole-word scan: the identifier under the
// target position is replaced across every file of the same language.
func (p *Planner) astSymbolRename(ctx context.Context, path string, pos text.Position, newName string) (refactor.EditPlan, string, error) {
	var plan refactor.EditPlan

	_, content, err := p.snaps.Capture(path)
	if err != nil {
		return plan, "", refactor.WrapError(refactor.KindInvalidRequest, err, "read %s", path)
	}

	oldName := identifierAt(content, pos)
	if oldName == "" {
		return plan, "", refactor.NewError(refactor.KindInvalidRequest,
			"no identifier at %d:%d in %s", pos.Line, pos.Character, path)
	}

	pl, err := p.pluginFor(path)
	if err != nil {
		return plan, oldName, err
	}

	wordRe := regexp.MustCompile(`\b` + regexp.QuoteMeta(oldName) + `\b`)
	err = p.scanner.Walk(pl.Extensions(), func(candidate string) error {
		snap, c, readErr := p.snaps.Capture(candidate)
		if readErr != nil {
			return nil
		}
		ix := text.NewIndex(c)
		var edits []text.Edit
		for _, m := range wordRe.FindAllStringIndex(c, -1) {
			edits = append(edits, text.Edit{
				Range:   ix.OffsetsToRange(m[0], m[1]),
				NewText: newName,
			})
		}
		if len(edits) > 0 {
			plan.Merge(refactor.EditPlan{
				Edits:     []refactor.FileEdits{{Path: candidate, Edits: edits}},
				Snapshots: []refactor.FileSnapshot{snap},
			})
		}
		return ctx.Err()
	})
	return plan, oldName, err
}

// identifierAt extracts the identifier covering pos.
func identifierAt(content string, pos text.Position) string {
	ix := text.NewIndex(content)
	line := ix.Line(pos.Line)
	off := ix.PositionToOffset(pos) - ix.PositionToOffset(text.Position{Line: pos.Line})
	if off > len(line) {
		return ""
	}

	isWord := func(b byte) bool {
		return b == '_' || b == '$' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
	}
	start, end := off, off
	for start > 0 && isWord(line[start-1]) {
		start--
	}
	for end < len(line) && isWord(line[end]) {
		end++
	}
	if start == end {
		return ""
	}
	return line[start:end]
}

// planFileRename emits the move, merges the server's willRenameFiles edits
// when supported, and runs the reference updater.
func (p *Planner) planFileRename(ctx context.Context, req RenameRequest) (*refactor.Plan, error) {
	oldPath := p.absPath(req.Target.Path)
	newPath := filepath.Join(filepath.Dir(oldPath), req.NewName)

	plan := p.newPlan(refactor.FamilyRename, "file", req.Target, req.DryRun)
	plan.Detail["new_path"] = newPath

	return p.planPathMove(ctx, plan, oldPath, newPath, req.Options)
}

// planDirectoryRename handles both renames in place (new_name is a bare
// name) and relocations (new_name is a path).
func (p *Planner) planDirectoryRename(ctx context.Context, req RenameRequest) (*refactor.Plan, error) {
	oldPath := p.absPath(req.Target.Path)
	var newPath string
	if filepath.Dir(req.NewName) == "." {
		newPath = filepath.Join(filepath.Dir(oldPath), req.NewName)
	} else {
		newPath = p.absPath(req.NewName)
	}

	plan := p.newPlan(refactor.FamilyRename, "directory", req.Target, req.DryRun)
	plan.Detail["new_path"] = newPath

	return p.planPathMove(ctx, plan, oldPath, newPath, req.Options)
}

// planPathMove is the shared file/directory relocation pipeline: LSP
// willRenameFiles edits, the filesystem move, the moved file's own rebased
// imports, and the workspace-wide reference update.
func (p *Planner) planPathMove(ctx context.Context, plan *refactor.Plan, oldPath, newPath string, opts *UpdateOptions) (*refactor.Plan, error) {
	options := DefaultUpdateOptions()
	if opts != nil {
		options = *opts
	}

	// workspace/willRenameFiles, when the server supports it. Failures
	// degrade to a warning; the AST reference update still runs.
	if client, err := p.orch.ClientForFile(ctx, oldPath); err == nil {
		if client.Capabilities().SupportsWillRenameFiles() {
			params := map[string]any{"files": []map[string]any{{
				"oldUri": lspAdapter.PathToURI(oldPath),
				"newUri": lspAdapter.PathToURI(newPath),
			}}}
			result, reqErr := client.Request(ctx, "workspace/willRenameFiles", params, p.timeout)
			if reqErr != nil {
				plan.Warn("will_rename_failed", refactor.SeverityWarn, reqErr.Error())
			} else if len(result) > 0 && string(result) != "null" {
				var we lspDomain.WorkspaceEdit
				if json.Unmarshal(result, &we) == nil {
					lspEdits, convErr := p.workspaceEditToPlan(&we)
					if convErr == nil {
						plan.Edits.Merge(lspEdits)
					}
				}
			}
		}
	}

	// Reference updates across the workspace.
	refEdits, warnings, err := p.refs.UpdateReferences(ctx, oldPath, newPath, options)
	if err != nil {
		return nil, err
	}
	plan.Edits.Merge(refEdits)
	plan.Warnings = append(plan.Warnings, warnings...)

	// The moved file's own imports keep pointing at their old targets.
	if isFile(oldPath) {
		if pl, plErr := p.pluginFor(oldPath); plErr == nil {
			snap, content, readErr := p.snaps.Capture(oldPath)
			if readErr == nil {
				rebased, n := pl.RebaseImports(content, oldPath, newPath)
				if n > 0 {
					ix := text.NewIndex(content)
					last := ix.LineCount() - 1
					plan.Edits.Merge(refactor.EditPlan{
						Edits: []refactor.FileEdits{{Path: oldPath, Edits: []text.Edit{{
							Range: text.Range{
								End: text.Position{Line: last, Character: ix.LineUTF16Len(last)},
							},
							NewText: rebased,
						}}}},
						Snapshots: []refactor.FileSnapshot{snap},
					})
				}
			}
		}
	}

	plan.Edits.Ops = append(plan.Edits.Ops, refactor.FileOp{
		Kind: refactor.OpMoveFile,
		Path: oldPath,
		Dest: newPath,
	})

	return p.finish(plan)
}

func isFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}
