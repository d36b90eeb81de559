package service

import (
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	lspAdapter "github.com/Strob0t/RefactorForge/internal/adapter/lsp"
	lspDomain "github.com/Strob0t/RefactorForge/internal/domain/lsp"
	"github.com/Strob0t/RefactorForge/internal/domain/refactor"
	"github.com/Strob0t/RefactorForge/internal/domain/text"
	"github.com/Strob0t/RefactorForge/internal/plugin"
	"github.com/Strob0t/RefactorForge/internal/workspace"
)

// Planner builds refactoring plans. Every family shares the same pre-steps:
// resolve the target, consult server capabilities, take the LSP path when
// the server supports the operation or the AST-fallback path otherwise,
// then attach snapshots and (for dry runs) previews.
type Planner struct {
	orch     *lspAdapter.Orchestrator
	registry *plugin.Registry
	scanner  *workspace.Scanner
	snaps    *workspace.Snapshots
	refs     *ReferenceUpdater
	timeout  time.Duration
}

// NewPlanner wires a planner over the orchestrator, plugin registry, and
// workspace services.
func NewPlanner(orch *lspAdapter.Orchestrator, registry *plugin.Registry, scanner *workspace.Scanner, snaps *workspace.Snapshots, refs *ReferenceUpdater, timeout time.Duration) *Planner {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Planner{orch: orch, registry: registry, scanner: scanner, snaps: snaps, refs: refs, timeout: timeout}
}

// newPlan allocates a plan shell with a fresh id.
func (p *Planner) newPlan(family refactor.Family, kind string, target refactor.Target, dryRun bool) *refactor.Plan {
	return &refactor.Plan{
		ID:     uuid.NewString(),
		Family: family,
		Kind:   kind,
		Target: target,
		Detail: make(map[string]any),
		DryRun: dryRun,
	}
}

// finish attaches previews to dry-run plans and returns the plan.
func (p *Planner) finish(plan *refactor.Plan) (*refactor.Plan, error) {
	if plan.DryRun {
		attachPreviews(plan)
	}
	return plan, nil
}

// absPath resolves a request path against the workspace root.
func (p *Planner) absPath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(p.scanner.Root(), path)
}

// pluginFor returns the plugin owning the file, or a NoLanguageConfigured
// error.
func (p *Planner) pluginFor(path string) (plugin.Plugin, error) {
	pl, ok := p.registry.ForExtension(extOf(path))
	if !ok {
		return nil, refactor.NewError(refactor.KindNoLanguageConfigured,
			"no plugin registered for .%s files", extOf(path))
	}
	return pl, nil
}

// openForLSP captures the file, opens it on the client (didOpen is
// deduplicated by the client), and returns the snapshot and content.
func (p *Planner) openForLSP(client *lspAdapter.Client, path string) (refactor.FileSnapshot, string, error) {
	snap, content, err := p.snaps.Capture(path)
	if err != nil {
		return refactor.FileSnapshot{}, "", refactor.WrapError(refactor.KindInvalidRequest, err, "read %s", path)
	}
	cfg, err := p.orch.ConfigForFile(path)
	if err != nil {
		return refactor.FileSnapshot{}, "", err
	}
	if err := client.OpenDocument(lspAdapter.PathToURI(path), cfg.Language, content); err != nil {
		return refactor.FileSnapshot{}, "", refactor.WrapError(refactor.KindServerDied, err, "didOpen %s", path)
	}
	return snap, content, nil
}

// warnOnDiagnostics attaches an info warning when the target file has
// error-severity diagnostics at plan time.
func warnOnDiagnostics(plan *refactor.Plan, client *lspAdapter.Client, path string) {
	for _, d := range client.Diagnostics(lspAdapter.PathToURI(path)) {
		if d.Severity == lspDomain.SeverityError {
			plan.Warn("target_has_errors", refactor.SeverityInfo,
				"target file has compiler errors; refactor results may be incomplete")
			return
		}
	}
}

// workspaceEditToPlan converts an LSP WorkspaceEdit into an EditPlan,
// mapping URIs to paths and capturing a snapshot for every edited file.
func (p *Planner) workspaceEditToPlan(we *lspDomain.WorkspaceEdit) (refactor.EditPlan, error) {
	var plan refactor.EditPlan

	addEdits := func(uri string, edits []lspDomain.TextEdit) error {
		if len(edits) == 0 {
			return nil
		}
		path := lspAdapter.URIToPath(uri)
		snap, _, err := p.snaps.Capture(path)
		if err != nil {
			return refactor.WrapError(refactor.KindInternal, err, "snapshot %s", path)
		}
		converted := make([]text.Edit, len(edits))
		for i, e := range edits {
			converted[i] = text.Edit{Range: e.Range, NewText: e.NewText}
		}
		plan.Merge(refactor.EditPlan{
			Edits:     []refactor.FileEdits{{Path: path, Edits: converted}},
			Snapshots: []refactor.FileSnapshot{snap},
		})
		return nil
	}

	for uri, edits := range we.Changes {
		if err := addEdits(uri, edits); err != nil {
			return plan, err
		}
	}

	for _, raw := range we.DocumentChanges {
		// Classify by the "kind" discriminator; its absence means a
		// TextDocumentEdit.
		var probe struct {
			Kind string `json:"kind"`
		}
		if err := json.Unmarshal(raw, &probe); err != nil {
			continue
		}
		switch probe.Kind {
		case "rename":
			var rf lspDomain.RenameFile
			if err := json.Unmarshal(raw, &rf); err == nil {
				plan.Ops = append(plan.Ops, refactor.FileOp{
					Kind: refactor.OpMoveFile,
					Path: lspAdapter.URIToPath(rf.OldURI),
					Dest: lspAdapter.URIToPath(rf.NewURI),
				})
			}
		case "create":
			var cf lspDomain.CreateFile
			if err := json.Unmarshal(raw, &cf); err == nil {
				plan.Ops = append(plan.Ops, refactor.FileOp{
					Kind: refactor.OpCreateFile,
					Path: lspAdapter.URIToPath(cf.URI),
				})
			}
		case "delete":
			var df lspDomain.DeleteFile
			if err := json.Unmarshal(raw, &df); err == nil {
				plan.Ops = append(plan.Ops, refactor.FileOp{
					Kind: refactor.OpDeleteFile,
					Path: lspAdapter.URIToPath(df.URI),
				})
			}
		default:
			var tde lspDomain.TextDocumentEdit
			if err := json.Unmarshal(raw, &tde); err == nil {
				if err := addEdits(tde.TextDocument.URI, tde.Edits); err != nil {
					return plan, err
				}
			}
		}
	}

	return plan, nil
}
