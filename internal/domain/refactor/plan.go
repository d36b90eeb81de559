// Package refactor defines the plan model shared by the planners, the
// reference updater, and the edit applier. A Plan is immutable once built:
// it carries the edits, the pre-edit snapshots used for staleness detection,
// and any warnings the planner attached.
package refactor

import (
	"github.com/Strob0t/RefactorForge/internal/domain/text"
)

// Family identifies which planner produced a Plan.
type Family string

const (
	FamilyRename    Family = "rename"
	FamilyMove      Family = "move"
	FamilyExtract   Family = "extract"
	FamilyInline    Family = "inline"
	FamilyReorder   Family = "reorder"
	FamilyTransform Family = "transform"
	FamilyDelete    Family = "delete"
)

// Severity grades a warning. Error-severity warnings block application.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// Warning is a non-fatal planner finding attached to a Plan.
type Warning struct {
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// FileSnapshot records a file's identity at plan time. Checksum is the hex
// SHA-256 of the content; Version increases monotonically per path within
// one process.
type FileSnapshot struct {
	Path     string `json:"path"`
	Checksum string `json:"checksum"`
	Version  uint64 `json:"version"`
}

// FileOpKind enumerates filesystem operations a plan may carry.
type FileOpKind string

const (
	OpCreateFile FileOpKind = "create_file"
	OpDeleteFile FileOpKind = "delete_file"
	OpMoveFile   FileOpKind = "move_file"
	OpCreateDir  FileOpKind = "create_dir"
	OpDeleteDir  FileOpKind = "delete_dir"
)

// FileOp is a single filesystem operation. Path is the subject; Dest is set
// for moves, Content for creates.
type FileOp struct {
	Kind    FileOpKind `json:"kind"`
	Path    string     `json:"path"`
	Dest    string     `json:"dest,omitempty"`
	Content string     `json:"content,omitempty"`
}

// FileEdits is the per-file text edit set. Edits never overlap.
type FileEdits struct {
	Path  string      `json:"path"`
	Edits []text.Edit `json:"edits"`
}

// EditPlan is the edit portion of a Plan: text edits grouped per file plus
// ordered filesystem operations, with one snapshot per touched file.
type EditPlan struct {
	Edits     []FileEdits    `json:"edits,omitempty"`
	Ops       []FileOp       `json:"ops,omitempty"`
	Snapshots []FileSnapshot `json:"snapshots"`
}

// Merge folds other into p: edits for the same path are concatenated,
// operations are appended, snapshots are deduplicated by path keeping the
// first seen.
func (p *EditPlan) Merge(other EditPlan) {
	byPath := make(map[string]int, len(p.Edits))
	for i := range p.Edits {
		byPath[p.Edits[i].Path] = i
	}
	for _, fe := range other.Edits {
		if i, ok := byPath[fe.Path]; ok {
			p.Edits[i].Edits = append(p.Edits[i].Edits, fe.Edits...)
		} else {
			byPath[fe.Path] = len(p.Edits)
			p.Edits = append(p.Edits, fe)
		}
	}
	p.Ops = append(p.Ops, other.Ops...)

	seen := make(map[string]bool, len(p.Snapshots))
	for _, s := range p.Snapshots {
		seen[s.Path] = true
	}
	for _, s := range other.Snapshots {
		if !seen[s.Path] {
			seen[s.Path] = true
			p.Snapshots = append(p.Snapshots, s)
		}
	}
}

// TouchedPaths returns every path the plan edits, creates, deletes, or
// moves (sources and destinations).
func (p *EditPlan) TouchedPaths() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(path string) {
		if path != "" && !seen[path] {
			seen[path] = true
			out = append(out, path)
		}
	}
	for _, fe := range p.Edits {
		add(fe.Path)
	}
	for _, op := range p.Ops {
		add(op.Path)
		add(op.Dest)
	}
	return out
}

// Target identifies what a plan operates on.
type Target struct {
	Kind     string         `json:"kind"`
	Path     string         `json:"path,omitempty"`
	Position *text.Position `json:"position,omitempty"`
	Name     string         `json:"name,omitempty"`
}

// FilePreview is a unified diff of one file's planned change, carried on
// dry-run plans.
type FilePreview struct {
	Path string `json:"path"`
	Diff string `json:"diff"`
}

// Plan is the immutable result of a planner run. ID is assigned at build
// time; Detail holds the family-specific fields (new name, destination,
// order, ...) echoed back to the caller.
type Plan struct {
	ID       string         `json:"id"`
	Family   Family         `json:"family"`
	Kind     string         `json:"kind"`
	Target   Target         `json:"target"`
	Detail   map[string]any `json:"detail,omitempty"`
	Edits    EditPlan       `json:"edits"`
	Warnings []Warning      `json:"warnings,omitempty"`
	Previews []FilePreview  `json:"previews,omitempty"`
	DryRun   bool           `json:"dry_run,omitempty"`
}

// Blocked reports whether the plan carries an error-severity warning, which
// makes it unapplicable.
func (p *Plan) Blocked() bool {
	for _, w := range p.Warnings {
		if w.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Warn appends a warning to the plan.
func (p *Plan) Warn(code string, severity Severity, message string) {
	p.Warnings = append(p.Warnings, Warning{Code: code, Message: message, Severity: severity})
}
