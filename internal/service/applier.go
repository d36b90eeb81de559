// Package service implements the use-case layer: the reference updater, the
// edit applier, and the refactoring planners. Services depend on the domain
// packages and on the lsp/plugin adapters; the MCP adapter depends on them.
package service

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Strob0t/RefactorForge/internal/domain/refactor"
	"github.com/Strob0t/RefactorForge/internal/domain/text"
	"github.com/Strob0t/RefactorForge/internal/workspace"
)

// FileStat summarizes the applied change to one file.
type FileStat struct {
	Path    string `json:"path"`
	Edits   int    `json:"edits,omitempty"`
	Action  string `json:"action"` // edited, created, deleted, moved
	MovedTo string `json:"moved_to,omitempty"`
}

// ApplyResult reports a completed apply.
type ApplyResult struct {
	Applied []FileStat `json:"applied_files"`
}

// Applier validates and applies edit plans atomically: either every
// operation lands on disk or none do. One apply runs at a time; plan
// generation is unrestricted.
type Applier struct {
	snaps *workspace.Snapshots
	mu    sync.Mutex // single-writer invariant
}

// NewApplier creates an applier over the snapshot store.
func NewApplier(snaps *workspace.Snapshots) *Applier {
	return &Applier{snaps: snaps}
}

// stagedWrite is one file whose new content is ready to commit.
type stagedWrite struct {
	path     string
	content  string
	editN    int
	original *string // pre-apply content, nil when the file did not exist
}

// Apply validates the plan against disk, stages every change in memory,
// then commits. A failure before commit leaves the disk untouched; a
// failure mid-commit restores every already-committed file from the
// retained originals.
func (a *Applier) Apply(plan *refactor.Plan) (*ApplyResult, error) {
	if plan.Blocked() {
		return nil, refactor.NewError(refactor.KindInvalidRequest, "plan carries blocking error-severity warnings")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.validateSnapshots(&plan.Edits); err != nil {
		return nil, err
	}
	if err := a.validateOps(&plan.Edits); err != nil {
		return nil, err
	}

	staged, err := a.stage(&plan.Edits)
	if err != nil {
		return nil, err
	}

	return a.commit(&plan.Edits, staged)
}

// validateSnapshots recomputes every snapshot checksum from disk.
func (a *Applier) validateSnapshots(ep *refactor.EditPlan) error {
	for _, snap := range ep.Snapshots {
		content, err := os.ReadFile(snap.Path)
		if err != nil {
			return refactor.WrapError(refactor.KindStaleSnapshot, err, "snapshot file unreadable: %s", snap.Path)
		}
		if workspace.Checksum(string(content)) != snap.Checksum {
			return refactor.NewError(refactor.KindStaleSnapshot, "file changed since plan: %s", snap.Path).
				WithDetail("path", snap.Path)
		}
	}
	return nil
}

// validateOps rejects plans with incompatible operations: editing a file
// the same plan deletes, moving a file twice, and the like.
func (a *Applier) validateOps(ep *refactor.EditPlan) error {
	deleted := make(map[string]bool)
	moved := make(map[string]bool)
	for _, op := range ep.Ops {
		switch op.Kind {
		case refactor.OpDeleteFile, refactor.OpDeleteDir:
			deleted[op.Path] = true
		case refactor.OpMoveFile:
			if moved[op.Path] {
				return refactor.NewError(refactor.KindConflictingOperations, "file moved twice: %s", op.Path)
			}
			moved[op.Path] = true
		}
	}
	for _, fe := range ep.Edits {
		if deleted[fe.Path] {
			return refactor.NewError(refactor.KindConflictingOperations,
				"plan both edits and deletes %s", fe.Path)
		}
	}
	return nil
}

// stage applies every text edit to in-memory buffers and validates ranges
// against the actual file contents.
func (a *Applier) stage(ep *refactor.EditPlan) ([]stagedWrite, error) {
	staged := make([]stagedWrite, 0, len(ep.Edits))
	for _, fe := range ep.Edits {
		raw, err := os.ReadFile(fe.Path)
		if err != nil {
			return nil, refactor.WrapError(refactor.KindInvalidEdit, err, "read %s", fe.Path)
		}
		original := string(raw)

		updated, err := text.ApplyEdits(original, fe.Edits)
		if err != nil {
			return nil, refactor.WrapError(refactor.KindInvalidEdit, err, "edits for %s", fe.Path).
				WithDetail("path", fe.Path)
		}
		staged = append(staged, stagedWrite{
			path:     fe.Path,
			content:  updated,
			editN:    len(fe.Edits),
			original: &original,
		})
	}
	return staged, nil
}

// commit writes staged buffers and executes filesystem operations,
// reverting everything on the first failure. Writes go through a temporary
// sibling file, fsync, then an atomic rename over the original.
func (a *Applier) commit(ep *refactor.EditPlan, staged []stagedWrite) (*ApplyResult, error) {
	var result ApplyResult
	var undo []func() error

	fail := func(cause error) (*ApplyResult, error) {
		for i := len(undo) - 1; i >= 0; i-- {
			if err := undo[i](); err != nil {
				slog.Error("rollback step failed", "error", err)
			}
		}
		return nil, cause
	}

	// Directory creations precede the writes that depend on them.
	for _, op := range ep.Ops {
		if op.Kind == refactor.OpCreateDir {
			if err := os.MkdirAll(op.Path, 0o755); err != nil {
				return fail(refactor.WrapError(refactor.KindInternal, err, "create dir %s", op.Path))
			}
			path := op.Path
			undo = append(undo, func() error { return os.Remove(path) })
			result.Applied = append(result.Applied, FileStat{Path: path, Action: "created"})
		}
	}

	for _, sw := range staged {
		if err := writeAtomic(sw.path, sw.content); err != nil {
			return fail(refactor.WrapError(refactor.KindInternal, err, "write %s", sw.path))
		}
		sw := sw
		undo = append(undo, func() error { return writeAtomic(sw.path, *sw.original) })
		result.Applied = append(result.Applied, FileStat{Path: sw.path, Edits: sw.editN, Action: "edited"})
	}

	for _, op := range ep.Ops {
		switch op.Kind {
		case refactor.OpCreateDir:
			// Handled above.
		case refactor.OpCreateFile:
			if err := os.MkdirAll(filepath.Dir(op.Path), 0o755); err != nil {
				return fail(refactor.WrapError(refactor.KindInternal, err, "create dir for %s", op.Path))
			}
			if err := writeAtomic(op.Path, op.Content); err != nil {
				return fail(refactor.WrapError(refactor.KindInternal, err, "create %s", op.Path))
			}
			path := op.Path
			undo = append(undo, func() error { return os.Remove(path) })
			result.Applied = append(result.Applied, FileStat{Path: path, Action: "created"})

		case refactor.OpDeleteFile:
			raw, err := os.ReadFile(op.Path)
			if err != nil {
				return fail(refactor.WrapError(refactor.KindInternal, err, "read for delete %s", op.Path))
			}
			if err := os.Remove(op.Path); err != nil {
				return fail(refactor.WrapError(refactor.KindInternal, err, "delete %s", op.Path))
			}
			path, content := op.Path, string(raw)
			undo = append(undo, func() error { return writeAtomic(path, content) })
			result.Applied = append(result.Applied, FileStat{Path: path, Action: "deleted"})

		case refactor.OpMoveFile:
			if err := os.MkdirAll(filepath.Dir(op.Dest), 0o755); err != nil {
				return fail(refactor.WrapError(refactor.KindInternal, err, "create dir for %s", op.Dest))
			}
			if err := renameMaybeCaseOnly(op.Path, op.Dest); err != nil {
				return fail(refactor.WrapError(refactor.KindInternal, err, "move %s to %s", op.Path, op.Dest))
			}
			src, dst := op.Path, op.Dest
			undo = append(undo, func() error { return os.Rename(dst, src) })
			result.Applied = append(result.Applied, FileStat{Path: src, Action: "moved", MovedTo: dst})

		case refactor.OpDeleteDir:
			// Only empty directories are deleted; content removal must be
			// explicit in the plan.
			if err := os.Remove(op.Path); err != nil && !os.IsNotExist(err) {
				return fail(refactor.WrapError(refactor.KindInternal, err, "delete dir %s", op.Path))
			}
			path := op.Path
			undo = append(undo, func() error { return os.MkdirAll(path, 0o755) })
			result.Applied = append(result.Applied, FileStat{Path: path, Action: "deleted"})
		}
	}

	slog.Info("plan applied", "plan_id", planID(ep), "files", len(result.Applied))
	return &result, nil
}

// planID is best-effort logging context from the snapshots.
func planID(ep *refactor.EditPlan) string {
	if len(ep.Snapshots) > 0 {
		return fmt.Sprintf("%d-files", len(ep.Snapshots))
	}
	return "no-snapshots"
}

// renameMaybeCaseOnly renames src to dst, routing case-only renames through
// a temporary intermediate so they succeed on case-insensitive filesystems.
func renameMaybeCaseOnly(src, dst string) error {
	if src != dst && strings.EqualFold(src, dst) {
		tmp := filepath.Join(filepath.Dir(src), ".tmp-"+filepath.Base(src))
		if err := os.Rename(src, tmp); err != nil {
			return err
		}
		if err := os.Rename(tmp, dst); err != nil {
			// Try to restore the original name.
			_ = os.Rename(tmp, src)
			return err
		}
		return nil
	}
	return os.Rename(src, dst)
}

// writeAtomic writes content to a temporary sibling, fsyncs, and renames it
// over path.
func writeAtomic(path, content string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".refactorforge-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.WriteString(content); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
