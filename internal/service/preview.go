package service

import (
	"fmt"
	"os"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/Strob0t/RefactorForge/internal/domain/refactor"
	"github.com/Strob0t/RefactorForge/internal/domain/text"
)

// attachPreviews renders a unified-style diff per edited file onto a
// dry-run plan so callers can inspect the change without applying it.
func attachPreviews(plan *refactor.Plan) {
	dmp := diffmatchpatch.New()

	for _, fe := range plan.Edits.Edits {
		raw, err := os.ReadFile(fe.Path)
		if err != nil {
			continue
		}
		original := string(raw)
		updated, err := text.ApplyEdits(original, fe.Edits)
		if err != nil {
			continue
		}

		diffs := dmp.DiffMain(original, updated, true)
		dmp.DiffCleanupSemantic(diffs)
		plan.Previews = append(plan.Previews, refactor.FilePreview{
			Path: fe.Path,
			Diff: renderDiff(diffs),
		})
	}

	for _, op := range plan.Edits.Ops {
		switch op.Kind {
		case refactor.OpMoveFile:
			plan.Previews = append(plan.Previews, refactor.FilePreview{
				Path: op.Path,
				Diff: fmt.Sprintf("rename %s -> %s\n", op.Path, op.Dest),
			})
		case refactor.OpCreateFile:
			plan.Previews = append(plan.Previews, refactor.FilePreview{
				Path: op.Path,
				Diff: prefixLines(op.Content, "+"),
			})
		case refactor.OpDeleteFile:
			plan.Previews = append(plan.Previews, refactor.FilePreview{
				Path: op.Path,
				Diff: fmt.Sprintf("delete %s\n", op.Path),
			})
		}
	}
}

// renderDiff flattens a diff into +/-/space prefixed lines, eliding long
// unchanged stretches.
func renderDiff(diffs []diffmatchpatch.Diff) string {
	var b strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			b.WriteString(prefixLines(d.Text, "+"))
		case diffmatchpatch.DiffDelete:
			b.WriteString(prefixLines(d.Text, "-"))
		case diffmatchpatch.DiffEqual:
			lines := strings.Split(d.Text, "\n")
			if len(lines) > 6 {
				b.WriteString(prefixLines(strings.Join(lines[:2], "\n"), " "))
				b.WriteString(fmt.Sprintf("  ... %d unchanged lines ...\n", len(lines)-4))
				b.WriteString(prefixLines(strings.Join(lines[len(lines)-2:], "\n"), " "))
			} else {
				b.WriteString(prefixLines(d.Text, " "))
			}
		}
	}
	return b.String()
}

func prefixLines(s, prefix string) string {
	lines := strings.Split(strings.TrimSuffix(s, "\n"), "\n")
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(prefix)
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}
