package text

import (
	"fmt"
	"sort"
)

// Edit replaces the text covered by Range with NewText. Insertions use an
// empty range; deletions use empty NewText.
type Edit struct {
	Range   Range  `json:"range"`
	NewText string `json:"newText"`
}

// ValidateEdits checks an edit set against the document index: every range
// must be well-ordered, within document bounds, and no two ranges may
// overlap.
func ValidateEdits(ix *Index, edits []Edit) error {
	sorted := make([]Edit, len(edits))
	copy(sorted, edits)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Range.Start.Before(sorted[j].Range.Start)
	})

	for i, e := range sorted {
		if !e.Range.Valid() {
			return fmt.Errorf("edit %d: range end %d:%d precedes start %d:%d",
				i, e.Range.End.Line, e.Range.End.Character, e.Range.Start.Line, e.Range.Start.Character)
		}
		if !ix.InBounds(e.Range.Start) || !ix.InBounds(e.Range.End) {
			return fmt.Errorf("edit %d: range %d:%d-%d:%d outside document bounds",
				i, e.Range.Start.Line, e.Range.Start.Character, e.Range.End.Line, e.Range.End.Character)
		}
		if i > 0 && sorted[i-1].Range.Overlaps(e.Range) {
			return fmt.Errorf("edit %d overlaps edit %d", i, i-1)
		}
	}
	return nil
}

// ApplyEdits applies a non-overlapping edit set to content and returns the
// result. Edits are applied in descending start order so earlier ranges stay
// valid while later ones are rewritten.
func ApplyEdits(content string, edits []Edit) (string, error) {
	ix := NewIndex(content)
	if err := ValidateEdits(ix, edits); err != nil {
		return "", err
	}

	sorted := make([]Edit, len(edits))
	copy(sorted, edits)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[j].Range.Start.Before(sorted[i].Range.Start)
	})

	out := content
	for _, e := range sorted {
		start, end := ix.RangeToOffsets(e.Range)
		out = out[:start] + e.NewText + out[end:]
	}
	return out, nil
}
