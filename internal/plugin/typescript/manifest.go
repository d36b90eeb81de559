package typescript

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// entry-point fields whose string values are workspace-relative file paths.
var manifestPathFields = []string{"main", "module", "types", "typings", "browser"}

// RewriteManifest updates package.json for a move of oldPath to newPath:
// entry-point fields pointing at the moved file and workspaces entries
// naming the moved directory. Edits go through sjson so the document's
// layout survives.
func (p *Plugin) RewriteManifest(content, manifestPath, oldPath, newPath string) (string, int, error) {
	if !gjson.Valid(content) {
		return content, 0, fmt.Errorf("invalid JSON in %s", manifestPath)
	}

	dir := filepath.Dir(manifestPath)
	count := 0
	out := content
	var err error

	rewrite := func(value string) (string, bool) {
		resolved := filepath.Clean(filepath.Join(dir, filepath.FromSlash(value)))
		oldClean := filepath.Clean(oldPath)
		switch {
		case resolved == oldClean:
			rel, relErr := filepath.Rel(dir, newPath)
			if relErr != nil {
				return "", false
			}
			return keepDotPrefix(value, filepath.ToSlash(rel)), true
		case strings.HasPrefix(resolved, oldClean+string(filepath.Separator)):
			tail, relErr := filepath.Rel(oldClean, resolved)
			if relErr != nil {
				return "", false
			}
			rel, relErr := filepath.Rel(dir, filepath.Join(newPath, tail))
			if relErr != nil {
				return "", false
			}
			return keepDotPrefix(value, filepath.ToSlash(rel)), true
		}
		return "", false
	}

	for _, field := range manifestPathFields {
		v := gjson.Get(out, field)
		if !v.Exists() || v.Type != gjson.String {
			continue
		}
		if newVal, ok := rewrite(v.String()); ok && !sameSpec(newVal, v.String()) {
			out, err = sjson.Set(out, field, newVal)
			if err != nil {
				return content, 0, fmt.Errorf("set %s: %w", field, err)
			}
			count++
		}
	}

	// exports may be a string or a nested object of strings.
	count, out, err = rewriteExports(out, "exports", rewrite, count)
	if err != nil {
		return content, 0, err
	}

	ws := gjson.Get(out, "workspaces")
	if ws.IsArray() {
		for i, member := range ws.Array() {
			if member.Type != gjson.String {
				continue
			}
			if newVal, ok := rewrite(member.String()); ok && !sameSpec(newVal, member.String()) {
				path := fmt.Sprintf("workspaces.%d", i)
				out, err = sjson.Set(out, path, newVal)
				if err != nil {
					return content, 0, fmt.Errorf("set %s: %w", path, err)
				}
				count++
			}
		}
	}

	return out, count, nil
}

// rewriteExports walks the exports field, rewriting every string leaf.
func rewriteExports(doc, path string, rewrite func(string) (string, bool), count int) (int, string, error) {
	v := gjson.Get(doc, path)
	if !v.Exists() {
		return count, doc, nil
	}

	var err error
	switch {
	case v.Type == gjson.String:
		if newVal, ok := rewrite(v.String()); ok && !sameSpec(newVal, v.String()) {
			doc, err = sjson.Set(doc, path, newVal)
			if err != nil {
				return count, doc, fmt.Errorf("set %s: %w", path, err)
			}
			count++
		}
	case v.IsObject():
		for key, child := range v.Map() {
			childPath := path + "." + escapeKey(key)
			if child.Type == gjson.String || child.IsObject() {
				count, doc, err = rewriteExports(doc, childPath, rewrite, count)
				if err != nil {
					return count, doc, err
				}
			}
		}
	}
	return count, doc, nil
}

// escapeKey escapes dots in a JSON key for gjson/sjson path syntax.
func escapeKey(key string) string {
	return strings.ReplaceAll(key, ".", `\.`)
}

// keepDotPrefix applies the original value's ./ style to the rewritten one.
func keepDotPrefix(original, rewritten string) string {
	hasDot := strings.HasPrefix(original, "./")
	switch {
	case hasDot && !strings.HasPrefix(rewritten, "."):
		return "./" + rewritten
	case !hasDot:
		return strings.TrimPrefix(rewritten, "./")
	}
	return rewritten
}
