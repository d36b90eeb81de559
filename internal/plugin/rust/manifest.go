package rust

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/Strob0t/RefactorForge/internal/domain/text"
)

var (
	rePathDep = regexp.MustCompile(`(?m)path\s*=\s*"([^"]*)"`)
	reMembers = regexp.MustCompile(`(?ms)^\s*members\s*=\s*\[(.*?)\]`)
	reString  = regexp.MustCompile(`"([^"]*)"`)
)

// RewriteManifest updates Cargo.toml for a move of oldPath to newPath.
// Covered cases, in both directions across the moved boundary:
//
//   - path dependencies in manifests outside the moved tree that point into
//     it are retargeted;
//   - path dependencies in the moved manifest itself that point outside are
//     recomputed from the manifest's post-move directory;
//   - workspace members naming the moved directory are renamed.
//
// The document is parsed with go-toml to confirm it is valid TOML; the
// edits themselves are byte-precise so formatting and comments survive.
func (p *Plugin) RewriteManifest(content, manifestPath, oldPath, newPath string) (string, int, error) {
	var doc map[string]any
	if err := toml.Unmarshal([]byte(content), &doc); err != nil {
		return content, 0, fmt.Errorf("parse %s: %w", manifestPath, err)
	}

	oldClean := filepath.Clean(oldPath)
	newClean := filepath.Clean(newPath)
	oldDir := filepath.Dir(manifestPath)

	// The manifest may itself live inside the moved tree; if so its
	// directory after the move differs, and outward-pointing deps must be
	// recomputed against it.
	newDir := oldDir
	if tail, inside := pathWithin(oldDir, oldClean); inside {
		newDir = filepath.Join(newClean, tail)
	}

	ix := text.NewIndex(content)
	var edits []text.Edit
	rewriteValue := func(valStart, valEnd int) {
		val := content[valStart:valEnd]
		target := filepath.Clean(filepath.Join(oldDir, filepath.FromSlash(val)))
		retargeted := false
		if tail, inside := pathWithin(target, oldClean); inside {
			target = filepath.Join(newClean, tail)
			retargeted = true
		}
		if !retargeted && newDir == oldDir {
			return // neither endpoint moved
		}
		rel, err := filepath.Rel(newDir, target)
		if err != nil {
			return
		}
		rel = filepath.ToSlash(rel)
		if rel != val {
			edits = append(edits, text.Edit{Range: ix.OffsetsToRange(valStart, valEnd), NewText: rel})
		}
	}

	for _, m := range rePathDep.FindAllStringSubmatchIndex(content, -1) {
		rewriteValue(m[2], m[3])
	}

	if _, hasWorkspace := doc["workspace"]; hasWorkspace {
		if m := reMembers.FindStringSubmatchIndex(content); m != nil {
			listStart := m[2]
			list := content[m[2]:m[3]]
			for _, sm := range reString.FindAllStringSubmatchIndex(list, -1) {
				rewriteValue(listStart+sm[2], listStart+sm[3])
			}
		}
	}

	if len(edits) == 0 {
		return content, 0, nil
	}
	out, err := text.ApplyEdits(content, edits)
	if err != nil {
		return content, 0, err
	}
	return out, len(edits), nil
}

// pathWithin reports whether path is root or inside root, returning the
// relative tail.
func pathWithin(path, root string) (string, bool) {
	path = filepath.Clean(path)
	root = filepath.Clean(root)
	if path == root {
		return ".", true
	}
	if strings.HasPrefix(path, root+string(filepath.Separator)) {
		tail, err := filepath.Rel(root, path)
		if err != nil {
			return "", false
		}
		return tail, true
	}
	return "", false
}
