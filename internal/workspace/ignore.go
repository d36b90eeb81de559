// Package workspace provides file access for the planners and the reference
// updater: ignore-rule-aware lazy walks, checksummed snapshots with an
// in-process cache, and change watching for cache invalidation.
package workspace

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// alwaysIgnored are directory names skipped regardless of ignore files.
var alwaysIgnored = map[string]bool{
	".git":         true,
	"node_modules": true,
	"target":       true,
	".hg":          true,
	".svn":         true,
}

// IgnoreRules holds gitignore-style patterns loaded from the workspace root.
type IgnoreRules struct {
	patterns []string
}

// LoadIgnoreRules reads .gitignore at root. A missing file yields empty
// rules, not an error.
func LoadIgnoreRules(root string) (*IgnoreRules, error) {
	f, err := os.Open(filepath.Join(root, ".gitignore"))
	if err != nil {
		return &IgnoreRules{}, nil
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		patterns = append(patterns, line)
	}
	return &IgnoreRules{patterns: patterns}, scanner.Err()
}

// Match reports whether the workspace-relative path is ignored.
func (ig *IgnoreRules) Match(relPath string, isDir bool) bool {
	relPath = filepath.ToSlash(relPath)
	parts := strings.Split(relPath, "/")
	if alwaysIgnored[parts[len(parts)-1]] && isDir {
		return true
	}

	for _, pattern := range ig.patterns {
		pattern = strings.TrimSuffix(filepath.ToSlash(pattern), "/")
		if strings.Contains(pattern, "/") {
			// Anchored pattern: match against the whole relative path.
			if ok, _ := filepath.Match(strings.TrimPrefix(pattern, "/"), relPath); ok {
				return true
			}
			continue
		}
		// Bare pattern: match any path component.
		for _, part := range parts {
			if ok, _ := filepath.Match(pattern, part); ok {
				return true
			}
		}
	}
	return false
}
