package workspace

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Scanner walks the workspace honouring ignore rules and filtering by
// extension. Walks are lazy: the visit callback is invoked as entries are
// discovered, so callers can stop early by returning an error.
type Scanner struct {
	root   string
	ignore *IgnoreRules
}

// NewScanner creates a scanner rooted at root.
func NewScanner(root string) (*Scanner, error) {
	ig, err := LoadIgnoreRules(root)
	if err != nil {
		return nil, err
	}
	return &Scanner{root: root, ignore: ig}, nil
}

// Root returns the workspace root.
func (s *Scanner) Root() string { return s.root }

// Walk visits every non-ignored file whose extension (without dot) is in
// exts. An empty exts visits every file. filepath.SkipAll from visit stops
// the walk cleanly.
func (s *Scanner) Walk(exts []string, visit func(path string) error) error {
	extSet := make(map[string]bool, len(exts))
	for _, e := range exts {
		extSet[strings.ToLower(e)] = true
	}

	return filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		rel, relErr := filepath.Rel(s.root, path)
		if relErr != nil || rel == "." {
			return nil
		}
		if s.ignore.Match(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if len(extSet) > 0 {
			ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
			if !extSet[ext] {
				return nil
			}
		}
		return visit(path)
	})
}

// WalkFilenames visits every non-ignored file whose base name is in names
// (exact match). Used for manifest discovery.
func (s *Scanner) WalkFilenames(names []string, visit func(path string) error) error {
	nameSet := make(map[string]bool, len(names))
	for _, n := range names {
		nameSet[n] = true
	}
	return filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(s.root, path)
		if relErr != nil || rel == "." {
			return nil
		}
		if s.ignore.Match(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && nameSet[d.Name()] {
			return visit(path)
		}
		return nil
	})
}

// ForEachParallel runs fn over paths with at most workers concurrent
// invocations, bounded by a weighted semaphore. The first error cancels the
// remaining work.
func ForEachParallel(ctx context.Context, paths []string, workers int64, fn func(ctx context.Context, path string) error) error {
	if workers < 1 {
		workers = 1
	}
	sem := semaphore.NewWeighted(workers)
	g, ctx := errgroup.WithContext(ctx)
	for _, path := range paths {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			return fn(ctx, path)
		})
	}
	return g.Wait()
}
