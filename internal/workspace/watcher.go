package workspace

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watcher invalidates snapshot cache entries when files change on disk
// between plan generation and application. Staleness is still enforced by
// checksums at apply time; the watcher just keeps the cache honest.
type Watcher struct {
	fw    *fsnotify.Watcher
	snaps *Snapshots
	done  chan struct{}
}

// NewWatcher starts watching root (non-recursively; changed files are the
// common case at the root, and checksum validation backstops the rest).
func NewWatcher(root string, snaps *Snapshots) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(root); err != nil {
		_ = fw.Close()
		return nil, err
	}

	w := &Watcher{fw: fw, snaps: snaps, done: make(chan struct{})}
	go w.loop()
	return w, nil
}

// WatchDir adds a directory to the watch set.
func (w *Watcher) WatchDir(dir string) error {
	return w.fw.Add(dir)
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.snaps.Invalidate(event.Name)
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			slog.Debug("workspace watcher error", "error", err)
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fw.Close()
}
