package config

import (
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the holder whenever its YAML file changes on disk. Editors
// often replace files via rename, so the parent directory is watched and
// events are filtered by name. Returns a stop function.
func Watch(holder *Holder) (func(), error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(holder.yamlPath)
	if dir == "" {
		dir = "."
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, err
	}

	target := filepath.Base(holder.yamlPath)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case event, ok := <-fw.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := holder.Reload(); err != nil {
					slog.Warn("config reload failed, keeping previous config", "error", err)
				} else {
					slog.Info("config reloaded", "path", holder.yamlPath)
				}
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				slog.Debug("config watcher error", "error", err)
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		_ = fw.Close()
	}, nil
}
