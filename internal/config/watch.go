package config

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchItems reloads the items file whenever it changes and hands the new
// list to onChange. A file that fails to load is logged and ignored, leaving
// the previous list in place. It runs until ctx is cancelled.
//
// The parent directory is watched rather than the file, so saves that write
// a temporary file and rename it over path keep being seen.
func WatchItems(ctx context.Context, path string, logger *slog.Logger, onChange func(Items)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return err
	}

	logger = logger.With("component", "items_watcher")
	logger.Info("watching items file", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			items, err := LoadItems(path)
			if err != nil {
				logger.Error("items reload failed, keeping previous list", "path", path, "error", err)
				continue
			}

			logger.Info("items reloaded", "path", path, "count", items.Len())
			onChange(items)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher error", "error", err)
		}
	}
}
