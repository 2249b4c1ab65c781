package asset

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounce lets a file finish copying before it is catalogued.
const importDebounce = 500 * time.Millisecond

// WatchImports watches the import folder and registers media files dropped
// into it as local assets. It runs until ctx is cancelled. New
// subdirectories created at runtime are added to the watch list.
func WatchImports(ctx context.Context, service *Service, root string, logger *slog.Logger) error {
	if err := os.MkdirAll(root, 0755); err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("import watcher started", "root", root)

	pending := make(map[string]*time.Timer)
	registered := make(chan string, 64)

	for {
		select {
		case <-ctx.Done():
			for _, t := range pending {
				t.Stop()
			}
			logger.Info("import watcher stopped")
			return nil

		case path := <-registered:
			delete(pending, path)
			if _, err := service.RegisterLocalFile(ctx, path); err != nil {
				logger.Warn("failed to register imported file", "path", path, "error", err)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("failed to watch new dir", "path", ev.Name, "error", addErr)
					}
					continue
				}
			}

			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if _, ok := MediaExtensions[ext(ev.Name)]; !ok {
				continue
			}

			path := ev.Name
			if t, ok := pending[path]; ok {
				t.Reset(importDebounce)
				continue
			}
			pending[path] = time.AfterFunc(importDebounce, func() {
				select {
				case registered <- path:
				case <-ctx.Done():
				}
			})

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("import watcher error", "error", err)
		}
	}
}

func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}

func ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}
