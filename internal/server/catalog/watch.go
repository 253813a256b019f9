package catalog

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/dmitrijs2005/datakeeper/internal/logging"
	"github.com/fsnotify/fsnotify"
)

// Reloader is the part of Resolver the watcher needs.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Watch reloads r whenever the catalog file at path changes, until ctx is
// done. The parent directory is watched so editors that replace the file by
// renaming are picked up too.
func Watch(ctx context.Context, path string, r Reloader, logger logging.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	logger = logger.With("module", "catalog_watch")
	logger.Info(ctx, "watching catalog", "path", abs)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !shouldReload(ev, abs) {
				continue
			}
			if err := r.Reload(ctx); err != nil {
				logger.Warn(ctx, "catalog reload after change failed", "error", err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn(ctx, "watcher error", "error", err)
		}
	}
}

// shouldReload filters events down to content changes of the catalog file.
func shouldReload(ev fsnotify.Event, path string) bool {
	if filepath.Clean(ev.Name) != path {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}
