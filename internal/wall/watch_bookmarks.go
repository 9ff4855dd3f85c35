package wall

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/you/streamwall/internal/core"
)

// WatchBookmarksFile reloads the bookmark list whenever the JSON file at
// path changes, so an external editor can manage bookmarks while the wall
// runs. Events are debounced; the watcher stops when ctx is cancelled.
func (w *Wall) WatchBookmarksFile(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		debounce := time.NewTimer(0)
		if !debounce.Stop() {
			<-debounce.C
		}
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
					if err := watcher.Add(ev.Name); err != nil {
						slog.Error("bookmarks watch re-add", "path", ev.Name, "err", err)
					}
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					if !debounce.Stop() {
						select {
						case <-debounce.C:
						default:
						}
					}
					debounce.Reset(250 * time.Millisecond)
				}
			case <-debounce.C:
				if err := w.reloadBookmarksFile(ctx, path); err != nil {
					slog.Error("bookmarks reload failed", "path", path, "err", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("bookmarks watch error", "err", err)
			}
		}
	}()
	return nil
}

func (w *Wall) reloadBookmarksFile(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var bookmarks []core.Bookmark
	if err := json.Unmarshal(raw, &bookmarks); err != nil {
		return err
	}
	w.SetBookmarks(ctx, bookmarks)
	slog.Info("bookmarks reloaded", "path", path, "count", len(bookmarks))
	return nil
}
