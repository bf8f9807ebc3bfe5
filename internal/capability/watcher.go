package capability

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceInterval is the delay after an fsnotify event before reloading,
// so editors that write in several syscalls trigger a single reload.
const debounceInterval = 200 * time.Millisecond

// Watcher hot-reloads the capability table when the backing file changes.
type Watcher struct {
	path     string
	registry *Registry
}

func NewWatcher(path string, registry *Registry) *Watcher {
	return &Watcher{path: path, registry: registry}
}

// Run watches the capability file until ctx is cancelled. The parent
// directory is watched rather than the file itself so atomic
// write-and-rename saves keep being observed.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	var timer *time.Timer
	reload := make(chan struct{}, 1)

	slog.Info("watching capability file", "path", w.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceInterval, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case <-reload:
			caps, err := LoadFile(w.path)
			if err != nil {
				slog.Error("failed to reload capability file", "path", w.path, "error", err)
				continue
			}
			w.registry.Apply(caps)
			slog.Info("capability table reloaded", "path", w.path, "count", len(caps))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("capability watcher error", "error", err)
		}
	}
}
