package preset

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"promptforge/internal/logging"
)

// Watcher reloads a Library when its backing file changes on disk.
// Editors save in bursts (write, rename, chmod), so events are debounced
// before a reload fires.
type Watcher struct {
	mu       sync.Mutex
	library  *Library
	watcher  *fsnotify.Watcher
	debounce time.Duration
	pending  time.Time
	onReload func()
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
}

// NewWatcher creates a watcher over the library's file. onReload, if
// non-nil, runs after every successful reload.
func NewWatcher(library *Library, onReload func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		library:  library,
		watcher:  fsw,
		debounce: 500 * time.Millisecond,
		onReload: onReload,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the event loop runs in its own
// goroutine until Stop or ctx cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	// Watch the parent directory: editors replace files by rename, which
	// drops a watch placed on the file itself.
	dir := filepath.Dir(w.library.Path())
	if err := w.watcher.Add(dir); err != nil {
		logging.PresetWarn("watch on %s failed: %v", dir, err)
	} else {
		logging.Preset("watching %s for preset changes", dir)
	}

	go w.run(ctx)
	return nil
}

// Stop halts the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		logging.PresetWarn("error closing watcher: %v", err)
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	target := filepath.Clean(w.library.Path())

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			logging.PresetDebug("preset file event: %s", event.Op)
			w.mu.Lock()
			w.pending = time.Now()
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.PresetWarn("watcher error: %v", err)

		case <-ticker.C:
			w.mu.Lock()
			due := !w.pending.IsZero() && time.Since(w.pending) >= w.debounce
			if due {
				w.pending = time.Time{}
			}
			w.mu.Unlock()

			if due {
				w.reload()
			}
		}
	}
}

func (w *Watcher) reload() {
	if err := w.library.Load(); err != nil {
		logging.PresetWarn("reload failed: %v", err)
		return
	}
	logging.Preset("presets reloaded (%d loaded)", w.library.Len())
	if w.onReload != nil {
		w.onReload()
	}
}
