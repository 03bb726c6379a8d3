package corpus

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/searchd/internal/logging"
)

// Watcher rebuilds the cached snapshot when the corpus file changes on
// disk. It watches the parent directory rather than the file itself so
// that atomic editor saves (write to temp file, rename over) keep being
// observed, and debounces bursts of events into a single reload.
type Watcher struct {
	controller *Controller
	watcher    *fsnotify.Watcher
	debounce   time.Duration
	logger     logging.Logger

	mutex sync.Mutex
	timer *time.Timer
}

// NewWatcher creates a watcher for the controller's corpus file.
func NewWatcher(controller *Controller, debounce time.Duration, logger logging.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logging.NopLogger{}
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		controller: controller,
		watcher:    fsWatcher,
		debounce:   debounce,
		logger:     logger.WithComponent("watcher"),
	}

	if err := fsWatcher.Add(filepath.Dir(controller.Path())); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	return w, nil
}

// Start begins watching. Non-blocking; the watch loop exits when the
// context is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	go w.watchLoop(ctx)
}

// Stop stops the watcher and releases its resources.
func (w *Watcher) Stop() error {
	w.mutex.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mutex.Unlock()

	return w.watcher.Close()
}

func (w *Watcher) watchLoop(ctx context.Context) {
	target := filepath.Clean(w.controller.Path())

	for {
		select {
		case <-ctx.Done():
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
			w.scheduleReload(ctx)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn(ctx, err, "corpus watch error")
		}
	}
}

// scheduleReload resets the debounce timer; the reload fires once the file
// has been quiet for the debounce interval.
func (w *Watcher) scheduleReload(ctx context.Context) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}

	w.timer = time.AfterFunc(w.debounce, func() {
		if err := w.controller.Reload(); err != nil {
			w.logger.Warn(ctx, err, "corpus reload failed; previous snapshot stays published")
		}
	})
}
