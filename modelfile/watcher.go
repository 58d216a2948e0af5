package modelfile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/liamcoop/dmn/rules"
)

// Target receives reloaded models. *rules.Engine satisfies it.
type Target interface {
	PutModel(m *rules.DecisionModel) error
	DeleteModel(id string) error
}

// Watcher reloads a model directory into a Target when its files change.
// Bursts of events are collapsed into one reload after the debounce
// interval.
type Watcher struct {
	dir      string
	target   Target
	debounce time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	loaded map[string]bool // model IDs that came from dir
	timer  *time.Timer
}

// NewWatcher creates a watcher for dir. A zero debounce uses 100ms.
func NewWatcher(dir string, target Target, debounce time.Duration, logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		dir:      dir,
		target:   target,
		debounce: debounce,
		logger:   logger.With("component", "modelfile.watcher"),
		loaded:   make(map[string]bool),
	}
}

// Reload loads dir and applies it to the target. Models that failed to
// load keep their previous version; models whose files were removed are
// deleted.
func (w *Watcher) Reload() error {
	models, loadErr := LoadDir(w.dir)

	w.mu.Lock()
	defer w.mu.Unlock()

	current := make(map[string]bool, len(models))
	var applyErr error
	for _, m := range models {
		current[m.ID] = true
		if err := w.target.PutModel(m); err != nil {
			applyErr = fmt.Errorf("model %s: %w", m.ID, err)
			w.logger.Error("failed to apply model", "model_id", m.ID, "error", err)
			continue
		}
		w.loaded[m.ID] = true
	}

	// keep models whose file is present but broken
	if loadErr == nil {
		for id := range w.loaded {
			if current[id] {
				continue
			}
			if err := w.target.DeleteModel(id); err != nil {
				w.logger.Warn("failed to delete removed model", "model_id", id, "error", err)
			}
			delete(w.loaded, id)
		}
	}

	w.logger.Info("models reloaded", "dir", w.dir, "count", len(models))
	if loadErr != nil {
		return loadErr
	}
	return applyErr
}

// Watch blocks until ctx is cancelled, reloading after file changes
func (w *Watcher) Watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %q: %w", w.dir, err)
	}
	w.logger.Info("model watcher started", "dir", w.dir, "debounce_ms", w.debounce.Milliseconds())

	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			w.logger.Info("model watcher stopped")
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !isModelFile(event.Name) || (event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write)) {
				continue
			}
			w.logger.Debug("model file event", "path", event.Name, "op", event.Op.String())
			w.schedule()

		case err, ok := <-fw.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("model watcher error", "error", err)
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if err := w.Reload(); err != nil {
			w.logger.Error("model reload failed", "error", err)
		}
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}
