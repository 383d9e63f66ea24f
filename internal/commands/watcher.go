package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period after the last change before a watcher reacts.
const DefaultDebounce = 250 * time.Millisecond

// Watcher clears a loader's caches and notifies a callback when command
// files are created, written, removed or renamed.
type Watcher struct {
	loader   *Loader
	debounce time.Duration
	onChange func()
	fsw      *fsnotify.Watcher
}

// NewWatcher starts watching the loader's directory. onChange may be nil.
func NewWatcher(loader *Loader, debounce time.Duration, onChange func()) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsw.Add(loader.Dir()); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", loader.Dir(), err)
	}

	return &Watcher{loader: loader, debounce: debounce, onChange: onChange, fsw: fsw}, nil
}

// Run handles events until ctx is done, then releases the watcher.
func (w *Watcher) Run(ctx context.Context) {
	defer func() { _ = w.fsw.Close() }()

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	slog.Info("Watching commands directory", "dir", w.loader.Dir(), "debounce", w.debounce)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !relevant(event) {
				continue
			}
			slog.Debug("Command file changed", "path", event.Name, "op", event.Op.String())

			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.fire)
			mu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("Commands watcher error", "error", err)
		}
	}
}

func (w *Watcher) fire() {
	w.loader.ClearCache()
	slog.Info("Command files changed, caches cleared", "dir", w.loader.Dir())
	if w.onChange != nil {
		w.onChange()
	}
}

func relevant(event fsnotify.Event) bool {
	if !strings.HasSuffix(event.Name, commandExt) {
		return false
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}
