package configstore

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce coalesces the burst of events a single save produces.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reports edits to the documents of a FileStore made outside this
// process (an operator editing settings.json by hand, a deploy script).
//
// The directory is watched rather than the files: atomic writers replace the
// file, which drops a per-file watch.
type Watcher struct {
	log      *zap.Logger
	dir      string
	names    []string
	debounce time.Duration
	onChange func(name string)

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	timer   *time.Timer
	pending string

	done chan struct{}
}

// NewWatcher watches dir for changes to the named files and calls onChange
// once per burst of events. onChange runs on a timer goroutine.
func NewWatcher(log *zap.Logger, dir string, names []string, onChange func(name string)) (*Watcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	return &Watcher{
		log:      log.Named("watcher"),
		dir:      dir,
		names:    names,
		debounce: DefaultDebounce,
		onChange: onChange,
		fsw:      fsw,
		done:     make(chan struct{}),
	}, nil
}

// Run processes events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.done)
	defer w.stopTimer()

	w.log.Info("watching config files", zap.String("dir", w.dir), zap.Strings("files", w.names))

	for {
		select {
		case <-ctx.Done():
			_ = w.fsw.Close()
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			name := filepath.Base(ev.Name)
			if !slices.Contains(w.names, name) {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				w.log.Debug("config file changed", zap.String("file", name), zap.String("op", ev.Op.String()))
				w.schedule(name)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) schedule(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending = name
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		name := w.pending
		w.timer = nil
		w.mu.Unlock()

		w.onChange(name)
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// Close stops watching; a running Run returns shortly after.
func (w *Watcher) Close() error { return w.fsw.Close() }

// Done is closed when Run returns.
func (w *Watcher) Done() <-chan struct{} { return w.done }
