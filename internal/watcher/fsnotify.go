package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches a directory tree with fsnotify and emits debounced batches.
type Watcher struct {
	fsw       *fsnotify.Watcher
	debouncer *Debouncer
	opts      Options

	events chan []FileEvent
	errors chan error
	stopCh chan struct{}

	mu      sync.RWMutex
	root    string
	stopped bool
}

// New creates a watcher. Call Start to begin watching.
func New(opts Options) (*Watcher, error) {
	opts = opts.WithDefaults()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		fsw:       fsw,
		debouncer: NewDebouncer(opts.Debounce, opts.EventBufferSize),
		opts:      opts,
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}
	w.opts.IgnoreDirs = make([]string, 0, len(opts.IgnoreDirs))
	for _, dir := range opts.IgnoreDirs {
		if abs, err := filepath.Abs(dir); err == nil {
			w.opts.IgnoreDirs = append(w.opts.IgnoreDirs, abs)
		}
	}

	go w.forward()
	return w, nil
}

// Start registers root and every subdirectory, then blocks delivering
// events until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context, root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("stat watch root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch root is not a directory: %s", abs)
	}

	w.mu.Lock()
	w.root = abs
	w.mu.Unlock()

	if _, err := w.addRecursive(abs); err != nil {
		return fmt.Errorf("add directories to watcher: %w", err)
	}
	slog.Info("watcher_started", slog.String("root", abs), slog.Duration("debounce", w.opts.Debounce))

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	if w.ignored(path) {
		return
	}

	isDir := false
	if info, err := os.Stat(path); err == nil {
		isDir = info.IsDir()
	}

	var op Operation
	switch {
	case ev.Op&fsnotify.Create != 0:
		op = OpCreate
	case ev.Op&fsnotify.Write != 0:
		op = OpModify
	case ev.Op&fsnotify.Remove != 0:
		op = OpDelete
	case ev.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		return
	}

	if isDir {
		if op == OpCreate {
			// Files may land in a new directory before it is registered.
			files, err := w.addRecursive(path)
			if err != nil {
				w.emitError(err)
			}
			for _, f := range files {
				w.add(f, OpCreate)
			}
		}
		return
	}

	w.add(path, op)
}

func (w *Watcher) add(path string, op Operation) {
	if w.opts.Filter != nil && !w.opts.Filter(path) {
		return
	}
	w.debouncer.Add(FileEvent{Path: path, Operation: op, Timestamp: time.Now()})
}

// addRecursive watches dir and its subdirectories and returns the files found.
func (w *Watcher) addRecursive(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Warn("watcher_walk_skipped", slog.String("path", path), slog.String("error", err.Error()))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			files = append(files, path)
			return nil
		}
		if path != dir && w.ignored(path) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
	return files, err
}

// ignored reports whether path has a hidden component below the root or
// sits under a configured ignore directory.
func (w *Watcher) ignored(path string) bool {
	for _, dir := range w.opts.IgnoreDirs {
		if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return true
		}
	}

	w.mu.RLock()
	root := w.root
	w.mu.RUnlock()

	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return false
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if strings.HasPrefix(part, ".") && part != ".." {
			return true
		}
	}
	return false
}

// forward moves debounced batches to Events and closes Events when done.
func (w *Watcher) forward() {
	defer close(w.events)
	for {
		select {
		case <-w.stopCh:
			return
		case batch, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			select {
			case w.events <- batch:
			case <-w.stopCh:
				return
			}
		}
	}
}

func (w *Watcher) emitError(err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}
	select {
	case w.errors <- err:
	default:
	}
}

// Stop releases the fsnotify watcher and closes both channels.
// Safe to call multiple times.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.debouncer.Stop()
	close(w.errors)
	return w.fsw.Close()
}

// Events returns the channel of debounced batches.
func (w *Watcher) Events() <-chan []FileEvent {
	return w.events
}

// Errors returns non-fatal watcher errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Root returns the watched directory.
func (w *Watcher) Root() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.root
}
