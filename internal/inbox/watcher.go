// Package inbox turns journal files in watched directories into entries.
package inbox

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// Handler receives debounced file events for matching files.
type Handler interface {
	FileChanged(path string)
	FileRemoved(path string)
}

// Watcher watches inbox directories and forwards file changes to a Handler.
type Watcher struct {
	handler    Handler
	extensions []string
	recursive  bool
	debounce   time.Duration
	logger     *zap.Logger

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	roots   map[string][]string // root -> directories added to fsw for it
	order   []string            // roots in insertion order
	pending map[string]*time.Timer
	done    chan struct{}
	stop    sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the logger for watch events.
func WithWatcherLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long a file must be quiet before FileChanged fires.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// NewWatcher creates a watcher. An empty extensions list matches every file.
func NewWatcher(handler Handler, extensions []string, recursive bool, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		handler:    handler,
		extensions: extensions,
		recursive:  recursive,
		debounce:   defaultDebounce,
		logger:     zap.NewNop(),
		roots:      make(map[string][]string),
		pending:    make(map[string]*time.Timer),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching the given roots. It returns once the roots are registered;
// events are processed until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context, roots []string) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.fsw = fsw
	for _, root := range roots {
		if err := w.addRootLocked(root); err != nil {
			w.fsw = nil
			w.mu.Unlock()
			_ = fsw.Close()
			return err
		}
	}
	w.mu.Unlock()
	w.logger.Debug("inbox watcher started",
		zap.Strings("roots", roots),
		zap.Strings("extensions", w.extensions),
		zap.Bool("recursive", w.recursive))

	go w.loop(ctx, fsw)
	return nil
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("inbox watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	if !w.watched(path) {
		return
	}
	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			w.addSubdirectory(path)
			return
		}
		if w.matches(path) {
			w.schedule(path)
		}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		w.cancel(path)
		if w.matches(path) {
			w.handler.FileRemoved(path)
		}
	}
}

// addSubdirectory watches a directory created under a root and imports what it already holds.
func (w *Watcher) addSubdirectory(dir string) {
	if !w.recursive {
		return
	}
	w.mu.Lock()
	if w.fsw == nil {
		w.mu.Unlock()
		return
	}
	root := w.rootOfLocked(dir)
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(p); err != nil {
			w.logger.Warn("inbox watcher failed to add directory", zap.String("path", p), zap.Error(err))
			return nil
		}
		w.roots[root] = append(w.roots[root], p)
		return nil
	})
	w.mu.Unlock()
	w.scan(dir)
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.handler.FileChanged(path)
	})
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

// AddDirectory starts watching root, creating it if missing. When scanExisting is set,
// files already in the directory are reported through FileChanged.
func (w *Watcher) AddDirectory(root string, scanExisting bool) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	w.mu.Lock()
	if _, ok := w.roots[abs]; ok {
		w.mu.Unlock()
		return nil
	}
	if w.fsw == nil {
		w.mu.Unlock()
		return errNotStarted
	}
	err = w.addRootLocked(abs)
	w.mu.Unlock()
	if err != nil {
		return err
	}
	w.logger.Info("Inbox directory added", zap.String("path", abs))
	if scanExisting {
		go w.scan(abs)
	}
	return nil
}

// RemoveDirectory stops watching root. Entries imported from it are kept.
func (w *Watcher) RemoveDirectory(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	dirs, ok := w.roots[abs]
	if !ok {
		return nil
	}
	if w.fsw != nil {
		for _, d := range dirs {
			_ = w.fsw.Remove(d)
		}
	}
	delete(w.roots, abs)
	w.order = slices.DeleteFunc(w.order, func(r string) bool { return r == abs })
	w.logger.Info("Inbox directory removed", zap.String("path", abs))
	return nil
}

// Directories returns the watched roots in the order they were added.
func (w *Watcher) Directories() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.order)
}

// ScanAll reports every matching file under every root through FileChanged.
func (w *Watcher) ScanAll() {
	for _, root := range w.Directories() {
		w.scan(root)
	}
}

// Stop stops watching and cancels pending events.
func (w *Watcher) Stop() {
	w.mu.Lock()
	for p, t := range w.pending {
		t.Stop()
		delete(w.pending, p)
	}
	fsw := w.fsw
	w.fsw = nil
	w.mu.Unlock()
	if fsw != nil {
		_ = fsw.Close()
	}
	w.stop.Do(func() { close(w.done) })
}

func (w *Watcher) addRootLocked(root string) error {
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, 0755); err != nil {
		return err
	}
	var dirs []string
	if w.recursive {
		err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				return nil
			}
			if err := w.fsw.Add(p); err != nil {
				return err
			}
			dirs = append(dirs, p)
			return nil
		})
		if err != nil {
			return err
		}
	} else {
		if err := w.fsw.Add(root); err != nil {
			return err
		}
		dirs = append(dirs, root)
	}
	w.roots[root] = dirs
	w.order = append(w.order, root)
	return nil
}

func (w *Watcher) scan(dir string) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p != dir && !w.recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if w.matches(p) {
			w.handler.FileChanged(p)
		}
		return nil
	})
}

func (w *Watcher) watched(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rootOfLocked(path) != ""
}

func (w *Watcher) rootOfLocked(path string) string {
	for _, root := range w.order {
		if inDir(root, path) {
			return root
		}
	}
	return ""
}

func (w *Watcher) matches(path string) bool {
	return matchExtension(path, w.extensions)
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}
