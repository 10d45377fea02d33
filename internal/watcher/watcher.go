// Package watcher watches the inbox folder of each library with fsnotify and
// reports debounced file changes.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/quire/pkg/utils"
)

const defaultDebounce = 400 * time.Millisecond

// InboxDir returns the folder watched for a library directory.
func InboxDir(library string) string {
	return filepath.Join(library, "inbox")
}

// Op is the kind of change reported for a file.
type Op int

const (
	// Changed means the file was created or written.
	Changed Op = iota
	// Removed means the file was deleted or moved away.
	Removed
)

func (o Op) String() string {
	if o == Removed {
		return "removed"
	}
	return "changed"
}

// Event is a file change inside a library inbox.
type Event struct {
	Library string
	Path    string
	Op      Op
}

// Watcher watches library inboxes and calls its handler on file changes.
type Watcher struct {
	handler     func(Event)
	extensions  []string
	recursive   bool
	debounce    time.Duration
	logger      *zap.Logger
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	inboxes     map[string]string   // inbox -> library
	watched     map[string][]string // inbox -> directories added to fsnotify
	debounceMap map[string]*time.Timer
	done        chan struct{}
	started     bool
	stopOnce    sync.Once
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.logger = utils.OrNop(l) }
}

// WithExtensions restricts reported files to the given extensions. Empty means all.
func WithExtensions(exts ...string) Option {
	return func(w *Watcher) { w.extensions = exts }
}

// WithRecursive also watches subfolders of each inbox.
func WithRecursive(recursive bool) Option {
	return func(w *Watcher) { w.recursive = recursive }
}

// WithDebounce sets how long a file must be quiet before it is reported.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// New creates a watcher that reports to handler. Call Start, then AddLibrary.
func New(handler func(Event), opts ...Option) *Watcher {
	w := &Watcher{
		handler:     handler,
		debounce:    defaultDebounce,
		logger:      zap.NewNop(),
		inboxes:     make(map[string]string),
		watched:     make(map[string][]string),
		debounceMap: make(map[string]*time.Timer),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start starts watching. It runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = fsw
	w.started = true
	w.logger.Debug("watcher starting", zap.Strings("extensions", w.extensions), zap.Bool("recursive", w.recursive))
	go w.run(ctx, fsw)
	return nil
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher) {
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
			w.handleEvent(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	library, ok := w.libraryOf(ev.Name)
	if !ok {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", ev.Name))
	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		info, err := os.Stat(ev.Name)
		if err == nil && info.IsDir() {
			w.handleNewDirectory(library, ev.Name)
			return
		}
		if err == nil && w.matchExtension(ev.Name) {
			w.debounceChange(library, ev.Name)
		}
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.cancelDebounce(ev.Name)
		if w.matchExtension(ev.Name) {
			w.handler(Event{Library: library, Path: ev.Name, Op: Removed})
		}
	}
}

// handleNewDirectory watches a folder moved or created inside an inbox and
// reports the files already in it.
func (w *Watcher) handleNewDirectory(library, dir string) {
	w.mu.Lock()
	if w.watcher == nil || !w.recursive {
		w.mu.Unlock()
		return
	}
	inbox := w.inboxOfLocked(dir)
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Debug("watcher failed to add directory", zap.String("path", path), zap.Error(err))
			return nil
		}
		w.watched[inbox] = append(w.watched[inbox], path)
		return nil
	})
	w.mu.Unlock()
	w.syncDirectory(library, dir)
}

func (w *Watcher) libraryOf(path string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	inbox := w.inboxOfLocked(path)
	if inbox == "" {
		return "", false
	}
	return w.inboxes[inbox], true
}

func (w *Watcher) inboxOfLocked(path string) string {
	clean := filepath.Clean(path)
	for inbox := range w.inboxes {
		if inbox == clean || inDir(inbox, clean) {
			return inbox
		}
	}
	return ""
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (w *Watcher) matchExtension(path string) bool {
	return matchExtension(path, w.extensions)
}

func matchExtension(path string, extensions []string) bool {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return false
	}
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

func (w *Watcher) debounceChange(library, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
	}
	w.debounceMap[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.debounceMap, path)
		w.mu.Unlock()
		w.logger.Debug("watcher reporting change (debounced)", zap.String("path", path))
		w.handler(Event{Library: library, Path: path, Op: Changed})
	})
}

func (w *Watcher) cancelDebounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
		delete(w.debounceMap, path)
	}
}

// AddLibrary starts watching the inbox of a library directory, creating it
// when missing. With syncExisting, files already in the inbox are reported.
func (w *Watcher) AddLibrary(library string, syncExisting bool) error {
	abs, err := filepath.Abs(library)
	if err != nil {
		return err
	}
	inbox := InboxDir(abs)
	w.mu.Lock()
	if w.watcher == nil {
		w.mu.Unlock()
		return nil
	}
	if _, ok := w.inboxes[inbox]; ok {
		w.mu.Unlock()
		return nil
	}
	if err := w.addInboxLocked(inbox); err != nil {
		w.mu.Unlock()
		return err
	}
	w.inboxes[inbox] = library
	w.mu.Unlock()
	w.logger.Debug("watcher library added", zap.String("library", library), zap.Bool("sync_existing", syncExisting))
	if syncExisting {
		go w.syncDirectory(library, inbox)
	}
	return nil
}

func (w *Watcher) addInboxLocked(inbox string) error {
	if err := os.MkdirAll(inbox, 0755); err != nil {
		return err
	}
	var paths []string
	err := filepath.WalkDir(inbox, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != inbox && !w.recursive {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return err
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		for _, p := range paths {
			_ = w.watcher.Remove(p)
		}
		return err
	}
	w.watched[inbox] = paths
	return nil
}

func (w *Watcher) syncDirectory(library, root string) {
	w.logger.Debug("watcher syncing directory", zap.String("root", root))
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && !w.recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if w.matchExtension(path) {
			w.handler(Event{Library: library, Path: path, Op: Changed})
		}
		return nil
	})
}

// RemoveLibrary stops watching a library inbox. Documents already imported stay.
func (w *Watcher) RemoveLibrary(library string) error {
	abs, err := filepath.Abs(library)
	if err != nil {
		return err
	}
	inbox := InboxDir(abs)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher == nil {
		return nil
	}
	for _, p := range w.watched[inbox] {
		_ = w.watcher.Remove(p)
	}
	delete(w.watched, inbox)
	delete(w.inboxes, inbox)
	w.logger.Debug("watcher library removed", zap.String("library", library))
	return nil
}

// Libraries returns the watched library directories.
func (w *Watcher) Libraries() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	libs := make([]string, 0, len(w.inboxes))
	for _, lib := range w.inboxes {
		libs = append(libs, lib)
	}
	return libs
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	for path, t := range w.debounceMap {
		t.Stop()
		delete(w.debounceMap, path)
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
