package daemon

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for events to settle
const DefaultDebounce = 200 * time.Millisecond

// Watcher watches a root recursively and delivers debounced batches of
// changed paths, relative to the root and slash-separated
type Watcher struct {
	root     string
	debounce time.Duration
	skipDir  func(rel string) bool
	log      *slog.Logger

	fs      *fsnotify.Watcher
	batches chan []string
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// NewWatcher creates a watcher for root. skipDir prunes directories that
// are not worth watching; it may be nil.
func NewWatcher(root string, debounce time.Duration, skipDir func(rel string) bool, log *slog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if skipDir == nil {
		skipDir = func(string) bool { return false }
	}
	if log == nil {
		log = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		root:     root,
		debounce: debounce,
		skipDir:  skipDir,
		log:      log,
		fs:       fsw,
		batches:  make(chan []string),
		done:     make(chan struct{}),
	}, nil
}

// Start adds watches for every directory under the root and starts
// delivering batches
func (w *Watcher) Start() error {
	if _, err := w.addTree(w.root); err != nil {
		return err
	}
	w.wg.Add(1)
	go w.run()
	return nil
}

// Batches delivers sorted sets of changed paths. It is closed by Close.
func (w *Watcher) Batches() <-chan []string { return w.batches }

// Close stops watching and waits for the event loop to exit
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.fs.Close()
		w.wg.Wait()
	})
	return err
}

func (w *Watcher) rel(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// addTree watches dir and its subdirectories and returns the files found,
// which matter when dir was just created
func (w *Watcher) addTree(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		rel, ok := w.rel(path)
		if !d.IsDir() {
			if ok {
				files = append(files, rel)
			}
			return nil
		}
		if ok && w.skipDir(rel) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			w.log.Warn("cannot watch directory", "path", path, "error", err)
		}
		return nil
	})
	return files, err
}

// changed maps an event onto the paths it touches
func (w *Watcher) changed(ev fsnotify.Event) []string {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return nil
	}
	rel, ok := w.rel(ev.Name)
	if !ok {
		return nil
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if w.skipDir(rel) {
				return nil
			}
			files, err := w.addTree(ev.Name)
			if err != nil {
				w.log.Warn("cannot watch new directory", "path", rel, "error", err)
			}
			return files
		}
	}
	return []string{rel}
}

// run collects events until they settle for the debounce period, then
// hands the accumulated set to the consumer. Events keep accumulating
// while the consumer is busy.
func (w *Watcher) run() {
	defer w.wg.Done()
	defer close(w.batches)

	pending := make(map[string]struct{})
	var ready []string
	var out chan []string
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	var fire <-chan time.Time

	for {
		select {
		case <-w.done:
			timer.Stop()
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			paths := w.changed(ev)
			if len(paths) == 0 {
				continue
			}
			for _, p := range paths {
				pending[p] = struct{}{}
			}
			timer.Reset(w.debounce)
			fire = timer.C
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Warn("file watch error", "error", err)
		case <-fire:
			fire = nil
			for p := range pending {
				ready = append(ready, p)
			}
			clear(pending)
			slices.Sort(ready)
			ready = slices.Compact(ready)
			out = w.batches
		case out <- ready:
			w.log.Debug("file changes", "paths", len(ready))
			ready = nil
			out = nil
		}
	}
}
