// Package watcher turns file system events on the dictionary globs into
// debounced rebuild callbacks.
package watcher

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/tliron/commonlog"
)

type subscription struct {
	pattern   string
	base      string
	recursive bool
}

// Watcher subscribes to every configured glob and calls onChange once per
// burst of matching events.
type Watcher struct {
	root     string
	subs     []subscription
	debounce time.Duration
	onChange func()

	fsw  *fsnotify.Watcher
	done chan struct{}

	mu      sync.Mutex
	timer   *time.Timer
	watched map[string]struct{}
	closed  bool
}

// New starts watching. Patterns are slash separated and relative to root.
func New(root string, patterns []string, debounce time.Duration, onChange func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:     root,
		debounce: debounce,
		onChange: onChange,
		fsw:      fsw,
		done:     make(chan struct{}),
		watched:  make(map[string]struct{}),
	}

	for _, p := range patterns {
		p = strings.TrimPrefix(filepath.ToSlash(p), "./")
		base, rest := doublestar.SplitPattern(p)
		if base == "." {
			base = ""
		}
		sub := subscription{
			pattern:   p,
			base:      filepath.Join(root, filepath.FromSlash(base)),
			recursive: strings.Contains(rest, "/"),
		}
		w.subs = append(w.subs, sub)
		w.subscribe(sub)
	}

	go w.loop()
	return w, nil
}

// Notify feeds a change reported by someone else, e.g. the editor, into the
// same debounced trigger. Paths outside the globs are ignored.
func (w *Watcher) Notify(path string) {
	if w.matches(path) {
		w.schedule()
	}
}

// Close disposes every subscription. Pending callbacks are dropped.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()

	err := w.fsw.Close()
	<-w.done
	return err
}

// subscribe watches the base of sub, or its closest existing ancestor when
// the base does not exist yet. It reports whether matching files are
// already present below the base.
func (w *Watcher) subscribe(sub subscription) bool {
	logger := commonlog.GetLoggerf("i18nlens.watcher")

	if isDir(sub.base) {
		if sub.recursive {
			return w.addTree(sub.base)
		}
		w.add(sub.base)
		return w.dirHasMatch(sub.base)
	}

	dir := sub.base
	for dir != w.root && !isDir(dir) {
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	logger.Debugf("'%s' does not exist yet, watching '%s'", sub.base, dir)
	w.add(dir)
	return false
}

func (w *Watcher) add(dir string) {
	logger := commonlog.GetLoggerf("i18nlens.watcher")

	w.mu.Lock()
	if _, ok := w.watched[dir]; ok {
		w.mu.Unlock()
		return
	}
	w.watched[dir] = struct{}{}
	w.mu.Unlock()

	if err := w.fsw.Add(dir); err != nil {
		logger.Warningf("could not watch '%s': %v", dir, err)
		w.mu.Lock()
		delete(w.watched, dir)
		w.mu.Unlock()
	}
}

// addTree watches dir and its subdirectories and reports whether any file
// below it matches a glob.
func (w *Watcher) addTree(dir string) bool {
	found := false
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			w.add(path)
		} else if w.matches(path) {
			found = true
		}
		return nil
	})
	return found
}

func (w *Watcher) loop() {
	logger := commonlog.GetLoggerf("i18nlens.watcher")
	defer close(w.done)

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.handle(ev) {
				logger.Debugf("locale change: %s", ev)
				w.schedule()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if !errors.Is(err, fsnotify.ErrEventOverflow) {
				logger.Warningf("watcher error: %v", err)
				continue
			}
			logger.Warningf("watcher overflow, forcing rebuild")
			w.schedule()
		}
	}
}

// handle updates the watched directories for ev and reports whether ev
// should trigger a rebuild.
func (w *Watcher) handle(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}

	if ev.Has(fsnotify.Create) && isDir(ev.Name) {
		trigger := false
		for _, sub := range w.subs {
			switch {
			case sub.recursive && within(sub.base, ev.Name):
				trigger = w.addTree(ev.Name) || trigger
			case ev.Name == sub.base || within(ev.Name, sub.base):
				trigger = w.subscribe(sub) || trigger
			}
		}
		return trigger
	}

	if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		w.mu.Lock()
		_, wasDir := w.watched[ev.Name]
		for dir := range w.watched {
			if within(ev.Name, dir) {
				delete(w.watched, dir)
			}
		}
		w.mu.Unlock()
		if wasDir {
			for _, sub := range w.subs {
				if within(ev.Name, sub.base) {
					w.subscribe(sub)
				}
			}
			return true
		}
	}

	return w.matches(ev.Name)
}

func (w *Watcher) dirHasMatch(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() && w.matches(filepath.Join(dir, e.Name())) {
			return true
		}
	}
	return false
}

func (w *Watcher) matches(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, sub := range w.subs {
		if ok, _ := doublestar.Match(sub.pattern, rel); ok {
			return true
		}
	}
	return false
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if w.timer == nil {
		w.timer = time.AfterFunc(w.debounce, w.fire)
		return
	}
	w.timer.Reset(w.debounce)
}

func (w *Watcher) fire() {
	w.mu.Lock()
	w.timer = nil
	closed := w.closed
	w.mu.Unlock()
	if !closed && w.onChange != nil {
		w.onChange()
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// within reports whether path is parent or lies below it.
func within(parent, path string) bool {
	rel, err := filepath.Rel(parent, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
