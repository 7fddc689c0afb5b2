// Package watch reports changes to a set of source files using OS-native
// notifications.
package watch

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Op describes a set of file operations.
type Op uint32

const (
	OpCreate Op = 1 << iota
	OpWrite
	OpRemove
	OpRename
	OpChmod
)

func (op Op) String() string {
	var parts []string
	for _, n := range []struct {
		op   Op
		name string
	}{{OpCreate, "CREATE"}, {OpWrite, "WRITE"}, {OpRemove, "REMOVE"}, {OpRename, "RENAME"}, {OpChmod, "CHMOD"}} {
		if op&n.op != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "NONE"
	}
	return strings.Join(parts, "|")
}

// Event is a change to a watched file.
type Event struct {
	Path string
	Op   Op
}

// Watcher watches individual files. The containing directories are what
// is registered with the OS, so files replaced by an editor's
// rename-on-save keep being reported.
type Watcher struct {
	w   *fsnotify.Watcher
	evC chan Event
	erC chan error

	mu    sync.Mutex
	files map[string]bool
	dirs  map[string]int
}

// New creates a watcher with no files.
func New() (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	fw := &Watcher{
		w:     w,
		evC:   make(chan Event, 128),
		erC:   make(chan error, 1),
		files: make(map[string]bool),
		dirs:  make(map[string]int),
	}
	go fw.loop()
	return fw, nil
}

func (fw *Watcher) loop() {
	defer close(fw.evC)
	for {
		select {
		case ev, ok := <-fw.w.Events:
			if !ok {
				return
			}
			name := filepath.Clean(ev.Name)
			fw.mu.Lock()
			watched := fw.files[name]
			fw.mu.Unlock()
			if !watched {
				continue
			}
			var op Op
			if ev.Op&fsnotify.Create != 0 {
				op |= OpCreate
			}
			if ev.Op&fsnotify.Write != 0 {
				op |= OpWrite
			}
			if ev.Op&fsnotify.Remove != 0 {
				op |= OpRemove
			}
			if ev.Op&fsnotify.Rename != 0 {
				op |= OpRename
			}
			if ev.Op&fsnotify.Chmod != 0 {
				op |= OpChmod
			}
			fw.evC <- Event{Path: name, Op: op}
		case err, ok := <-fw.w.Errors:
			if !ok {
				return
			}
			select {
			case fw.erC <- err:
			default: // an error is already pending
			}
		}
	}
}

// Events returns the change stream. It is closed by Close.
func (fw *Watcher) Events() <-chan Event { return fw.evC }

// Errors returns errors reported by the OS watcher.
func (fw *Watcher) Errors() <-chan error { return fw.erC }

// Add starts watching the file at name.
func (fw *Watcher) Add(name string) error {
	abs, err := filepath.Abs(name)
	if err != nil {
		return err
	}
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.files[abs] {
		return nil
	}
	dir := filepath.Dir(abs)
	if fw.dirs[dir] == 0 {
		if err := fw.w.Add(dir); err != nil {
			return err
		}
	}
	fw.dirs[dir]++
	fw.files[abs] = true
	return nil
}

// Remove stops watching the file at name.
func (fw *Watcher) Remove(name string) error {
	abs, err := filepath.Abs(name)
	if err != nil {
		return err
	}
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if !fw.files[abs] {
		return nil
	}
	delete(fw.files, abs)
	dir := filepath.Dir(abs)
	fw.dirs[dir]--
	if fw.dirs[dir] == 0 {
		delete(fw.dirs, dir)
		return fw.w.Remove(dir)
	}
	return nil
}

// Files returns the watched files, sorted.
func (fw *Watcher) Files() []string {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	out := make([]string, 0, len(fw.files))
	for f := range fw.files {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Close stops the watcher.
func (fw *Watcher) Close() error { return fw.w.Close() }

// Run calls fn with the sorted set of files that changed, once a burst of
// events has been quiet for debounce. It returns when ctx is done, the
// watcher is closed, or the OS watcher fails.
func (fw *Watcher) Run(ctx context.Context, debounce time.Duration, fn func(changed []string)) error {
	pending := make(map[string]bool)
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-fw.erC:
			return err
		case ev, ok := <-fw.evC:
			if !ok {
				return nil
			}
			if ev.Op == OpChmod {
				continue
			}
			pending[ev.Path] = true
			timer.Reset(debounce)
		case <-timer.C:
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			clear(pending)
			fn(changed)
		}
	}
}
