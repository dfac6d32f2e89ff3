package vfs

import (
	"github.com/fsnotify/fsnotify"

	"github.com/yagehu/wasit-sub000/internal/logging"
	"github.com/yagehu/wasit-sub000/internal/werr"
)

// Watcher wraps an fsnotify.Watcher to implement spec §4.4's rescan-on-
// mutation rule: the call engine adds each preopen's host path when
// Bootstrap registers it, and between calls drains pending events and
// re-snapshots any preopen whose subtree changed before the next solve.
type Watcher struct {
	fsw     *fsnotify.Watcher
	log     logging.Logger
	byPath  map[string]ResourceID
	pending map[ResourceID]bool
}

// NewWatcher starts an fsnotify watcher. Callers must call Close when the
// run ends.
func NewWatcher(log logging.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, werr.Wrap(werr.Internal, err, "starting fsnotify watcher")
	}
	return &Watcher{
		fsw:     fsw,
		log:     log,
		byPath:  make(map[string]ResourceID),
		pending: make(map[ResourceID]bool),
	}, nil
}

// Add registers a preopen's host path for recursive watching. fsnotify
// itself is not recursive, so every directory in the freshly scanned tree is
// added individually.
func (w *Watcher) Add(id ResourceID, root *Preopen) error {
	w.byPath[root.HostPath] = id
	if err := w.addTree(root.HostPath, root.Root); err != nil {
		return werr.Wrap(werr.Internal, err, "watching preopen %q", root.HostPath)
	}
	return nil
}

func (w *Watcher) addTree(path string, f *File) error {
	if f.Kind != Directory {
		return nil
	}
	if err := w.fsw.Add(path); err != nil {
		return err
	}
	for name, child := range f.Children {
		if err := w.addTree(path+"/"+name, child); err != nil {
			return err
		}
	}
	return nil
}

// Drain consumes every event buffered since the last Drain and returns the
// set of preopen resource ids whose subtree needs a Rescan. It never blocks:
// callers invoke it once per call-engine iteration (spec §4.4 "between calls
// the call engine drains pending watcher events").
func (w *Watcher) Drain() []ResourceID {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return w.flushPending()
			}
			w.record(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				continue
			}
			if w.log != nil {
				w.log.Warn("fsnotify error", "error", err)
			}
		default:
			return w.flushPending()
		}
	}
}

func (w *Watcher) record(ev fsnotify.Event) {
	for hostPath, id := range w.byPath {
		if hasPrefix(ev.Name, hostPath) {
			w.pending[id] = true
			return
		}
	}
}

func (w *Watcher) flushPending() []ResourceID {
	out := make([]ResourceID, 0, len(w.pending))
	for id := range w.pending {
		out = append(out, id)
		delete(w.pending, id)
	}
	return out
}

func hasPrefix(path, prefix string) bool {
	if len(path) < len(prefix) {
		return false
	}
	return path[:len(prefix)] == prefix
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
