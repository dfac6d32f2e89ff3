package vfs

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/yagehu/wasit-sub000/internal/werr"
)

// FileKind discriminates a File tree node.
type FileKind int

const (
	Directory FileKind = iota
	RegularFile
)

// File is one node of a preopened directory's captured tree snapshot (spec
// §3: "Each preopened directory maps a host path to a tree of File nodes").
type File struct {
	Kind     FileKind
	Children map[string]*File // Directory only
	Size     int64            // RegularFile only
	Attrs    *FileAttrs
}

// Preopen is one registered preopened directory: its host path, a dir-name
// attribute used to prefix generated relative paths (spec §4.5's model
// sampling rule), and its captured tree.
type Preopen struct {
	ID       ResourceID
	HostPath string
	DirName  string
	Root     *File
}

// RegisterPreopen walks the host directory and captures a File tree
// snapshot under a new fd resource id (spec §4.4 register_preopen). The
// returned resource id is also recorded in the environment's preopens map
// so the call engine can re-snapshot it later (watch.go) without having to
// re-derive which resource backs which host path.
func (e *Environment) RegisterPreopen(hostPath string, id ResourceID) (*Preopen, error) {
	root, err := scanTree(hostPath)
	if err != nil {
		return nil, werr.Wrap(werr.Internal, err, "scanning preopen host path %q", hostPath)
	}
	p := &Preopen{ID: id, HostPath: hostPath, DirName: filepath.Base(hostPath), Root: root}
	e.mu.Lock()
	e.preopens[id] = p
	e.mu.Unlock()
	return p, nil
}

// Rescan re-walks a preopen's host path, replacing its cached tree. Called
// after fsnotify reports a mutation (watch.go), matching spec §3's "effects
// re-build the tree between calls if the runtime created or deleted
// files."
func (e *Environment) Rescan(id ResourceID) error {
	e.mu.Lock()
	p, ok := e.preopens[id]
	e.mu.Unlock()
	if !ok {
		return werr.New(werr.Internal, "rescan: no preopen registered for resource %d", id)
	}
	root, err := scanTree(p.HostPath)
	if err != nil {
		return werr.Wrap(werr.Internal, err, "rescanning preopen %q", p.HostPath)
	}
	e.mu.Lock()
	p.Root = root
	e.mu.Unlock()
	return nil
}

// Preopen returns the registered preopen for a resource id, or nil.
func (e *Environment) Preopen(id ResourceID) *Preopen {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.preopens[id]
}

// Preopens returns every registered preopen, in resource-id order, used by
// bootstrap to enumerate all preopened directories (spec §4.6 Bootstrap).
func (e *Environment) Preopens() []*Preopen {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Preopen, 0, len(e.preopens))
	for _, p := range e.preopens {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func scanTree(hostPath string) (*File, error) {
	info, err := os.Lstat(hostPath)
	if err != nil {
		return nil, err
	}
	return scanNode(hostPath, info)
}

func scanNode(path string, info os.FileInfo) (*File, error) {
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, err
		}
		children := make(map[string]*File, len(entries))
		for _, entry := range entries {
			childInfo, err := entry.Info()
			if err != nil {
				return nil, err
			}
			child, err := scanNode(filepath.Join(path, entry.Name()), childInfo)
			if err != nil {
				return nil, err
			}
			children[entry.Name()] = child
		}
		return &File{Kind: Directory, Children: children, Attrs: statAttrs(path, info)}, nil
	}
	return &File{Kind: RegularFile, Size: info.Size(), Attrs: statAttrs(path, info)}, nil
}

// Lookup resolves a '/'-joined relative path against the tree rooted at f,
// returning the terminal node or nil if any component is missing.
func (f *File) Lookup(components []string) *File {
	node := f
	for _, c := range components {
		if node.Kind != Directory {
			return nil
		}
		child, ok := node.Children[c]
		if !ok {
			return nil
		}
		node = child
	}
	return node
}
