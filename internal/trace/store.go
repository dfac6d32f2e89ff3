package trace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yagehu/wasit-sub000/internal/randpool"
	"github.com/yagehu/wasit-sub000/internal/werr"
)

// Store appends one runtime's actions to its run-directory subtree (spec
// §6's trace on-disk format) and maintains the resume Index alongside it.
type Store struct {
	runtimeDir string
	index      *Index
	next       int
}

// Open creates (or reopens, for resume) the trace directory structure for
// one runtime under runDir/<runtimeName>, and opens its Badger resume index
// (SPEC_FULL §2.13).
func Open(runDir, runtimeName string) (*Store, error) {
	runtimeDir := filepath.Join(runDir, runtimeName)
	if err := os.MkdirAll(filepath.Join(runtimeDir, "trace"), 0o755); err != nil {
		return nil, werr.Wrap(werr.TraceStore, err, "creating trace directory for %q", runtimeName)
	}
	if err := os.MkdirAll(filepath.Join(runtimeDir, "data"), 0o755); err != nil {
		return nil, werr.Wrap(werr.TraceStore, err, "creating data directory for %q", runtimeName)
	}
	idx, err := OpenIndex(filepath.Join(runtimeDir, ".badger"))
	if err != nil {
		return nil, err
	}
	next, err := idx.NextActionIndex()
	if err != nil {
		idx.Close()
		return nil, err
	}
	return &Store{runtimeDir: runtimeDir, index: idx, next: next}, nil
}

// Close closes the resume index.
func (s *Store) Close() error {
	return s.index.Close()
}

// NextIndex returns the zero-based index of the next action to be written,
// which on a fresh run is 0 and on a resumed run is one past the last
// completed action (SPEC_FULL §4.6 crash resume).
func (s *Store) NextIndex() int {
	return s.next
}

// PersistPool writes the random pool's raw bytes to data/pool.bin (spec §6:
// "The run also persists the raw random-byte pool under data/ for
// replay").
func (s *Store) PersistPool(pool *randpool.Pool) error {
	path := filepath.Join(s.runtimeDir, "data", "pool.bin")
	if err := os.WriteFile(path, pool.Bytes(), 0o644); err != nil {
		return werr.Wrap(werr.TraceStore, err, "persisting random pool")
	}
	return nil
}

// LoadPool reads back a previously persisted pool, used by both replay and
// resume.
func LoadPool(runDir, runtimeName string) (*randpool.Pool, error) {
	path := filepath.Join(runDir, runtimeName, "data", "pool.bin")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, werr.Wrap(werr.TraceStore, err, "loading random pool")
	}
	return randpool.FromBytes(data), nil
}

// RecordDecl writes one decl.json action (spec §6), along with its
// before.json snapshot, and advances the resume index.
func (s *Store) RecordDecl(before *EnvironmentSnapshot, decl *DeclRecord) error {
	dir, err := s.actionDir()
	if err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, "before.json"), before); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, "decl.json"), decl); err != nil {
		return err
	}
	return s.advance()
}

// RecordCall writes one call.json action and its before.json snapshot.
func (s *Store) RecordCall(before *EnvironmentSnapshot, call *CallRecord) error {
	dir, err := s.actionDir()
	if err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, "before.json"), before); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, "call.json"), call); err != nil {
		return err
	}
	return s.advance()
}

func (s *Store) actionDir() (string, error) {
	dir := filepath.Join(s.runtimeDir, "trace", fmt.Sprintf("%04d", s.next))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", werr.Wrap(werr.TraceStore, err, "creating action directory %q", dir)
	}
	return dir, nil
}

func (s *Store) advance() error {
	if err := s.index.MarkComplete(s.next); err != nil {
		return err
	}
	s.next++
	return nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return werr.Wrap(werr.TraceStore, err, "marshaling %q", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return werr.Wrap(werr.TraceStore, err, "writing %q", path)
	}
	return nil
}

// Checkpoint is the checkpoint.json written after every recorded action:
// the full environment state and the pool cursor as of that action's
// completion. Resume restores model state from here rather than replaying
// every recorded action's effects (SPEC_FULL §4.6), since the snapshot is
// the state those effects produced.
type Checkpoint struct {
	Env        *EnvironmentSnapshot `json:"env"`
	PoolCursor int                  `json:"pool_cursor"`
}

// SaveCheckpoint overwrites the runtime's checkpoint.json.
func (s *Store) SaveCheckpoint(cp *Checkpoint) error {
	return writeJSON(filepath.Join(s.runtimeDir, "checkpoint.json"), cp)
}

// LoadCheckpoint reads a previously saved checkpoint, used by
// `wazzi run --resume`.
func LoadCheckpoint(runDir, runtimeName string) (*Checkpoint, error) {
	var cp Checkpoint
	if err := readJSON(filepath.Join(runDir, runtimeName, "checkpoint.json"), &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

// ReadAction loads a previously written action directory back (used by
// the out-of-scope diff layer's test fixtures). Resume does not read
// actions back; it restores from the Checkpoint.
func ReadAction(runDir, runtimeName string, index int) (*Action, error) {
	dir := filepath.Join(runDir, runtimeName, "trace", fmt.Sprintf("%04d", index))
	var before EnvironmentSnapshot
	if err := readJSON(filepath.Join(dir, "before.json"), &before); err != nil {
		return nil, err
	}
	a := &Action{Index: index, Before: before}
	if data, err := os.ReadFile(filepath.Join(dir, "decl.json")); err == nil {
		var d DeclRecord
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, werr.Wrap(werr.TraceStore, err, "unmarshaling decl.json at index %d", index)
		}
		a.Decl = &d
		return a, nil
	}
	if data, err := os.ReadFile(filepath.Join(dir, "call.json")); err == nil {
		var c CallRecord
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, werr.Wrap(werr.TraceStore, err, "unmarshaling call.json at index %d", index)
		}
		a.Call = &c
		return a, nil
	}
	return nil, werr.New(werr.TraceStore, "action %d has neither decl.json nor call.json", index)
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return werr.Wrap(werr.TraceStore, err, "reading %q", path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return werr.Wrap(werr.TraceStore, err, "unmarshaling %q", path)
	}
	return nil
}
