package trace

import (
	"encoding/binary"

	"github.com/dgraph-io/badger/v4"

	"github.com/yagehu/wasit-sub000/internal/werr"
)

// Index is the crash-recoverable resume index (SPEC_FULL §2.13): a small
// Badger database mapping completed action indices to a marker, so a
// killed run's restart can find the first unwritten action without
// scanning the trace/ directory tree (which, for a long run, can hold tens
// of thousands of action directories).
type Index struct {
	db *badger.DB
}

var completedKey = []byte("completed")

// OpenIndex opens (creating if absent) the Badger database at dir.
func OpenIndex(dir string) (*Index, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, werr.Wrap(werr.TraceStore, err, "opening resume index at %q", dir)
	}
	return &Index{db: db}, nil
}

// Close closes the underlying Badger database.
func (i *Index) Close() error {
	if err := i.db.Close(); err != nil {
		return werr.Wrap(werr.TraceStore, err, "closing resume index")
	}
	return nil
}

// MarkComplete records that the action at index has been fully written.
func (i *Index) MarkComplete(index int) error {
	return i.db.Update(func(txn *badger.Txn) error {
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(index+1))
		if err := txn.Set(completedKey, buf); err != nil {
			return err
		}
		return nil
	})
}

// NextActionIndex returns one past the highest index ever marked complete,
// or 0 for a fresh run (SPEC_FULL §4.6: "continues the Loop state from the
// first byte of the random pool not yet consumed" — this is the companion
// action-index half of that resume point).
func (i *Index) NextActionIndex() (int, error) {
	var next int
	err := i.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(completedKey)
		if err == badger.ErrKeyNotFound {
			next = 0
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			next = int(binary.BigEndian.Uint64(val))
			return nil
		})
	})
	if err != nil {
		return 0, werr.Wrap(werr.TraceStore, err, "reading resume index")
	}
	return next, nil
}
