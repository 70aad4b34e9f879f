package snapshot

import (
	"context"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
)

var stateKey = []byte("veil/state/v1")

// Store persists a single State blob in an embedded BadgerDB at path.
type Store struct {
	db *badger.DB
}

// Open opens (creating if absent) the Badger database at path.
func Open(path string) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("snapshot: open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying Badger handles.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save canonically encodes s and writes it as the single current state
// blob, replacing whatever was previously saved.
func (s *Store) Save(ctx context.Context, st State) error {
	raw, err := encMode.Marshal(st)
	if err != nil {
		return fmt.Errorf("snapshot: encode: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(stateKey, raw)
	})
}

// Load reads back the previously saved state. It returns badger.ErrKeyNotFound
// when nothing has ever been saved; callers wanting a fail-soft
// zero-value State should use LoadOrDefault instead.
func (s *Store) Load(ctx context.Context) (State, error) {
	var st State
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(stateKey)
		if err != nil {
			return err
		}
		return item.Value(func(raw []byte) error {
			return decMode.Unmarshal(raw, &st)
		})
	})
	if err != nil {
		return State{}, err
	}
	return st, nil
}

// LoadOrDefault opens the Badger database at path, loads its saved state,
// and returns it alongside the opened Store for later Save calls. Absent or
// corrupt state is not an error: it yields a zero-value State, matching the
// same fail-soft posture as internal/config's defaulting, on the theory that
// a node with no prior state is simply a new node, not a broken one.
func LoadOrDefault(ctx context.Context, path string) (State, *Store, error) {
	store, err := Open(path)
	if err != nil {
		return State{}, nil, err
	}
	st, err := store.Load(ctx)
	if err != nil {
		return State{}, store, nil
	}
	return st, store, nil
}
