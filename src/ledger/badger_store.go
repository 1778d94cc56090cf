package ledger

import (
	"fmt"
	"os"

	"github.com/dgraph-io/badger"
)

const (
	vertexPrefix = "vertex"
	topoPrefix   = "topo"
)

// BadgerStore implements the Store interface on top of a Badger database,
// with a write-through InmemStore mirror so that reads and whole-set
// operations never hit disk. The database carries an insertion-order index so
// the mirror can be rebuilt in the same order on restart.
type BadgerStore struct {
	inmemStore *InmemStore
	db         *badger.DB
	path       string
	topoIndex  int
}

// NewBadgerStore creates a brand new store with a new database.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.SyncWrites = false
	opts.Logger = nil

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &BadgerStore{
		inmemStore: NewInmemStore(),
		db:         handle,
		path:       path,
	}, nil
}

// LoadBadgerStore opens an existing database and rebuilds the in-memory
// mirror from its insertion-order index.
func LoadBadgerStore(path string) (*BadgerStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(path)
	opts.SyncWrites = false
	opts.Logger = nil

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	store := &BadgerStore{
		inmemStore: NewInmemStore(),
		db:         handle,
		path:       path,
	}

	if err := store.bootstrap(); err != nil {
		store.Close()
		return nil, err
	}

	return store, nil
}

// LoadOrCreateBadgerStore tries to load an existing database, and creates a
// new one when that fails.
func LoadOrCreateBadgerStore(path string) (*BadgerStore, error) {
	store, err := LoadBadgerStore(path)
	if err != nil {
		store, err = NewBadgerStore(path)
		if err != nil {
			return nil, err
		}
	}
	return store, nil
}

//==============================================================================
//Keys

func vertexKey(hash string) []byte {
	return []byte(fmt.Sprintf("%s_%s", vertexPrefix, hash))
}

func topoKey(index int) []byte {
	return []byte(fmt.Sprintf("%s_%09d", topoPrefix, index))
}

func isDBKeyNotFound(err error) bool {
	return err == badger.ErrKeyNotFound
}

//==============================================================================

// bootstrap replays the insertion-order index into the in-memory mirror.
func (s *BadgerStore) bootstrap() error {
	return s.db.View(func(txn *badger.Txn) error {
		for t := 0; ; t++ {
			item, err := txn.Get(topoKey(t))
			if err != nil {
				if isDBKeyNotFound(err) {
					s.topoIndex = t
					return nil
				}
				return err
			}

			hash, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}

			vertexItem, err := txn.Get(vertexKey(string(hash)))
			if err != nil {
				return err
			}
			vertexBytes, err := vertexItem.ValueCopy(nil)
			if err != nil {
				return err
			}

			vertex := new(Vertex)
			if err := vertex.Unmarshal(vertexBytes); err != nil {
				return err
			}

			if err := s.inmemStore.SetVertex(vertex); err != nil {
				return err
			}
		}
	})
}

// GetVertex implements the Store interface.
func (s *BadgerStore) GetVertex(hash string) (*Vertex, error) {
	return s.inmemStore.GetVertex(hash)
}

// SetVertex implements the Store interface.
func (s *BadgerStore) SetVertex(vertex *Vertex) error {
	isNew := !s.inmemStore.HasVertex(vertex.Hash)

	if err := s.inmemStore.SetVertex(vertex); err != nil {
		return err
	}

	val, err := vertex.Marshal()
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		//insert [vertex_hash] => [vertex bytes]
		if err := txn.Set(vertexKey(vertex.Hash), val); err != nil {
			return err
		}
		if isNew {
			//insert [topo_index] => [hash]
			if err := txn.Set(topoKey(s.topoIndex), []byte(vertex.Hash)); err != nil {
				return err
			}
			s.topoIndex++
		}
		return nil
	})
}

// HasVertex implements the Store interface.
func (s *BadgerStore) HasVertex(hash string) bool {
	return s.inmemStore.HasVertex(hash)
}

// RemoveVertex implements the Store interface. The insertion-order index
// entry is left behind; bootstrap tolerates dangling entries only for the
// final contiguous prefix, so the whole order index is rewritten instead.
func (s *BadgerStore) RemoveVertex(hash string) error {
	if !s.inmemStore.HasVertex(hash) {
		return nil
	}

	if err := s.inmemStore.RemoveVertex(hash); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(vertexKey(hash)); err != nil {
			return err
		}
		//rewrite the order index from the mirror
		for t := 0; t < s.topoIndex; t++ {
			if err := txn.Delete(topoKey(t)); err != nil {
				return err
			}
		}
		remaining := s.inmemStore.Vertices()
		for i, v := range remaining {
			if err := txn.Set(topoKey(i), []byte(v.Hash)); err != nil {
				return err
			}
		}
		s.topoIndex = len(remaining)
		return nil
	})
}

// Vertices implements the Store interface.
func (s *BadgerStore) Vertices() []*Vertex {
	return s.inmemStore.Vertices()
}

// Count implements the Store interface.
func (s *BadgerStore) Count() int {
	return s.inmemStore.Count()
}

// Close implements the Store interface.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// StorePath implements the Store interface.
func (s *BadgerStore) StorePath() string {
	return s.path
}
