package ledger

import (
	cm "github.com/engagemesh/engage/src/common"
)

// InmemStore implements the Store interface with an in-memory vertex map and
// an insertion-order index. It is the default backend; the node process
// chooses BadgerStore when persistence across restarts is required.
type InmemStore struct {
	vertices map[string]*Vertex
	order    []string //hashes in insertion order
}

// NewInmemStore creates an empty InmemStore.
func NewInmemStore() *InmemStore {
	return &InmemStore{
		vertices: make(map[string]*Vertex),
	}
}

// GetVertex implements the Store interface.
func (s *InmemStore) GetVertex(hash string) (*Vertex, error) {
	v, ok := s.vertices[hash]
	if !ok {
		return nil, cm.NewStoreErr("Vertex", cm.KeyNotFound, hash)
	}
	return v, nil
}

// SetVertex implements the Store interface.
func (s *InmemStore) SetVertex(vertex *Vertex) error {
	if _, ok := s.vertices[vertex.Hash]; !ok {
		s.order = append(s.order, vertex.Hash)
	}
	s.vertices[vertex.Hash] = vertex
	return nil
}

// HasVertex implements the Store interface.
func (s *InmemStore) HasVertex(hash string) bool {
	_, ok := s.vertices[hash]
	return ok
}

// RemoveVertex implements the Store interface.
func (s *InmemStore) RemoveVertex(hash string) error {
	if _, ok := s.vertices[hash]; !ok {
		return nil
	}
	delete(s.vertices, hash)
	for i, h := range s.order {
		if h == hash {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Vertices implements the Store interface.
func (s *InmemStore) Vertices() []*Vertex {
	res := make([]*Vertex, 0, len(s.order))
	for _, hash := range s.order {
		res = append(res, s.vertices[hash])
	}
	return res
}

// Count implements the Store interface.
func (s *InmemStore) Count() int {
	return len(s.vertices)
}

// Close implements the Store interface.
func (s *InmemStore) Close() error {
	return nil
}

// StorePath implements the Store interface.
func (s *InmemStore) StorePath() string {
	return ""
}
