package ledger

// Store is an interface for vertex set backends. The engine serializes every
// mutation, so implementations do not need their own locking.
type Store interface {
	// GetVertex returns a vertex by hash.
	GetVertex(hash string) (*Vertex, error)
	// SetVertex inserts or updates a vertex.
	SetVertex(vertex *Vertex) error
	// HasVertex reports whether a hash resolves to a stored vertex.
	HasVertex(hash string) bool
	// RemoveVertex deletes a vertex. Removing an unknown hash is a no-op.
	RemoveVertex(hash string) error
	// Vertices returns all vertices in insertion order.
	Vertices() []*Vertex
	// Count returns the number of stored vertices.
	Count() int
	// Close closes the underlying database.
	Close() error
	// StorePath returns the filepath of the underlying database, or "" for
	// memory-only stores.
	StorePath() string
}
