package ledger

import (
	"fmt"
	"testing"
)

// fakeVertex fabricates a vertex with the structural fields set; hashes are
// arbitrary unique strings because the structural checks never recompute them.
func fakeVertex(hash, tip1, tip2 string, depth int, createdAt int64) *Vertex {
	return &Vertex{
		Hash:        hash,
		NodeID:      "node0",
		Tip1:        tip1,
		Tip2:        tip2,
		Depth:       depth,
		PayloadHash: "payload_" + hash,
		CreatedAt:   createdAt,
	}
}

// chainVertices builds g <- a <- b <- ... rooted at genesis.
func chainVertices(n int) []*Vertex {
	vertices := []*Vertex{}
	parent := Genesis
	for i := 0; i < n; i++ {
		hash := fmt.Sprintf("v%02d", i)
		vertices = append(vertices, fakeVertex(hash, parent, parent, i, int64(1000+i)))
		parent = hash
	}
	return vertices
}

func TestValidateChain(t *testing.T) {
	vertices := chainVertices(5)
	if err := Validate(vertices); err != nil {
		t.Fatalf("valid chain rejected: %v", err)
	}
	if !IsValidDAG(vertices) {
		t.Fatal("IsValidDAG should be true")
	}
}

func TestValidateEmpty(t *testing.T) {
	if err := Validate(nil); err != nil {
		t.Fatalf("empty set rejected: %v", err)
	}
}

func TestValidateCycle(t *testing.T) {
	a := fakeVertex("aa", "bb", "bb", 1, 1000)
	b := fakeVertex("bb", "aa", "aa", 2, 1001)

	err := Validate([]*Vertex{a, b})
	if !IsValidation(err, CycleDetected) {
		t.Fatalf("expected CycleDetected, got %v", err)
	}
	if IsValidDAG([]*Vertex{a, b}) {
		t.Fatal("IsValidDAG should be false")
	}
}

func TestValidateSelfReference(t *testing.T) {
	// a vertex naming its own hash as a parent is the shortest possible
	// cycle; only the genesis sentinel may be duplicated as both tips
	a := fakeVertex("aa", "aa", "aa", 0, 1000)

	err := Validate([]*Vertex{a})
	if !IsValidation(err, CycleDetected) {
		t.Fatalf("expected CycleDetected, got %v", err)
	}
	if IsValidDAG([]*Vertex{a}) {
		t.Fatal("IsValidDAG accepted a direct self-referencing vertex")
	}

	// one tip on itself is just as cyclic
	b := fakeVertex("bb", Genesis, "bb", 0, 1000)
	if err := Validate([]*Vertex{b}); !IsValidation(err, CycleDetected) {
		t.Fatalf("expected CycleDetected, got %v", err)
	}
}

func TestValidateMissingReference(t *testing.T) {
	a := fakeVertex("aa", Genesis, Genesis, 0, 1000)
	b := fakeVertex("bb", "aa", "ffff", 1, 1001)

	err := Validate([]*Vertex{a, b})
	if !IsValidation(err, MissingReference) {
		t.Fatalf("expected MissingReference, got %v", err)
	}
}

func TestValidateConflictingApproval(t *testing.T) {
	a := fakeVertex("aa", Genesis, Genesis, 0, 1000)
	b := fakeVertex("bb", Genesis, Genesis, 0, 1001)
	c1 := fakeVertex("c1", "aa", "aa", 1, 1002)
	c2 := fakeVertex("c2", "bb", "bb", 1, 1003)

	// same payload approved with two different parent pairs
	c1.PayloadHash = "shared"
	c2.PayloadHash = "shared"

	err := Validate([]*Vertex{a, b, c1, c2})
	if !IsValidation(err, ConflictingApproval) {
		t.Fatalf("expected ConflictingApproval, got %v", err)
	}

	// the same payload with the same parent pair is not a conflict
	c2.Tip1 = "aa"
	c2.Tip2 = "aa"
	if err := Validate([]*Vertex{a, b, c1, c2}); err != nil {
		t.Fatalf("identical parent pair rejected: %v", err)
	}
}

func TestValidateDepthViolation(t *testing.T) {
	a := fakeVertex("aa", Genesis, Genesis, 0, 1000)
	b := fakeVertex("bb", "aa", "aa", 0, 1001)

	err := Validate([]*Vertex{a, b})
	if !IsValidation(err, DepthViolation) {
		t.Fatalf("expected DepthViolation, got %v", err)
	}

	b.Depth = 1
	if err := Validate([]*Vertex{a, b}); err != nil {
		t.Fatalf("valid depths rejected: %v", err)
	}
}

func TestValidateAnchoringParent(t *testing.T) {
	a := fakeVertex("aa", Genesis, Genesis, 0, 1000)
	b := fakeVertex("bb", "aa", "aa", 1, 1001)
	b.Anchored = true
	b.AnchorTimestamp = 2000

	err := Validate([]*Vertex{a, b})
	if !IsValidation(err, AnchoringViolation) {
		t.Fatalf("expected AnchoringViolation, got %v", err)
	}

	a.Anchored = true
	a.AnchorTimestamp = 1500
	if err := Validate([]*Vertex{a, b}); err != nil {
		t.Fatalf("valid anchoring rejected: %v", err)
	}
}

func TestValidateAnchorTimestamp(t *testing.T) {
	a := fakeVertex("aa", Genesis, Genesis, 0, 1000)
	a.Anchored = true
	a.AnchorTimestamp = 500 //precedes CreatedAt

	err := Validate([]*Vertex{a})
	if !IsValidation(err, AnchoringViolation) {
		t.Fatalf("expected AnchoringViolation, got %v", err)
	}
}
