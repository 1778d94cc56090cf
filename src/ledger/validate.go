package ledger

import "fmt"

/*
The validator checks the structural and temporal invariants of a candidate
vertex set:

1. acyclicity of the parent-reference graph
2. every non-genesis parent reference resolves
3. no payload hash is approved with two different parent pairs
4. depth strictly exceeds each non-genesis parent's depth
5. an anchored vertex's non-genesis parents are anchored, and its anchor
   timestamp is not before its creation

Validation is all-or-nothing over the presented set. CycleDetected and
ConflictingApproval are graph-wide conditions which cannot be isolated to one
vertex, so they invalidate the whole set.
*/

// Validate runs all structural checks, in order, on a candidate vertex set.
// It returns nil when every invariant holds.
func Validate(vertices []*Vertex) error {
	if err := checkAcyclic(vertices); err != nil {
		return err
	}
	if err := checkReferences(vertices); err != nil {
		return err
	}
	if err := checkConflicts(vertices); err != nil {
		return err
	}
	if err := checkDepths(vertices); err != nil {
		return err
	}
	return checkAnchoring(vertices)
}

// IsValidDAG reports whether the candidate set satisfies every invariant.
func IsValidDAG(vertices []*Vertex) bool {
	return Validate(vertices) == nil
}

// checkAcyclic runs a depth-first traversal from every vertex along parent
// references. The traversal is iterative with an explicit stack, so
// adversarially deep graphs cannot blow the call stack. A vertex revisited
// while still on the path stack signals a cycle.
func checkAcyclic(vertices []*Vertex) error {
	byHash := make(map[string]*Vertex, len(vertices))
	for _, v := range vertices {
		byHash[v.Hash] = v
	}

	const (
		white = 0 //unvisited
		grey  = 1 //on the current path
		black = 2 //fully explored
	)
	color := make(map[string]int, len(vertices))

	type frame struct {
		hash     string
		parentIx int
	}

	parentsOf := func(v *Vertex) []string {
		refs := []string{}
		for _, ref := range []string{v.Tip1, v.Tip2} {
			if IsGenesisRef(ref) {
				continue
			}
			if _, ok := byHash[ref]; ok {
				refs = append(refs, ref)
			}
		}
		return refs
	}

	for _, start := range vertices {
		if color[start.Hash] != white {
			continue
		}

		stack := []frame{{hash: start.Hash}}
		color[start.Hash] = grey

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			parents := parentsOf(byHash[top.hash])

			if top.parentIx >= len(parents) {
				color[top.hash] = black
				stack = stack[:len(stack)-1]
				continue
			}

			next := parents[top.parentIx]
			top.parentIx++

			switch color[next] {
			case grey:
				return NewValidationErr(CycleDetected, next, "parent reference cycle")
			case white:
				color[next] = grey
				stack = append(stack, frame{hash: next})
			}
		}
	}

	return nil
}

// checkReferences verifies that every non-genesis parent reference resolves
// to a vertex in the set.
func checkReferences(vertices []*Vertex) error {
	byHash := make(map[string]bool, len(vertices))
	for _, v := range vertices {
		byHash[v.Hash] = true
	}

	for _, v := range vertices {
		for _, ref := range []string{v.Tip1, v.Tip2} {
			if IsGenesisRef(ref) {
				continue
			}
			if !byHash[ref] {
				return NewValidationErr(MissingReference, v.Hash,
					fmt.Sprintf("unknown parent %s", ref))
			}
		}
	}

	return nil
}

// checkConflicts groups vertices by payload hash; every group must reference
// a single parent pair. The same content must not be approved twice with
// different lineage.
func checkConflicts(vertices []*Vertex) error {
	pairs := make(map[string]string)
	for _, v := range vertices {
		pair := v.Tip1 + "|" + v.Tip2
		if prev, ok := pairs[v.PayloadHash]; ok && prev != pair {
			return NewValidationErr(ConflictingApproval, v.Hash,
				fmt.Sprintf("payload %s approved with two parent pairs", v.PayloadHash))
		}
		pairs[v.PayloadHash] = pair
	}

	return nil
}

// checkDepths verifies that each vertex's depth strictly exceeds each
// non-genesis parent's depth.
func checkDepths(vertices []*Vertex) error {
	byHash := make(map[string]*Vertex, len(vertices))
	for _, v := range vertices {
		byHash[v.Hash] = v
	}

	for _, v := range vertices {
		for _, ref := range []string{v.Tip1, v.Tip2} {
			if IsGenesisRef(ref) {
				continue
			}
			parent, ok := byHash[ref]
			if !ok {
				continue //reference existence is checked separately
			}
			if v.Depth <= parent.Depth {
				return NewValidationErr(DepthViolation, v.Hash,
					fmt.Sprintf("depth %d does not exceed parent depth %d", v.Depth, parent.Depth))
			}
		}
	}

	return nil
}

// checkAnchoring verifies that an anchored vertex's non-genesis parents are
// themselves anchored, and that anchorTimestamp >= createdAt.
func checkAnchoring(vertices []*Vertex) error {
	byHash := make(map[string]*Vertex, len(vertices))
	for _, v := range vertices {
		byHash[v.Hash] = v
	}

	for _, v := range vertices {
		if !v.Anchored {
			continue
		}

		if v.AnchorTimestamp != 0 && v.AnchorTimestamp < v.CreatedAt {
			return NewValidationErr(AnchoringViolation, v.Hash,
				"anchor timestamp precedes creation")
		}

		for _, ref := range []string{v.Tip1, v.Tip2} {
			if IsGenesisRef(ref) {
				continue
			}
			parent, ok := byHash[ref]
			if !ok {
				continue
			}
			if !parent.Anchored {
				return NewValidationErr(AnchoringViolation, v.Hash,
					fmt.Sprintf("anchored vertex has unanchored parent %s", ref))
			}
		}
	}

	return nil
}
