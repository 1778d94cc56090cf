package ledger

import "time"

// DefaultRetentionWindow is how long an unanchored vertex is retained before
// it becomes eligible for pruning.
const DefaultRetentionWindow = 7 * 24 * time.Hour

// PruneOldVertices returns the vertices that survive pruning: every anchored
// vertex regardless of age (checkpointed history is never dropped), every
// unanchored vertex whose CreatedAt is within the retention window, and every
// ancestor of a survivor, so that no parent reference in the surviving set
// dangles. Pruning twice with the same cutoff removes nothing on the second
// pass.
func PruneOldVertices(vertices []*Vertex, maxAge time.Duration, now time.Time) []*Vertex {
	if maxAge == 0 {
		maxAge = DefaultRetentionWindow
	}
	cutoff := now.Add(-maxAge).UnixMilli()

	byHash := make(map[string]*Vertex, len(vertices))
	for _, v := range vertices {
		byHash[v.Hash] = v
	}

	keep := make(map[string]bool, len(vertices))
	stack := []*Vertex{}
	for _, v := range vertices {
		if v.Anchored || v.CreatedAt >= cutoff {
			keep[v.Hash] = true
			stack = append(stack, v)
		}
	}

	// walk parent references from the survivors; an aged-out vertex stays as
	// long as something younger still builds on it
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, ref := range []string{v.Tip1, v.Tip2} {
			if IsGenesisRef(ref) || keep[ref] {
				continue
			}
			parent, ok := byHash[ref]
			if !ok {
				continue
			}
			keep[ref] = true
			stack = append(stack, parent)
		}
	}

	surviving := make([]*Vertex, 0, len(vertices))
	for _, v := range vertices {
		if keep[v.Hash] {
			surviving = append(surviving, v)
		}
	}

	return surviving
}
