package ledger

import "sort"

// PropagateWeights recomputes the cumulative confirmation weight of every
// vertex in the set: weight(v) = 1 + sum of the weights of v's direct
// approvers, or 1 when v has none. Vertices are processed in descending depth
// order (children before parents) so every weight is computed after all of
// its approvers' weights are known; this costs one pass over the set instead
// of a per-vertex traversal. Re-running on an unchanged set reproduces the
// same weights.
func PropagateWeights(vertices []*Vertex) {
	approvers := make(map[string][]*Vertex)
	for _, v := range vertices {
		approvers[v.Tip1] = append(approvers[v.Tip1], v)
		if v.Tip2 != v.Tip1 {
			approvers[v.Tip2] = append(approvers[v.Tip2], v)
		}
	}

	sorted := make([]*Vertex, len(vertices))
	copy(sorted, vertices)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Depth > sorted[j].Depth
	})

	for _, v := range sorted {
		weight := int64(1)
		for _, a := range approvers[v.Hash] {
			weight += a.CumulativeWeight
		}
		v.CumulativeWeight = weight
	}
}
