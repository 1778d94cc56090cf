package ledger

import (
	"math"
	"sort"
)

// Tip-selection defaults. They are design choices, not protocol constants,
// and live in SelectorConfig so tests can vary them.
const (
	// DefaultAlpha is the walk-weighting exponent. Higher-weight vertices are
	// preferred, which biases confirmation toward already-trusted history and
	// discourages lazy or parasite attachment.
	DefaultAlpha = 0.001

	// DefaultMaxWalkSteps caps a walk; when exceeded, the current position is
	// returned as a fallback tip.
	DefaultMaxWalkSteps = 100

	// DefaultRecencyWindow is the number of most recent unanchored vertices
	// among which a walk starts.
	DefaultRecencyWindow = 10

	// goldenRatio derives the second walk's seed from the first in the
	// deterministic variant, so the two walks are decorrelated.
	goldenRatio = 1.618033988749895
)

// SelectorConfig carries the tip-selection parameters.
type SelectorConfig struct {
	Alpha         float64
	MaxWalkSteps  int
	RecencyWindow int
}

// DefaultSelectorConfig returns the default tip-selection parameters.
func DefaultSelectorConfig() SelectorConfig {
	return SelectorConfig{
		Alpha:         DefaultAlpha,
		MaxWalkSteps:  DefaultMaxWalkSteps,
		RecencyWindow: DefaultRecencyWindow,
	}
}

// TipSelection is the outcome of tip selection: two parent references and the
// depth of the vertex that will approve them.
type TipSelection struct {
	Tip1  string `json:"tip1"`
	Tip2  string `json:"tip2"`
	Depth int    `json:"depth"`
}

// SelectTips performs two independent weighted random walks over the
// unanchored subset of vertices and returns two parent references. Anchored
// vertices are considered settled and are not re-approved. The two RNGs must
// be independent; with a fixed pair of seeded RNGs the result is
// reproducible.
func SelectTips(vertices []*Vertex, conf SelectorConfig, rng1, rng2 RNG) *TipSelection {
	unanchored := make([]*Vertex, 0, len(vertices))
	for _, v := range vertices {
		if !v.Anchored {
			unanchored = append(unanchored, v)
		}
	}

	// degenerate cases
	if len(unanchored) == 0 {
		return &TipSelection{Tip1: Genesis, Tip2: Genesis, Depth: 0}
	}
	if len(unanchored) == 1 {
		only := unanchored[0]
		return &TipSelection{Tip1: only.Hash, Tip2: only.Hash, Depth: only.Depth + 1}
	}

	index := newApproverIndex(vertices)

	tip1 := walk(unanchored, index, conf, rng1)
	tip2 := walk(unanchored, index, conf, rng2)

	depth := tip1.Depth
	if tip2.Depth > depth {
		depth = tip2.Depth
	}

	return &TipSelection{Tip1: tip1.Hash, Tip2: tip2.Hash, Depth: depth + 1}
}

// SelectTipsSeeded is the deterministic variant: both walks derive from a
// single seed, the second multiplied by the golden ratio. Two calls with the
// same seed and vertex set return identical results.
func SelectTipsSeeded(vertices []*Vertex, conf SelectorConfig, seed int64) *TipSelection {
	seed2 := int64(float64(seed) * goldenRatio)
	return SelectTips(vertices, conf, NewLCG(seed), NewLCG(seed2))
}

// approverIndex maps a vertex hash to the vertices that reference it as a
// parent. Approver lists are sorted by hash so walks are deterministic for a
// fixed RNG.
type approverIndex struct {
	byHash    map[string]*Vertex
	approvers map[string][]*Vertex
}

func newApproverIndex(vertices []*Vertex) *approverIndex {
	idx := &approverIndex{
		byHash:    make(map[string]*Vertex, len(vertices)),
		approvers: make(map[string][]*Vertex),
	}

	for _, v := range vertices {
		idx.byHash[v.Hash] = v
	}
	for _, v := range vertices {
		idx.approvers[v.Tip1] = append(idx.approvers[v.Tip1], v)
		if v.Tip2 != v.Tip1 {
			idx.approvers[v.Tip2] = append(idx.approvers[v.Tip2], v)
		}
	}
	for hash := range idx.approvers {
		list := idx.approvers[hash]
		sort.Slice(list, func(i, j int) bool { return list[i].Hash < list[j].Hash })
	}

	return idx
}

// validApprovers returns the approvers of v whose parent references both
// resolve within the known set or are genesis.
func (idx *approverIndex) validApprovers(v *Vertex) []*Vertex {
	valid := []*Vertex{}
	for _, a := range idx.approvers[v.Hash] {
		if idx.resolves(a.Tip1) && idx.resolves(a.Tip2) {
			valid = append(valid, a)
		}
	}
	return valid
}

func (idx *approverIndex) resolves(ref string) bool {
	if IsGenesisRef(ref) {
		return true
	}
	_, ok := idx.byHash[ref]
	return ok
}

// walk performs one weighted random walk: start at a uniformly random vertex
// among the most recent entries, then repeatedly move to an approver chosen
// with probability proportional to exp(alpha * max(cumulativeWeight, 1)),
// until a tip (no valid approvers) is reached or the step cap is exceeded.
func walk(unanchored []*Vertex, index *approverIndex, conf SelectorConfig, rng RNG) *Vertex {
	recent := recentVertices(unanchored, conf.RecencyWindow)
	current := recent[rng.Intn(len(recent))]

	for step := 0; step < conf.MaxWalkSteps; step++ {
		approvers := index.validApprovers(current)
		if len(approvers) == 0 {
			// reached a tip
			return current
		}
		current = weightedChoice(approvers, conf.Alpha, rng)
	}

	// cap exceeded, current position is the fallback tip
	return current
}

// recentVertices returns the min(window, n) vertices with the largest
// CreatedAt, ties broken by hash for determinism.
func recentVertices(vertices []*Vertex, window int) []*Vertex {
	sorted := make([]*Vertex, len(vertices))
	copy(sorted, vertices)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt != sorted[j].CreatedAt {
			return sorted[i].CreatedAt < sorted[j].CreatedAt
		}
		return sorted[i].Hash < sorted[j].Hash
	})

	if window <= 0 {
		window = DefaultRecencyWindow
	}
	if len(sorted) > window {
		sorted = sorted[len(sorted)-window:]
	}

	return sorted
}

// weightedChoice picks a vertex with probability proportional to
// exp(alpha * max(cumulativeWeight, 1)).
func weightedChoice(candidates []*Vertex, alpha float64, rng RNG) *Vertex {
	weights := make([]float64, len(candidates))
	total := 0.0
	for i, c := range candidates {
		w := float64(c.CumulativeWeight)
		if w < 1 {
			w = 1
		}
		weights[i] = math.Exp(alpha * w)
		total += weights[i]
	}

	if total <= 0 {
		// fallback uniform
		return candidates[rng.Intn(len(candidates))]
	}

	p := rng.Float64() * total
	acc := 0.0
	for i, w := range weights {
		acc += w
		if p <= acc {
			return candidates[i]
		}
	}

	return candidates[len(candidates)-1]
}
