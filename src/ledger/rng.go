package ledger

import "math/rand"

// RNG is the source of randomness for tip-selection walks. It is injectable
// so deterministic tests do not have to patch global random state.
type RNG interface {
	// Intn returns a uniform integer in [0, n).
	Intn(n int) int
	// Float64 returns a uniform float in [0, 1).
	Float64() float64
}

// mathRNG wraps math/rand.
type mathRNG struct {
	r *rand.Rand
}

// NewMathRNG returns an RNG backed by math/rand with the given seed.
func NewMathRNG(seed int64) RNG {
	return &mathRNG{r: rand.New(rand.NewSource(seed))}
}

func (m *mathRNG) Intn(n int) int   { return m.r.Intn(n) }
func (m *mathRNG) Float64() float64 { return m.r.Float64() }

// LCG is a simple linear-congruential generator (Numerical Recipes
// parameters). Two LCGs created with the same seed produce identical
// sequences on every platform, which makes tip selection reproducible.
type LCG struct {
	state uint64
}

// NewLCG creates a deterministic RNG from a seed.
func NewLCG(seed int64) *LCG {
	return &LCG{state: uint64(seed)}
}

func (l *LCG) next() uint64 {
	l.state = l.state*6364136223846793005 + 1442695040888963407
	return l.state
}

// Intn implements RNG.
func (l *LCG) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int((l.next() >> 33) % uint64(n))
}

// Float64 implements RNG.
func (l *LCG) Float64() float64 {
	return float64(l.next()>>11) / float64(1<<53)
}
