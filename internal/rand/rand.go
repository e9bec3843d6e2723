// Package rand supplies the random draws a trial consumes: the per-frame
// spawn coin flip and the initial fuel of each new airplane.
package rand

import (
	"github.com/MichaelTJones/pcg"
)

// Source is the randomness a trial depends on. Any implementation producing
// uniformly distributed values over the requested ranges is substitutable.
type Source interface {
	// Bernoulli returns true with probability p.
	Bernoulli(p float64) bool
	// IntRange returns a uniform integer in [lo, hi].
	IntRange(lo, hi int) int
}

const pcgSequence = 0xda3e39cb94b95bdb

// PCG is a seedable Source backed by a PCG32 generator. The same seed always
// produces the same draw sequence.
type PCG struct {
	r *pcg.PCG32
}

// NewPCG returns a generator seeded with seed
func NewPCG(seed int64) *PCG {
	p := &PCG{r: pcg.NewPCG32()}
	p.r.Seed(uint64(seed), pcgSequence)
	return p
}

func (p *PCG) Float64() float64 {
	return float64(p.r.Random()) / (1 << 32)
}

func (p *PCG) Bernoulli(prob float64) bool {
	if prob <= 0 {
		return false
	}
	if prob >= 1 {
		return true
	}
	return p.Float64() < prob
}

func (p *PCG) IntRange(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + int(p.r.Bounded(uint32(hi-lo+1)))
}

var _ Source = (*PCG)(nil)
