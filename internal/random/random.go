// Package random provides the deterministic pseudo-random stream shared by the
// workloads. It reproduces the Savina suite's PseudoRandom generator so that
// datasets and access patterns match the Savina suite for a given seed.
package random

// SimpleRand is a 16-bit linear congruential generator. It is not safe for
// concurrent use; every owner keeps its own stream.
type SimpleRand struct {
	value uint64
}

// New returns a stream seeded with seed.
func New(seed uint64) *SimpleRand {
	return &SimpleRand{value: seed}
}

// NextLong advances the stream and returns the next value in [0, 65536).
func (r *SimpleRand) NextLong() uint64 {
	r.value = (r.value*1309 + 13849) & 65535
	return r.value
}

// NextInt returns the next value reduced into [0, bound). A zero bound
// returns the raw next value.
func (r *SimpleRand) NextInt(bound uint64) uint64 {
	if bound == 0 {
		return r.NextLong()
	}
	return r.NextLong() % bound
}

// NextDouble returns 1/(next+1), in (0, 1].
func (r *SimpleRand) NextDouble() float64 {
	return 1.0 / float64(r.NextLong()+1)
}
