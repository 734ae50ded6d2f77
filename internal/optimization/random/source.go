// Package random provides the uniform random capability consumed by the
// optimization engine.
//
// The engine only ever talks to Source. Where the numbers come from is the
// host's decision: a fixed-seed generator for reproducible runs, or an
// entropy-seeded one for production. Nothing in this package is used by the
// engine to read the clock or the operating system.
//
// A Rand is not safe for concurrent use. Derive one stream per goroutine.
package random

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mathext/prng"
)

// DefaultSeed is used when a caller passes seed 0.
const DefaultSeed uint64 = 1

// Source produces uniform random values.
type Source interface {
	// UniformReal returns a value in [0, 1).
	UniformReal() float64

	// UniformInt returns a value in [lo, hi], both ends inclusive.
	UniformInt(lo, hi int) int
}

// Rand adapts a math/rand/v2 generator to Source.
type Rand struct {
	r *rand.Rand
}

var _ Source = (*Rand)(nil)

// New wraps any 64-bit source.
func New(src rand.Source) *Rand {
	return &Rand{r: rand.New(src)}
}

// NewXoshiro returns a deterministic xoshiro256** stream.
// Seed 0 selects DefaultSeed.
func NewXoshiro(seed uint64) *Rand {
	return New(prng.NewXoshiro256starstar(normalizeSeed(seed)))
}

// NewSplitMix returns a deterministic splitmix64 stream. It is the cheapest
// generator available and keeps no state beyond one word.
func NewSplitMix(seed uint64) *Rand {
	return New(prng.NewSplitMix64(normalizeSeed(seed)))
}

// NewEntropy seeds a xoshiro256** stream from the operating system. It
// returns the seed so the run can be replayed.
func NewEntropy() (*Rand, uint64, error) {
	var buf [8]byte
	if _, err := crand.Read(buf[:]); err != nil {
		return nil, 0, fmt.Errorf("reading entropy: %w", err)
	}
	seed := normalizeSeed(binary.LittleEndian.Uint64(buf[:]))
	return NewXoshiro(seed), seed, nil
}

// UniformReal returns a value in [0, 1).
func (r *Rand) UniformReal() float64 {
	return r.r.Float64()
}

// UniformInt returns a value in [lo, hi]. It panics if hi < lo.
func (r *Rand) UniformInt(lo, hi int) int {
	if hi < lo {
		panic(fmt.Sprintf("random: empty range [%d, %d]", lo, hi))
	}
	return lo + r.r.IntN(hi-lo+1)
}

// Derive returns an independent stream for the given stream id.
func (r *Rand) Derive(stream uint64) *Rand {
	return NewXoshiro(DeriveSeed(r.r.Uint64(), stream))
}

// DeriveSeed mixes a parent seed and a stream identifier with the
// splitmix64 finalizer.
func DeriveSeed(parent, stream uint64) uint64 {
	x := parent ^ (stream + 0x9e3779b97f4a7c15)
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	x ^= x >> 31
	return normalizeSeed(x)
}

func normalizeSeed(seed uint64) uint64 {
	if seed == 0 {
		return DefaultSeed
	}
	return seed
}
