package de

import (
	"math"

	"github.com/Median-Group/differential-evolution2/internal/optimization"
	"github.com/Median-Group/differential-evolution2/internal/optimization/random"
)

// Bounds is the per-dimension inclusive search box. It is immutable once
// built.
type Bounds struct {
	min []float64
	max []float64
}

// NewBounds validates and copies the given [min, max] pairs.
func NewBounds(pairs [][2]float64) (*Bounds, error) {
	const op = "NewBounds"

	if len(pairs) == 0 {
		return nil, optimization.NewConfigError("need at least one dimension").
			WithOperation(op).WithComponent(component)
	}

	b := &Bounds{
		min: make([]float64, len(pairs)),
		max: make([]float64, len(pairs)),
	}
	for d, p := range pairs {
		lo, hi := p[0], p[1]
		if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
			return nil, optimization.NewConfigError("dimension %d has non-finite bounds [%v, %v]", d, lo, hi).
				WithOperation(op).WithComponent(component)
		}
		if lo > hi {
			return nil, optimization.NewConfigError("dimension %d has min %v > max %v", d, lo, hi).
				WithOperation(op).WithComponent(component)
		}
		b.min[d] = lo
		b.max[d] = hi
	}
	return b, nil
}

// UniformBounds builds dim identical [lo, hi] ranges.
func UniformBounds(dim int, lo, hi float64) (*Bounds, error) {
	pairs := make([][2]float64, dim)
	for i := range pairs {
		pairs[i] = [2]float64{lo, hi}
	}
	return NewBounds(pairs)
}

// Dim returns the number of dimensions.
func (b *Bounds) Dim() int { return len(b.min) }

// Min returns the lower edge of dimension d.
func (b *Bounds) Min(d int) float64 { return b.min[d] }

// Max returns the upper edge of dimension d.
func (b *Bounds) Max(d int) float64 { return b.max[d] }

// Pairs returns a copy of the bounds as [min, max] pairs.
func (b *Bounds) Pairs() [][2]float64 {
	out := make([][2]float64, len(b.min))
	for d := range out {
		out[d] = [2]float64{b.min[d], b.max[d]}
	}
	return out
}

// Clamp saturates x into the box element-wise and writes the result to dst,
// which may alias x. A nil dst allocates. NaN elements map to the lower edge.
func (b *Bounds) Clamp(dst, x []float64) []float64 {
	if len(x) != len(b.min) {
		panic("de: clamp dimension mismatch")
	}
	if dst == nil {
		dst = make([]float64, len(x))
	}
	for d, v := range x {
		switch {
		case math.IsNaN(v) || v < b.min[d]:
			dst[d] = b.min[d]
		case v > b.max[d]:
			dst[d] = b.max[d]
		default:
			dst[d] = v
		}
	}
	return dst
}

// Contains reports whether every element of x lies inside its range.
func (b *Bounds) Contains(x []float64) bool {
	if len(x) != len(b.min) {
		return false
	}
	for d, v := range x {
		if !(v >= b.min[d] && v <= b.max[d]) {
			return false
		}
	}
	return true
}

// Sample draws a uniform value inside dimension d.
func (b *Bounds) Sample(d int, src random.Source) float64 {
	lo, hi := b.min[d], b.max[d]
	v := lo + src.UniformReal()*(hi-lo)
	// rounding can land exactly on or past hi for wide ranges
	if v > hi {
		v = hi
	}
	return v
}
