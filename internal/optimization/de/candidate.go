package de

// Candidate is one member of the population: a position and the objective's
// value at that position. Values returned by the Optimizer are copies.
type Candidate struct {
	Position []float64
	Cost     float64

	// Control parameters the candidate was produced with. Without
	// self-adaptation these equal the configured F and CR.
	F  float64
	CR float64
}

// Clone returns a deep copy of c.
func (c Candidate) Clone() Candidate {
	c.Position = append([]float64(nil), c.Position...)
	return c
}

// population stores N candidates of dimension D in row-major order so a
// generation snapshot is a single copy.
type population struct {
	dim  int
	pos  []float64
	cost []float64
	f    []float64
	cr   []float64
}

func newPopulation(size, dim int) *population {
	return &population{
		dim:  dim,
		pos:  make([]float64, size*dim),
		cost: make([]float64, size),
		f:    make([]float64, size),
		cr:   make([]float64, size),
	}
}

func (p *population) size() int { return len(p.cost) }

// row returns the position of member i, aliasing the backing array.
func (p *population) row(i int) []float64 {
	return p.pos[i*p.dim : (i+1)*p.dim]
}

func (p *population) candidate(i int) Candidate {
	return Candidate{
		Position: append([]float64(nil), p.row(i)...),
		Cost:     p.cost[i],
		F:        p.f[i],
		CR:       p.cr[i],
	}
}

// best returns the index of the lowest cost, preferring the lowest index
// among equals.
func (p *population) best() int {
	bi := 0
	for i := 1; i < len(p.cost); i++ {
		if CompareCosts(p.cost[i], p.cost[bi]) < 0 {
			bi = i
		}
	}
	return bi
}
