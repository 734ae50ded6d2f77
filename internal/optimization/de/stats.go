package de

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/Median-Group/differential-evolution2/internal/optimization"
)

// PopulationStats summarizes the population for host-side stopping rules.
type PopulationStats struct {
	Generation  int
	Evaluations int
	BestCost    float64
	WorstCost   float64

	// Mean and standard deviation over finite costs only.
	MeanCost   float64
	CostStdDev float64

	// FiniteCount is the number of candidates with a finite cost.
	FiniteCount int

	// Diversity is the mean Euclidean distance from the centroid.
	Diversity float64
}

// Stats computes PopulationStats for the current population.
func (o *Optimizer) Stats() PopulationStats {
	n, dim := o.pop.size(), o.pop.dim

	s := PopulationStats{
		Generation:  o.generation,
		Evaluations: o.evaluations,
		BestCost:    o.pop.cost[o.pop.best()],
		WorstCost:   o.pop.cost[0],
	}

	finite := make([]float64, 0, n)
	for i, c := range o.pop.cost {
		if CompareCosts(c, s.WorstCost) > 0 {
			s.WorstCost = o.pop.cost[i]
		}
		if optimization.IsFinite(c) {
			finite = append(finite, c)
		}
	}
	s.FiniteCount = len(finite)
	switch len(finite) {
	case 0:
	case 1:
		s.MeanCost = finite[0]
	default:
		s.MeanCost, s.CostStdDev = stat.MeanStdDev(finite, nil)
	}

	centroid := make([]float64, dim)
	for i := 0; i < n; i++ {
		floats.Add(centroid, o.pop.row(i))
	}
	floats.Scale(1/float64(n), centroid)
	for i := 0; i < n; i++ {
		s.Diversity += floats.Distance(o.pop.row(i), centroid, 2)
	}
	s.Diversity /= float64(n)

	return s
}
