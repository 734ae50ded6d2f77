// Package de implements the DE/rand/1/bin differential evolution engine.
//
// The engine is synchronous and single-threaded. A host builds an Optimizer,
// calls Advance once per generation for as long as it likes, and reads Best
// or Population to decide when to stop. Runner wraps that loop with the usual
// stopping rules.
package de

import (
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/Median-Group/differential-evolution2/internal/optimization"
	"github.com/Median-Group/differential-evolution2/internal/optimization/random"
)

const component = "differential_evolution"

// MinPopulationSize is the smallest population that can supply three donors
// distinct from the target.
const MinPopulationSize = 4

// Config holds the control parameters of an Optimizer.
type Config struct {
	// Dimensions, when non-zero, must match the bounds.
	Dimensions int

	// PopulationSize is N, at least MinPopulationSize.
	PopulationSize int

	// F scales the difference vector; usually in (0, 2].
	F float64

	// CR is the per-dimension probability of taking the mutant's value.
	CR float64

	// TiePolicy decides equal-cost selections; the zero value accepts.
	TiePolicy TiePolicy

	// Adaptive, when set, replaces F and CR with per-candidate values.
	// A zero AdaptiveConfig selects DefaultAdaptiveConfig.
	Adaptive *AdaptiveConfig

	// Logger receives debug progress; nil disables logging.
	Logger *zap.Logger
}

// DefaultConfig returns N=100, F=0.8, CR=0.9.
func DefaultConfig() Config {
	return Config{
		PopulationSize: 100,
		F:              0.8,
		CR:             0.9,
	}
}

// Optimizer owns the population and advances it one generation at a time.
type Optimizer struct {
	cfg       Config
	adaptive  *AdaptiveConfig
	bounds    *Bounds
	src       random.Source
	objective optimization.ObjectiveFunction
	logger    *zap.Logger

	pop *population
	// positions as they stood when the current generation started
	snapshot []float64

	diff   []float64
	mutant []float64
	trial  []float64
	eval   []float64

	generation  int
	evaluations int
}

// New validates the configuration, samples N candidates uniformly inside
// bounds and evaluates each of them. On any error no Optimizer is returned.
func New(bounds *Bounds, cfg Config, src random.Source, objective optimization.ObjectiveFunction) (*Optimizer, error) {
	const op = "New"

	cfgErr := func(format string, args ...interface{}) error {
		return optimization.NewConfigError(format, args...).WithOperation(op).WithComponent(component)
	}

	switch {
	case bounds == nil || bounds.Dim() < 1:
		return nil, cfgErr("bounds must cover at least one dimension")
	case cfg.Dimensions != 0 && cfg.Dimensions != bounds.Dim():
		return nil, cfgErr("dimension count %d does not match %d bounds", cfg.Dimensions, bounds.Dim())
	case cfg.PopulationSize < MinPopulationSize:
		return nil, cfgErr("population size %d is below the minimum of %d", cfg.PopulationSize, MinPopulationSize)
	case src == nil:
		return nil, cfgErr("random source is required")
	case objective == nil:
		return nil, cfgErr("objective function is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	dim := bounds.Dim()
	o := &Optimizer{
		cfg:       cfg,
		bounds:    bounds,
		src:       src,
		objective: objective,
		logger:    logger.Named(component),
		pop:       newPopulation(cfg.PopulationSize, dim),
		snapshot:  make([]float64, cfg.PopulationSize*dim),
		diff:      make([]float64, dim),
		mutant:    make([]float64, dim),
		trial:     make([]float64, dim),
		eval:      make([]float64, dim),
	}
	if cfg.Adaptive != nil {
		a := *cfg.Adaptive
		if a == (AdaptiveConfig{}) {
			a = DefaultAdaptiveConfig()
		}
		o.adaptive = &a
	}

	for i := 0; i < o.pop.size(); i++ {
		o.initControls(i)
		row := o.pop.row(i)
		for d := range row {
			row[d] = bounds.Sample(d, src)
		}
	}

	for i := 0; i < o.pop.size(); i++ {
		cost, err := o.evaluate(o.pop.row(i))
		if err != nil {
			return nil, optimization.NewObjectiveError(err, "evaluating initial candidate %d", i).
				WithOperation(op).WithComponent(component)
		}
		o.pop.cost[i] = cost
	}

	o.logger.Debug("Initialized population",
		zap.Int("dimensions", dim),
		zap.Int("population_size", cfg.PopulationSize),
		zap.Float64("f", cfg.F),
		zap.Float64("cr", cfg.CR),
		zap.Bool("adaptive", o.adaptive != nil),
		zap.Stringer("tie_policy", cfg.TiePolicy),
		zap.Float64("best_cost", o.pop.cost[o.pop.best()]),
	)

	return o, nil
}

// Advance runs one generation: for every target, in index order, it builds a
// trial by mutation and binomial crossover against the population as it stood
// when the generation started, clamps it, evaluates it and keeps it if it is
// at least as good as the target. It returns the best cost afterwards.
//
// An objective error stops the generation. Targets already resolved keep
// their new values, every cost still matches its position, and the
// generation counter does not move.
func (o *Optimizer) Advance() (float64, error) {
	const op = "Advance"

	copy(o.snapshot, o.pop.pos)

	accepted := 0
	for i := 0; i < o.pop.size(); i++ {
		f, cr := o.trialControls(i)
		a, b, c := o.donors(i)
		o.mutate(a, b, c, f)
		o.crossover(i, cr)
		o.bounds.Clamp(o.trial, o.trial)

		cost, err := o.evaluate(o.trial)
		if err != nil {
			return o.pop.cost[o.pop.best()], optimization.NewObjectiveError(err,
				"evaluating trial for candidate %d in generation %d", i, o.generation+1).
				WithOperation(op).WithComponent(component)
		}

		if o.cfg.TiePolicy.accepts(cost, o.pop.cost[i]) {
			copy(o.pop.row(i), o.trial)
			o.pop.cost[i] = cost
			o.pop.f[i] = f
			o.pop.cr[i] = cr
			accepted++
		}
	}
	o.generation++

	best := o.pop.cost[o.pop.best()]
	o.logger.Debug("Advanced generation",
		zap.Int("generation", o.generation),
		zap.Int("accepted", accepted),
		zap.Float64("best_cost", best),
	)
	return best, nil
}

// donors draws three indices distinct from each other and from target.
func (o *Optimizer) donors(target int) (a, b, c int) {
	last := o.pop.size() - 1
	a = target
	for a == target {
		a = o.src.UniformInt(0, last)
	}
	b = target
	for b == target || b == a {
		b = o.src.UniformInt(0, last)
	}
	c = target
	for c == target || c == a || c == b {
		c = o.src.UniformInt(0, last)
	}
	return a, b, c
}

func (o *Optimizer) snapshotRow(i int) []float64 {
	dim := o.pop.dim
	return o.snapshot[i*dim : (i+1)*dim]
}

// mutate writes a + f*(b - c) into the mutant buffer.
func (o *Optimizer) mutate(a, b, c int, f float64) {
	floats.SubTo(o.diff, o.snapshotRow(b), o.snapshotRow(c))
	floats.AddScaledTo(o.mutant, o.snapshotRow(a), f, o.diff)
}

// crossover mixes the mutant into the target's position. One dimension is
// always taken from the mutant.
func (o *Optimizer) crossover(target int, cr float64) {
	base := o.snapshotRow(target)
	forced := o.src.UniformInt(0, o.pop.dim-1)
	for d := range o.trial {
		if d == forced || o.src.UniformReal() < cr {
			o.trial[d] = o.mutant[d]
		} else {
			o.trial[d] = base[d]
		}
	}
}

// evaluate calls the objective on a private copy of x so the objective
// cannot alter a stored position.
func (o *Optimizer) evaluate(x []float64) (float64, error) {
	copy(o.eval, x)
	o.evaluations++
	return o.objective(o.eval)
}

// Best returns a copy of the lowest-cost candidate, lowest index on ties.
func (o *Optimizer) Best() Candidate {
	return o.pop.candidate(o.pop.best())
}

// BestSolution returns the incumbent in the shared Solution form.
func (o *Optimizer) BestSolution() *optimization.Solution {
	i := o.pop.best()
	return &optimization.Solution{
		Parameters: append([]float64(nil), o.pop.row(i)...),
		Value:      o.pop.cost[i],
	}
}

// Population returns a copy of every candidate in index order.
func (o *Optimizer) Population() []Candidate {
	out := make([]Candidate, o.pop.size())
	for i := range out {
		out[i] = o.pop.candidate(i)
	}
	return out
}

// Generation returns the number of completed generations.
func (o *Optimizer) Generation() int { return o.generation }

// Evaluations returns the number of objective calls made so far.
func (o *Optimizer) Evaluations() int { return o.evaluations }

// Dim returns D.
func (o *Optimizer) Dim() int { return o.pop.dim }

// Size returns N.
func (o *Optimizer) Size() int { return o.pop.size() }

// Bounds returns the search box.
func (o *Optimizer) Bounds() *Bounds { return o.bounds }
