package de

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Median-Group/differential-evolution2/internal/optimization"
	"github.com/Median-Group/differential-evolution2/internal/optimization/random"
)

func sphere(x []float64) (float64, error) {
	sum := 0.0
	for _, v := range x {
		sum += v * v
	}
	return sum, nil
}

func newSphereOptimizer(t testing.TB, dim, n int, seed uint64) *Optimizer {
	t.Helper()
	b, err := UniformBounds(dim, -5, 5)
	require.NoError(t, err)
	opt, err := New(b, Config{PopulationSize: n, F: 0.8, CR: 0.9}, random.NewXoshiro(seed), sphere)
	require.NoError(t, err)
	return opt
}

func TestNewValidation(t *testing.T) {
	b, err := UniformBounds(2, -1, 1)
	require.NoError(t, err)
	src := random.NewXoshiro(1)

	tests := []struct {
		name      string
		bounds    *Bounds
		cfg       Config
		src       random.Source
		objective optimization.ObjectiveFunction
	}{
		{name: "population below minimum", bounds: b, cfg: Config{PopulationSize: 3}, src: src, objective: sphere},
		{name: "zero population", bounds: b, cfg: Config{}, src: src, objective: sphere},
		{name: "nil bounds", bounds: nil, cfg: Config{PopulationSize: 10}, src: src, objective: sphere},
		{name: "dimension mismatch", bounds: b, cfg: Config{Dimensions: 3, PopulationSize: 10}, src: src, objective: sphere},
		{name: "nil source", bounds: b, cfg: Config{PopulationSize: 10}, src: nil, objective: sphere},
		{name: "nil objective", bounds: b, cfg: Config{PopulationSize: 10}, src: src, objective: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			objective := tt.objective
			if objective != nil {
				objective = func(x []float64) (float64, error) {
					calls++
					return tt.objective(x)
				}
			}

			opt, err := New(tt.bounds, tt.cfg, tt.src, objective)
			require.Error(t, err)
			assert.Nil(t, opt)
			assert.True(t, errors.Is(err, optimization.ErrInvalidConfig))
			assert.Zero(t, calls, "objective must not run for an invalid configuration")

			oe, ok := optimization.IsOptimizationError(err)
			require.True(t, ok)
			assert.Equal(t, "New", oe.Op)
			assert.Equal(t, component, oe.Component)
		})
	}
}

func TestNewInitializesPopulation(t *testing.T) {
	b, err := NewBounds([][2]float64{{-1, 1}, {10, 20}, {0, 0.001}})
	require.NoError(t, err)

	opt, err := New(b, Config{Dimensions: 3, PopulationSize: 12, F: 0.5, CR: 0.3}, random.NewXoshiro(3), sphere)
	require.NoError(t, err)

	assert.Equal(t, 0, opt.Generation())
	assert.Equal(t, 12, opt.Evaluations())
	assert.Equal(t, 3, opt.Dim())
	assert.Equal(t, 12, opt.Size())

	pop := opt.Population()
	require.Len(t, pop, 12)
	for _, c := range pop {
		assert.True(t, b.Contains(c.Position))
		want, _ := sphere(c.Position)
		assert.Equal(t, want, c.Cost)
		assert.Equal(t, 0.5, c.F)
		assert.Equal(t, 0.3, c.CR)
	}
}

func TestPopulationInvariantsAcrossGenerations(t *testing.T) {
	opt := newSphereOptimizer(t, 4, 15, 21)
	bounds := opt.Bounds()

	prevBest := opt.Best().Cost
	for gen := 1; gen <= 50; gen++ {
		best, err := opt.Advance()
		require.NoError(t, err)

		assert.Equal(t, gen, opt.Generation())
		assert.Equal(t, 15*(gen+1), opt.Evaluations())
		assert.Equal(t, opt.Best().Cost, best)
		assert.LessOrEqual(t, best, prevBest, "best cost must never increase")
		prevBest = best

		pop := opt.Population()
		require.Len(t, pop, 15)
		for i, c := range pop {
			require.True(t, bounds.Contains(c.Position), "candidate %d left the box", i)
			want, _ := sphere(c.Position)
			require.Equal(t, want, c.Cost, "candidate %d has a stale cost", i)
		}
	}
}

func TestPopulationReturnsCopies(t *testing.T) {
	opt := newSphereOptimizer(t, 2, 6, 1)

	pop := opt.Population()
	pop[0].Position[0] = 1e9
	best := opt.Best()
	best.Position[0] = 1e9

	for _, c := range opt.Population() {
		assert.NotEqual(t, 1e9, c.Position[0])
	}
}

func TestObjectiveCannotCorruptPositions(t *testing.T) {
	b, err := UniformBounds(2, -1, 1)
	require.NoError(t, err)
	vandal := func(x []float64) (float64, error) {
		c, _ := sphere(x)
		x[0] = 42
		return c, nil
	}
	opt, err := New(b, Config{PopulationSize: 8, F: 0.7, CR: 0.5}, random.NewXoshiro(8), vandal)
	require.NoError(t, err)
	_, err = opt.Advance()
	require.NoError(t, err)

	for _, c := range opt.Population() {
		assert.True(t, b.Contains(c.Position))
		want, _ := sphere(c.Position)
		assert.Equal(t, want, c.Cost)
	}
}

func TestDonorsAreDistinct(t *testing.T) {
	for _, n := range []int{4, 5, 20} {
		opt := newSphereOptimizer(t, 1, n, uint64(n))
		for trial := 0; trial < 2000; trial++ {
			target := trial % n
			a, b, c := opt.donors(target)
			for _, idx := range []int{a, b, c} {
				require.GreaterOrEqual(t, idx, 0)
				require.Less(t, idx, n)
				require.NotEqual(t, target, idx)
			}
			require.NotEqual(t, a, b)
			require.NotEqual(t, a, c)
			require.NotEqual(t, b, c)
		}
	}
}

func TestMutationReadsSnapshot(t *testing.T) {
	opt := newSphereOptimizer(t, 3, 5, 2)
	copy(opt.snapshot, opt.pop.pos)

	opt.mutate(0, 1, 2, 0.5)
	for d := 0; d < 3; d++ {
		want := opt.snapshotRow(0)[d] + 0.5*(opt.snapshotRow(1)[d]-opt.snapshotRow(2)[d])
		assert.InDelta(t, want, opt.mutant[d], 1e-12)
	}
}

func TestCrossoverForcesOneDimension(t *testing.T) {
	for _, dim := range []int{1, 2, 7} {
		opt := newSphereOptimizer(t, dim, 6, 4)
		copy(opt.snapshot, opt.pop.pos)

		for trial := 0; trial < 200; trial++ {
			for d := range opt.mutant {
				opt.mutant[d] = 1e6
			}

			opt.crossover(trial%6, 0)
			fromMutant := 0
			for d, v := range opt.trial {
				if v == 1e6 {
					fromMutant++
				} else {
					require.Equal(t, opt.snapshotRow(trial%6)[d], v)
				}
			}
			require.Equal(t, 1, fromMutant, "CR=0 takes exactly the forced dimension")

			opt.crossover(trial%6, 1)
			for _, v := range opt.trial {
				require.Equal(t, 1e6, v, "CR=1 takes every dimension from the mutant")
			}
		}
	}
}

func TestDeterministicReplay(t *testing.T) {
	a := newSphereOptimizer(t, 3, 10, 77)
	b := newSphereOptimizer(t, 3, 10, 77)
	assert.Equal(t, a.Population(), b.Population())

	for k := 0; k < 40; k++ {
		ca, err := a.Advance()
		require.NoError(t, err)
		cb, err := b.Advance()
		require.NoError(t, err)
		require.Equal(t, ca, cb)
		require.Equal(t, a.Population(), b.Population(), "trajectories diverged at generation %d", k+1)
	}
	assert.Equal(t, a.Best(), b.Best())

	c := newSphereOptimizer(t, 3, 10, 78)
	assert.NotEqual(t, a.Population(), c.Population())
}

func TestSphereConvergence(t *testing.T) {
	opt := newSphereOptimizer(t, 2, 20, 2024)

	for i := 0; i < 200; i++ {
		_, err := opt.Advance()
		require.NoError(t, err)
	}

	best := opt.Best()
	assert.InDelta(t, 0, best.Cost, 1e-6)
	assert.InDelta(t, 0, best.Position[0], 1e-3)
	assert.InDelta(t, 0, best.Position[1], 1e-3)
}

func TestConstantObjective(t *testing.T) {
	b, err := UniformBounds(3, -2, 2)
	require.NoError(t, err)
	constant := func([]float64) (float64, error) { return 7.5, nil }

	opt, err := New(b, Config{PopulationSize: 5, F: 0.8, CR: 0.9}, random.NewXoshiro(9), constant)
	require.NoError(t, err)

	for i := 0; i < 25; i++ {
		best, err := opt.Advance()
		require.NoError(t, err)
		assert.Equal(t, 7.5, best)
	}
	best := opt.Best()
	assert.Equal(t, 7.5, best.Cost)
	assert.True(t, b.Contains(best.Position))
}

func TestTiePolicyOnFlatObjective(t *testing.T) {
	b, err := UniformBounds(2, -2, 2)
	require.NoError(t, err)
	flat := func([]float64) (float64, error) { return 1, nil }

	reject, err := New(b, Config{PopulationSize: 6, F: 0.8, CR: 0.9, TiePolicy: RejectOnTie}, random.NewXoshiro(5), flat)
	require.NoError(t, err)
	before := reject.Population()
	_, err = reject.Advance()
	require.NoError(t, err)
	assert.Equal(t, before, reject.Population(), "ties must not move candidates")

	accept, err := New(b, Config{PopulationSize: 6, F: 0.8, CR: 0.9}, random.NewXoshiro(5), flat)
	require.NoError(t, err)
	before = accept.Population()
	_, err = accept.Advance()
	require.NoError(t, err)
	for i, c := range accept.Population() {
		assert.NotEqual(t, before[i].Position, c.Position, "candidate %d should adopt its tied trial", i)
	}
}

func TestNonFiniteCostsAreQuarantined(t *testing.T) {
	b, err := UniformBounds(2, -4, 4)
	require.NoError(t, err)
	holes := func(x []float64) (float64, error) {
		switch {
		case x[0] > 2:
			return math.NaN(), nil
		case x[0] < -2:
			return math.Inf(-1), nil
		}
		return sphere(x)
	}

	opt, err := New(b, Config{PopulationSize: 20, F: 0.8, CR: 0.9}, random.NewXoshiro(31), holes)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		best, err := opt.Advance()
		require.NoError(t, err)
		require.True(t, optimization.IsFinite(best))
	}
	assert.Less(t, opt.Best().Cost, 1e-3)
}

func TestObjectiveErrorPropagates(t *testing.T) {
	b, err := UniformBounds(2, -1, 1)
	require.NoError(t, err)
	boom := errors.New("boom")

	calls := 0
	flaky := func(x []float64) (float64, error) {
		calls++
		if calls > 10 {
			return 0, boom
		}
		return sphere(x)
	}

	opt, err := New(b, Config{PopulationSize: 8, F: 0.8, CR: 0.9}, random.NewXoshiro(2), flaky)
	require.NoError(t, err)

	_, err = opt.Advance()
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.True(t, errors.Is(err, optimization.ErrObjective))
	assert.Equal(t, 0, opt.Generation())
	assert.Equal(t, 11, opt.Evaluations())

	for _, c := range opt.Population() {
		want, _ := sphere(c.Position)
		assert.Equal(t, want, c.Cost)
	}
}

func TestInitialObjectiveErrorFailsConstruction(t *testing.T) {
	b, err := UniformBounds(1, 0, 1)
	require.NoError(t, err)
	failing := func([]float64) (float64, error) { return 0, errors.New("unavailable") }

	opt, err := New(b, Config{PopulationSize: 4}, random.NewXoshiro(1), failing)
	require.Error(t, err)
	assert.Nil(t, opt)
	assert.True(t, errors.Is(err, optimization.ErrObjective))
}

func TestObjectivePanicPropagates(t *testing.T) {
	b, err := UniformBounds(1, 0, 1)
	require.NoError(t, err)
	calls := 0
	panicky := func([]float64) (float64, error) {
		calls++
		if calls > 4 {
			panic("objective exploded")
		}
		return 1, nil
	}

	opt, err := New(b, Config{PopulationSize: 4}, random.NewXoshiro(1), panicky)
	require.NoError(t, err)
	assert.PanicsWithValue(t, "objective exploded", func() { _, _ = opt.Advance() })
}

func TestAdaptiveControls(t *testing.T) {
	b, err := UniformBounds(2, -5, 5)
	require.NoError(t, err)
	opt, err := New(b, Config{PopulationSize: 20, Adaptive: &AdaptiveConfig{}}, random.NewXoshiro(12), sphere)
	require.NoError(t, err)

	def := DefaultAdaptiveConfig()
	check := func() {
		for _, c := range opt.Population() {
			require.GreaterOrEqual(t, c.F, def.FMin)
			require.Less(t, c.F, def.FMax)
			require.GreaterOrEqual(t, c.CR, def.CRMin)
			require.Less(t, c.CR, def.CRMax)
		}
	}
	check()

	for i := 0; i < 200; i++ {
		_, err := opt.Advance()
		require.NoError(t, err)
	}
	check()
	assert.Less(t, opt.Best().Cost, 1e-6)
}

func TestStats(t *testing.T) {
	b, err := UniformBounds(1, -1, 1)
	require.NoError(t, err)
	opt, err := New(b, Config{PopulationSize: 4}, random.NewXoshiro(1), sphere)
	require.NoError(t, err)

	// replace the population with known values
	copy(opt.pop.pos, []float64{0, 1, -1, 0.5})
	copy(opt.pop.cost, []float64{0, 2, math.NaN(), 4})

	s := opt.Stats()
	assert.Equal(t, 0.0, s.BestCost)
	assert.True(t, math.IsNaN(s.WorstCost))
	assert.Equal(t, 3, s.FiniteCount)
	assert.InDelta(t, 2.0, s.MeanCost, 1e-12)
	assert.InDelta(t, 2.0, s.CostStdDev, 1e-12)
	assert.InDelta(t, (0.125+0.875+1.125+0.375)/4, s.Diversity, 1e-12)
	assert.Equal(t, 4, s.Evaluations)
}

func BenchmarkAdvance(b *testing.B) {
	opt := newSphereOptimizer(b, 10, 50, 1)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = opt.Advance()
	}
}
