package benchmarks

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKnownOptima(t *testing.T) {
	tests := []struct {
		name string
		at   []float64
	}{
		{"sphere", []float64{0, 0, 0}},
		{"rosenbrock", []float64{1, 1, 1, 1}},
		{"rastrigin", []float64{0, 0}},
		{"ackley", []float64{0, 0, 0}},
		{"styblinski-tang", []float64{-2.903534, -2.903534}},
		{"constant", []float64{0.3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, ok := Lookup(tt.name)
			require.True(t, ok)

			got, err := f.Objective()(tt.at)
			require.NoError(t, err)
			assert.InDelta(t, f.Optimum(len(tt.at)), got, 1e-6)
		})
	}
}

func TestValuesAwayFromOptimum(t *testing.T) {
	assert.Equal(t, 14.0, Sphere([]float64{1, 2, 3}))
	assert.Equal(t, 100.0, Rosenbrock([]float64{1, 0}))
	assert.InDelta(t, 1.0, Rastrigin([]float64{1}), 1e-12)
	assert.Greater(t, Ackley([]float64{1, 1}), 0.0)
}

func TestBounds(t *testing.T) {
	f, ok := Lookup("rosenbrock")
	require.True(t, ok)

	b, err := f.Bounds(3)
	require.NoError(t, err)
	assert.Equal(t, [][2]float64{{-5, 10}, {-5, 10}, {-5, 10}}, b)

	_, err = f.Bounds(1)
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	names := Names()
	assert.True(t, sort.StringsAreSorted(names))
	assert.Contains(t, names, "sphere")
	assert.Len(t, All(), len(names))

	_, ok := Lookup("does-not-exist")
	assert.False(t, ok)
}
