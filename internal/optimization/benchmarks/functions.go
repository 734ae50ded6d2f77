// Package benchmarks provides standard test functions for exercising the
// optimizer. See http://en.wikipedia.org/wiki/Test_functions_for_optimization.
package benchmarks

import (
	"fmt"
	"math"
	"sort"

	"github.com/Median-Group/differential-evolution2/internal/optimization"
)

// Function is a named objective with a conventional search range.
type Function struct {
	Name        string
	Description string

	// Lower and Upper give the usual range for every dimension.
	Lower, Upper float64

	// MinDim is the smallest supported dimension count.
	MinDim int

	// Optimum returns the known global minimum for dim dimensions.
	Optimum func(dim int) float64

	Eval func(x []float64) float64
}

// Objective adapts Eval to the optimizer's objective signature.
func (f Function) Objective() optimization.ObjectiveFunction {
	return func(x []float64) (float64, error) {
		return f.Eval(x), nil
	}
}

// Bounds returns the conventional box for dim dimensions.
func (f Function) Bounds(dim int) ([][2]float64, error) {
	if dim < f.MinDim {
		return nil, fmt.Errorf("%s needs at least %d dimensions, got %d", f.Name, f.MinDim, dim)
	}
	b := make([][2]float64, dim)
	for i := range b {
		b[i] = [2]float64{f.Lower, f.Upper}
	}
	return b, nil
}

var registry = map[string]Function{}

func register(f Function) {
	if f.Optimum == nil {
		f.Optimum = func(int) float64 { return 0 }
	}
	registry[f.Name] = f
}

// Lookup returns the function registered under name.
func Lookup(name string) (Function, bool) {
	f, ok := registry[name]
	return f, ok
}

// Names returns every registered name in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// All returns every registered function sorted by name.
func All() []Function {
	out := make([]Function, 0, len(registry))
	for _, n := range Names() {
		out = append(out, registry[n])
	}
	return out
}

func init() {
	register(Function{
		Name:        "sphere",
		Description: "sum of squares, minimum 0 at the origin",
		Lower:       -5.12,
		Upper:       5.12,
		MinDim:      1,
		Eval:        Sphere,
	})
	register(Function{
		Name:        "rosenbrock",
		Description: "curved valley, minimum 0 at (1, ..., 1)",
		Lower:       -5,
		Upper:       10,
		MinDim:      2,
		Eval:        Rosenbrock,
	})
	register(Function{
		Name:        "rastrigin",
		Description: "highly multimodal, minimum 0 at the origin",
		Lower:       -5.12,
		Upper:       5.12,
		MinDim:      1,
		Eval:        Rastrigin,
	})
	register(Function{
		Name:        "ackley",
		Description: "nearly flat outer region, minimum 0 at the origin",
		Lower:       -32.768,
		Upper:       32.768,
		MinDim:      1,
		Eval:        Ackley,
	})
	register(Function{
		Name:        "styblinski-tang",
		Description: "minimum -39.16617*n at (-2.903534, ...)",
		Lower:       -5,
		Upper:       5,
		MinDim:      1,
		Optimum:     func(dim int) float64 { return -39.16616570377142 * float64(dim) },
		Eval:        StyblinskiTang,
	})
	register(Function{
		Name:        "constant",
		Description: "flat landscape, every point costs 1",
		Lower:       -1,
		Upper:       1,
		MinDim:      1,
		Optimum:     func(int) float64 { return 1 },
		Eval:        func([]float64) float64 { return 1 },
	})
}

// Sphere returns sum(x_i^2).
func Sphere(x []float64) float64 {
	sum := 0.0
	for _, v := range x {
		sum += v * v
	}
	return sum
}

// Rosenbrock returns sum(100*(x_{i+1} - x_i^2)^2 + (1 - x_i)^2).
func Rosenbrock(x []float64) float64 {
	sum := 0.0
	for i := 0; i+1 < len(x); i++ {
		a := x[i+1] - x[i]*x[i]
		b := 1 - x[i]
		sum += 100*a*a + b*b
	}
	return sum
}

// Rastrigin returns 10n + sum(x_i^2 - 10cos(2*pi*x_i)).
func Rastrigin(x []float64) float64 {
	sum := 10 * float64(len(x))
	for _, v := range x {
		sum += v*v - 10*math.Cos(2*math.Pi*v)
	}
	return sum
}

// Ackley is the n-dimensional Ackley function.
func Ackley(x []float64) float64 {
	n := float64(len(x))
	var sq, cs float64
	for _, v := range x {
		sq += v * v
		cs += math.Cos(2 * math.Pi * v)
	}
	return -20*math.Exp(-0.2*math.Sqrt(sq/n)) - math.Exp(cs/n) + 20 + math.E
}

// StyblinskiTang returns sum(x_i^4 - 16x_i^2 + 5x_i) / 2.
func StyblinskiTang(x []float64) float64 {
	tot := 0.0
	for _, v := range x {
		tot += math.Pow(v, 4) - 16*math.Pow(v, 2) + 5*v
	}
	return tot / 2
}
