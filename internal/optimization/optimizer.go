package optimization

import (
	"context"
	"math"
)

// Optimizer defines the host-side contract for running a search to completion
type Optimizer interface {
	// Optimize advances the search until a stopping rule fires or ctx is done
	Optimize(ctx context.Context) (*OptimizationResult, error)

	// GetBestSolution returns the best solution found so far
	GetBestSolution() *Solution

	// GetHistory returns the best solution recorded after every generation
	GetHistory() []Evaluation

	// Stop gracefully stops the optimization process
	Stop()
}

// OptimizerConfig contains configuration for a differential evolution run
type OptimizerConfig struct {
	// Objective function to minimize
	Objective ObjectiveFunction

	// Bounds for each dimension [min, max]
	Bounds [][2]float64

	// Number of candidates in the population
	PopulationSize int

	// Mutation factor F and crossover probability CR
	F  float64
	CR float64

	// Adaptive enables per-candidate self-adapting F and CR
	Adaptive bool

	// Maximum number of generations. Zero means no limit when another
	// stopping rule is set, and the runner's default limit otherwise
	MaxGenerations int

	// Stop once the best cost is at or below TargetCost
	TargetCost float64
	HasTarget  bool

	// Stop after StagnationLimit generations without the best cost
	// improving by more than Tolerance; zero disables the rule
	StagnationLimit int
	Tolerance       float64

	// Stop when the standard deviation of finite costs drops below this value
	CostSpreadTolerance float64

	// Polish refines the final best position with Nelder-Mead
	Polish bool

	// Random seed for reproducibility; zero selects the default seed
	RandomSeed uint64

	// Verbose logging
	Verbose bool
}

// ObjectiveFunction defines the function to be minimized
type ObjectiveFunction func([]float64) (float64, error)

// Solution represents a solution in the optimization space
type Solution struct {
	Parameters []float64
	Value      float64
}

// Evaluation records the incumbent after one generation
type Evaluation struct {
	Generation  int
	Evaluations int
	Solution    *Solution
}

// StopReason names the rule that ended a run
type StopReason string

const (
	StopMaxGenerations StopReason = "max_generations"
	StopTargetReached  StopReason = "target_reached"
	StopStagnation     StopReason = "stagnation"
	StopConverged      StopReason = "cost_spread"
	StopCancelled      StopReason = "cancelled"
)

// OptimizationResult contains the result of an optimization run
type OptimizationResult struct {
	BestSolution *Solution
	History      []Evaluation
	Generations  int
	Evaluations  int
	Converged    bool
	StopReason   StopReason
	Polished     bool
}

// IsFinite reports whether v is neither NaN nor an infinity.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
