package de

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/optimize"

	"github.com/Median-Group/differential-evolution2/internal/optimization"
	"github.com/Median-Group/differential-evolution2/internal/optimization/random"
)

// DefaultMaxGenerations applies when a run configures no stopping rule.
const DefaultMaxGenerations = 1000

const maxHistoryPrealloc = 4096

// GenerationReport describes the population after one generation.
type GenerationReport struct {
	Generation  int
	Evaluations int
	BestCost    float64
	Stats       PopulationStats
	Duration    time.Duration
}

// GenerationHook observes every completed generation. It runs on the
// optimizing goroutine and must not block.
type GenerationHook func(GenerationReport)

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the logger for the runner and its engine.
func WithLogger(logger *zap.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithGenerationHook registers a hook called after every generation.
func WithGenerationHook(hook GenerationHook) RunnerOption {
	return func(r *Runner) { r.hook = hook }
}

// WithTiePolicy overrides the default accept-on-tie selection.
func WithTiePolicy(p TiePolicy) RunnerOption {
	return func(r *Runner) { r.tiePolicy = p }
}

// Runner drives an Optimizer until one of the configured stopping rules
// fires. It implements optimization.Optimizer.
type Runner struct {
	config    optimization.OptimizerConfig
	opt       *Optimizer
	logger    *zap.Logger
	hook      GenerationHook
	tiePolicy TiePolicy

	mu      sync.RWMutex
	best    *optimization.Solution
	history []optimization.Evaluation

	cancelMu sync.Mutex
	cancel   context.CancelFunc
	stopped  atomic.Bool
}

var _ optimization.Optimizer = (*Runner)(nil)

// NewRunner builds and initializes the engine described by config. A nil src
// selects a xoshiro256** stream seeded with config.RandomSeed.
func NewRunner(config optimization.OptimizerConfig, src random.Source, opts ...RunnerOption) (*Runner, error) {
	r := &Runner{
		config: config,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.config.MaxGenerations < 1 && !r.config.HasTarget &&
		r.config.StagnationLimit < 1 && r.config.CostSpreadTolerance <= 0 {
		r.config.MaxGenerations = DefaultMaxGenerations
	}

	bounds, err := NewBounds(config.Bounds)
	if err != nil {
		return nil, err
	}
	if src == nil {
		src = random.NewXoshiro(config.RandomSeed)
	}

	cfg := Config{
		PopulationSize: config.PopulationSize,
		F:              config.F,
		CR:             config.CR,
		TiePolicy:      r.tiePolicy,
		Logger:         r.logger,
	}
	if config.Adaptive {
		a := DefaultAdaptiveConfig()
		cfg.Adaptive = &a
	}

	r.opt, err = New(bounds, cfg, src, config.Objective)
	if err != nil {
		return nil, err
	}
	r.history = make([]optimization.Evaluation, 0, min(r.config.MaxGenerations, maxHistoryPrealloc)+1)
	r.record()
	return r, nil
}

// Engine exposes the underlying Optimizer.
func (r *Runner) Engine() *Optimizer { return r.opt }

// Optimize advances generations until a stopping rule fires, Stop is called
// or ctx is done. A cancelled ctx returns the partial result together with
// ctx.Err(); Stop returns the partial result without error.
func (r *Runner) Optimize(ctx context.Context) (*optimization.OptimizationResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancelMu.Lock()
	r.cancel = cancel
	r.cancelMu.Unlock()
	defer cancel()
	if r.stopped.Load() {
		cancel()
	}

	log := r.logger.Named("runner")
	tracker := newStagnationTracker(r.opt.Best().Cost)

	var reason optimization.StopReason
	var ctxErr error
	for reason == "" {
		if reason = r.checkStop(tracker); reason != "" {
			break
		}

		select {
		case <-ctx.Done():
			reason = optimization.StopCancelled
			if !r.stopped.Load() {
				ctxErr = ctx.Err()
			}
			continue
		default:
		}

		start := time.Now()
		best, err := r.opt.Advance()
		if err != nil {
			log.Error("Generation failed", zap.Int("generation", r.opt.Generation()+1), zap.Error(err))
			return nil, optimization.WrapError(err, fmt.Sprintf("run stopped after %d generations", r.opt.Generation())).
				WithOperation("Optimize").WithComponent(component)
		}
		tracker.observe(r.opt.Generation(), best, r.config.Tolerance)
		r.record()

		if r.hook != nil {
			r.hook(GenerationReport{
				Generation:  r.opt.Generation(),
				Evaluations: r.opt.Evaluations(),
				BestCost:    best,
				Stats:       r.opt.Stats(),
				Duration:    time.Since(start),
			})
		}
		if r.config.Verbose {
			log.Info("Generation complete",
				zap.Int("generation", r.opt.Generation()),
				zap.Float64("best_cost", best))
		}
	}

	result := &optimization.OptimizationResult{
		Generations: r.opt.Generation(),
		StopReason:  reason,
		Converged: reason == optimization.StopTargetReached ||
			reason == optimization.StopConverged ||
			reason == optimization.StopStagnation,
	}

	evaluations := r.opt.Evaluations()
	if r.config.Polish && reason != optimization.StopCancelled {
		polished, evals := r.polish()
		evaluations += evals
		if polished != nil {
			r.mu.Lock()
			r.best = polished
			r.mu.Unlock()
			result.Polished = true
		}
	}
	result.Evaluations = evaluations
	result.BestSolution = r.GetBestSolution()
	result.History = r.GetHistory()

	log.Debug("Optimization finished",
		zap.String("reason", string(reason)),
		zap.Int("generations", result.Generations),
		zap.Int("evaluations", result.Evaluations),
		zap.Float64("best_cost", result.BestSolution.Value),
	)
	return result, ctxErr
}

func (r *Runner) checkStop(t *stagnationTracker) optimization.StopReason {
	c := r.config
	best := r.opt.Best().Cost
	switch {
	case c.HasTarget && CompareCosts(best, c.TargetCost) <= 0:
		return optimization.StopTargetReached
	case c.MaxGenerations > 0 && r.opt.Generation() >= c.MaxGenerations:
		return optimization.StopMaxGenerations
	case c.StagnationLimit > 0 && r.opt.Generation()-t.lastImproved >= c.StagnationLimit:
		return optimization.StopStagnation
	case c.CostSpreadTolerance > 0 && r.opt.Generation() > 0:
		s := r.opt.Stats()
		if s.FiniteCount == r.opt.Size() && s.CostStdDev < c.CostSpreadTolerance {
			return optimization.StopConverged
		}
	}
	return ""
}

// record stores the incumbent after the latest generation.
func (r *Runner) record() {
	sol := r.opt.BestSolution()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.best = sol
	r.history = append(r.history, optimization.Evaluation{
		Generation:  r.opt.Generation(),
		Evaluations: r.opt.Evaluations(),
		Solution:    sol,
	})
}

// polish runs a bounded Nelder-Mead search from the incumbent. It returns the
// refined solution only when it beats the incumbent.
func (r *Runner) polish() (*optimization.Solution, int) {
	start := r.opt.BestSolution()
	bounds := r.opt.Bounds()
	scratch := make([]float64, bounds.Dim())

	var objErr error
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			bounds.Clamp(scratch, x)
			v, err := r.config.Objective(scratch)
			if err != nil {
				if objErr == nil {
					objErr = err
				}
				return math.Inf(1)
			}
			if !optimization.IsFinite(v) {
				return math.Inf(1)
			}
			return v
		},
	}
	settings := &optimize.Settings{
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Relative:   1e-12,
			Iterations: 100,
		},
		FuncEvaluations: 200 * bounds.Dim(),
	}
	method := &optimize.NelderMead{
		Reflection:  1.0,
		Expansion:   2.0,
		Contraction: 0.5,
		Shrink:      0.5,
		SimplexSize: 0.05,
	}

	res, err := optimize.Minimize(problem, start.Parameters, settings, method)
	if err != nil || res == nil {
		r.logger.Debug("Polish did not complete", zap.Error(err))
		if res == nil {
			return nil, 0
		}
	}
	if objErr != nil {
		r.logger.Warn("Objective failed during polish", zap.Error(objErr))
		return nil, res.FuncEvaluations
	}

	x := bounds.Clamp(nil, res.X)
	v, verr := r.config.Objective(append([]float64(nil), x...))
	evals := res.FuncEvaluations + 1
	if verr != nil || CompareCosts(v, start.Value) >= 0 {
		return nil, evals
	}
	return &optimization.Solution{Parameters: x, Value: v}, evals
}

// GetBestSolution returns the best solution found so far.
func (r *Runner) GetBestSolution() *optimization.Solution {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.best == nil {
		return nil
	}
	return &optimization.Solution{
		Parameters: append([]float64(nil), r.best.Parameters...),
		Value:      r.best.Value,
	}
}

// GetHistory returns the incumbent recorded after each generation,
// starting with the initial population.
func (r *Runner) GetHistory() []optimization.Evaluation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]optimization.Evaluation(nil), r.history...)
}

// Stop ends a running Optimize after the current generation.
func (r *Runner) Stop() {
	r.stopped.Store(true)
	r.cancelMu.Lock()
	defer r.cancelMu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
}

// stagnationTracker remembers the last generation that improved the best
// cost by more than the tolerance.
type stagnationTracker struct {
	best         float64
	lastImproved int
}

func newStagnationTracker(best float64) *stagnationTracker {
	return &stagnationTracker{best: best}
}

func (t *stagnationTracker) observe(gen int, best, tol float64) {
	improved := false
	if optimization.IsFinite(best) && optimization.IsFinite(t.best) {
		improved = t.best-best > tol
	} else {
		improved = CompareCosts(best, t.best) < 0
	}
	if improved {
		t.best = best
		t.lastImproved = gen
	}
}
