package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/Median-Group/differential-evolution2/internal/optimization"
	"github.com/Median-Group/differential-evolution2/internal/optimization/benchmarks"
	"github.com/Median-Group/differential-evolution2/internal/optimization/de"
	"github.com/Median-Group/differential-evolution2/internal/optimization/random"
)

type runOptions struct {
	function    string
	dim         int
	pop         int
	f           float64
	cr          float64
	generations int
	target      float64
	stagnation  int
	tolerance   float64
	seed        uint64
	adaptive    bool
	rejectTies  bool
	polish      bool
	verbose     bool
}

// runReport is printed as JSON when a run ends.
type runReport struct {
	Function    string    `json:"function"`
	Dimensions  int       `json:"dimensions"`
	Seed        uint64    `json:"seed"`
	Generations int       `json:"generations"`
	Evaluations int       `json:"evaluations"`
	StopReason  string    `json:"stop_reason"`
	Converged   bool      `json:"converged"`
	Polished    bool      `json:"polished"`
	Parameters  []float64 `json:"parameters"`
	Cost        *float64  `json:"cost"`
	Optimum     float64   `json:"known_optimum"`
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Minimize a benchmark function",
		Long: `Runs differential evolution on one of the functions listed by
"de functions" and prints the best solution as JSON. A seed of 0 draws a
fresh seed, which is reported so the run can be replayed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOptimization(cmd, root, opts)
		},
	}

	d := de.DefaultConfig()
	cmd.Flags().StringVar(&opts.function, "function", "sphere", "Objective function")
	cmd.Flags().IntVar(&opts.dim, "dim", 2, "Number of dimensions")
	cmd.Flags().IntVar(&opts.pop, "pop", d.PopulationSize, "Population size (at least 4)")
	cmd.Flags().Float64Var(&opts.f, "f", d.F, "Differential weight F")
	cmd.Flags().Float64Var(&opts.cr, "cr", d.CR, "Crossover probability CR")
	cmd.Flags().IntVar(&opts.generations, "generations", de.DefaultMaxGenerations, "Maximum generations (0 uses the default limit unless --target or --stagnation is set)")
	cmd.Flags().Float64Var(&opts.target, "target", 0, "Stop once the best cost reaches this value")
	cmd.Flags().IntVar(&opts.stagnation, "stagnation", 0, "Stop after this many generations without improvement")
	cmd.Flags().Float64Var(&opts.tolerance, "tolerance", 0, "Minimum improvement counted by --stagnation")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 0, "Random seed (0 draws one)")
	cmd.Flags().BoolVar(&opts.adaptive, "adaptive", false, "Self-adapt F and CR per candidate")
	cmd.Flags().BoolVar(&opts.rejectTies, "reject-ties", false, "Keep the target when the trial cost is equal")
	cmd.Flags().BoolVar(&opts.polish, "polish", false, "Refine the result with Nelder-Mead")
	cmd.Flags().BoolVar(&opts.verbose, "verbose", false, "Log every generation at info level")

	return cmd
}

func runOptimization(cmd *cobra.Command, root *rootOptions, opts *runOptions) error {
	fn, ok := benchmarks.Lookup(opts.function)
	if !ok {
		return fmt.Errorf("unknown function %q (see \"de functions\")", opts.function)
	}
	bounds, err := fn.Bounds(opts.dim)
	if err != nil {
		return err
	}

	seed := opts.seed
	var src random.Source
	if seed == 0 {
		r, drawn, err := random.NewEntropy()
		if err != nil {
			return err
		}
		src, seed = r, drawn
	} else {
		src = random.NewXoshiro(seed)
	}

	cfg := optimization.OptimizerConfig{
		Objective:       fn.Objective(),
		Bounds:          bounds,
		PopulationSize:  opts.pop,
		F:               opts.f,
		CR:              opts.cr,
		Adaptive:        opts.adaptive,
		MaxGenerations:  opts.generations,
		StagnationLimit: opts.stagnation,
		Tolerance:       opts.tolerance,
		Polish:          opts.polish,
		RandomSeed:      seed,
		Verbose:         opts.verbose,
	}
	if cmd.Flags().Changed("target") {
		cfg.TargetCost = opts.target
		cfg.HasTarget = true
	}

	tie := de.AcceptOnTie
	if opts.rejectTies {
		tie = de.RejectOnTie
	}

	logger := root.logger.WithFields(map[string]interface{}{
		"function": fn.Name,
		"seed":     seed,
	})
	runner, err := de.NewRunner(cfg, src,
		de.WithLogger(logger.Zap("de")),
		de.WithTiePolicy(tie),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	logger.Info("Optimization started", map[string]interface{}{
		"dimensions":      opts.dim,
		"population_size": opts.pop,
	})
	result, err := runner.Optimize(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	report := runReport{
		Function:    fn.Name,
		Dimensions:  opts.dim,
		Seed:        seed,
		Generations: result.Generations,
		Evaluations: result.Evaluations,
		StopReason:  string(result.StopReason),
		Converged:   result.Converged,
		Polished:    result.Polished,
		Parameters:  result.BestSolution.Parameters,
		Optimum:     fn.Optimum(opts.dim),
	}
	if v := result.BestSolution.Value; optimization.IsFinite(v) {
		report.Cost = &v
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
