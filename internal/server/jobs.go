package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/Median-Group/differential-evolution2/internal/errors"
	"github.com/Median-Group/differential-evolution2/internal/optimization"
	"github.com/Median-Group/differential-evolution2/internal/optimization/benchmarks"
	"github.com/Median-Group/differential-evolution2/internal/optimization/de"
	"github.com/Median-Group/differential-evolution2/internal/optimization/random"
)

// defaultDimensions applies when a request names neither bounds nor a
// dimension count.
const defaultDimensions = 2

// JobStatus is the lifecycle state of an optimization job.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

func (s JobStatus) terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// OptimizeRequest starts a job. Bounds override the function's conventional
// box; F and CR fall back to the service defaults when absent.
type OptimizeRequest struct {
	Function        string       `json:"function"`
	Dimensions      int          `json:"dimensions,omitempty"`
	Bounds          [][2]float64 `json:"bounds,omitempty"`
	PopulationSize  int          `json:"population_size,omitempty"`
	F               *float64     `json:"f,omitempty"`
	CR              *float64     `json:"cr,omitempty"`
	Adaptive        bool         `json:"adaptive,omitempty"`
	MaxGenerations  int          `json:"max_generations,omitempty"`
	TargetCost      *float64     `json:"target_cost,omitempty"`
	StagnationLimit int          `json:"stagnation_limit,omitempty"`
	Tolerance       float64      `json:"tolerance,omitempty"`
	Polish          bool         `json:"polish,omitempty"`
	Seed            uint64       `json:"seed,omitempty"`
}

// Job tracks one optimization run. Fields are guarded by Server.mu.
type Job struct {
	ID          string
	Function    string
	Dimensions  int
	Seed        uint64
	Status      JobStatus
	Generation  int
	Evaluations int
	StartTime   time.Time
	EndTime     *time.Time
	LastUpdated time.Time
	Result      *optimization.OptimizationResult
	Err         string

	runner *de.Runner
	cancel context.CancelFunc
}

// optimizerConfig resolves req against the benchmark registry and the
// service limits.
func (s *Server) optimizerConfig(req OptimizeRequest) (optimization.OptimizerConfig, error) {
	fn, ok := benchmarks.Lookup(req.Function)
	if !ok {
		return optimization.OptimizerConfig{}, apperrors.BadRequest("unknown function %q", req.Function)
	}

	limits := s.cfg.Optimization
	switch {
	case req.PopulationSize > limits.MaxPopulationSize:
		return optimization.OptimizerConfig{}, apperrors.BadRequest(
			"population_size %d exceeds the limit of %d", req.PopulationSize, limits.MaxPopulationSize)
	case req.Dimensions > limits.MaxDimensions || len(req.Bounds) > limits.MaxDimensions:
		return optimization.OptimizerConfig{}, apperrors.BadRequest(
			"dimensions exceed the limit of %d", limits.MaxDimensions)
	}

	bounds := req.Bounds
	switch {
	case len(bounds) == 0:
		dims := req.Dimensions
		if dims == 0 {
			dims = max(fn.MinDim, defaultDimensions)
		}
		b, err := fn.Bounds(dims)
		if err != nil {
			return optimization.OptimizerConfig{}, apperrors.Wrap(err, "invalid dimensions").WithStatus(http.StatusBadRequest)
		}
		bounds = b
	case req.Dimensions != 0 && req.Dimensions != len(bounds):
		return optimization.OptimizerConfig{}, apperrors.BadRequest(
			"dimensions %d does not match %d bounds", req.Dimensions, len(bounds))
	case len(bounds) < fn.MinDim:
		return optimization.OptimizerConfig{}, apperrors.BadRequest(
			"%s needs at least %d dimensions, got %d", fn.Name, fn.MinDim, len(bounds))
	}

	cfg := optimization.OptimizerConfig{
		Objective:       fn.Objective(),
		Bounds:          bounds,
		PopulationSize:  req.PopulationSize,
		F:               limits.F,
		CR:              limits.CR,
		Adaptive:        req.Adaptive,
		MaxGenerations:  req.MaxGenerations,
		StagnationLimit: req.StagnationLimit,
		Tolerance:       req.Tolerance,
		Polish:          req.Polish,
	}
	if cfg.PopulationSize == 0 {
		cfg.PopulationSize = limits.PopulationSize
	}
	if req.F != nil {
		cfg.F = *req.F
	}
	if req.CR != nil {
		cfg.CR = *req.CR
	}
	if req.TargetCost != nil {
		cfg.TargetCost = *req.TargetCost
		cfg.HasTarget = true
	}
	// Service jobs are always bounded.
	if cfg.MaxGenerations <= 0 || cfg.MaxGenerations > limits.MaxGenerations {
		cfg.MaxGenerations = limits.MaxGenerations
	}
	return cfg, nil
}

// startJob validates req, builds the engine and launches the run. The
// initial population is evaluated before startJob returns.
func (s *Server) startJob(req OptimizeRequest) (*Job, error) {
	cfg, err := s.optimizerConfig(req)
	if err != nil {
		return nil, err
	}

	select {
	case s.slots <- struct{}{}:
	default:
		return nil, apperrors.Errorf("too many running optimizations (limit %d)", cap(s.slots)).
			WithStatus(http.StatusTooManyRequests)
	}
	release := func() { <-s.slots }

	id := uuid.NewString()
	var src random.Source
	seed := req.Seed
	if seed == 0 {
		r, drawn, err := random.NewEntropy()
		if err != nil {
			release()
			return nil, apperrors.Wrap(err, "seeding random source")
		}
		src, seed = r, drawn
	} else {
		src = random.NewXoshiro(seed)
	}
	cfg.RandomSeed = seed

	now := time.Now()
	job := &Job{
		ID:          id,
		Function:    req.Function,
		Dimensions:  len(cfg.Bounds),
		Seed:        seed,
		Status:      StatusPending,
		StartTime:   now,
		LastUpdated: now,
	}

	record := s.metrics.Hook(id)
	hook := func(rep de.GenerationReport) {
		record(rep)
		s.mu.Lock()
		job.Generation = rep.Generation
		job.Evaluations = rep.Evaluations
		job.LastUpdated = time.Now()
		s.mu.Unlock()
	}

	runner, err := de.NewRunner(cfg, src,
		de.WithLogger(s.logger.Zap("de").With(zap.String("optimization_id", id))),
		de.WithGenerationHook(hook),
	)
	if err != nil {
		release()
		if errors.Is(err, optimization.ErrInvalidConfig) {
			return nil, apperrors.Wrap(err, "invalid optimization").WithStatus(http.StatusBadRequest)
		}
		return nil, apperrors.Wrap(err, "initializing optimizer")
	}
	job.runner = runner
	job.Evaluations = runner.Engine().Evaluations()

	var ctx context.Context
	if timeout := s.cfg.Optimization.JobTimeout; timeout > 0 {
		ctx, job.cancel = context.WithTimeout(s.ctx, timeout)
	} else {
		ctx, job.cancel = context.WithCancel(s.ctx)
	}

	s.mu.Lock()
	s.jobs[id] = job
	s.mu.Unlock()

	s.metrics.JobStarted()
	s.wg.Add(1)
	go s.run(ctx, job)

	s.logger.Info("Optimization started", map[string]interface{}{
		"optimization_id": id,
		"function":        job.Function,
		"dimensions":      job.Dimensions,
		"population_size": cfg.PopulationSize,
		"seed":            seed,
	})
	return job, nil
}

// run executes the job on its own goroutine.
func (s *Server) run(ctx context.Context, job *Job) {
	defer s.wg.Done()
	defer func() { <-s.slots }()
	defer job.cancel()

	s.mu.Lock()
	if job.Status == StatusPending {
		job.Status = StatusRunning
	}
	s.mu.Unlock()

	result, err := job.runner.Optimize(ctx)

	s.mu.Lock()
	now := time.Now()
	job.EndTime = &now
	job.LastUpdated = now
	switch {
	case job.Status == StatusCancelled:
		// cancelJob already reported the job as cancelled
	case err == nil:
		job.Status = StatusCompleted
	case errors.Is(err, context.Canceled):
		job.Status = StatusCancelled
	case errors.Is(err, context.DeadlineExceeded):
		job.Status = StatusFailed
		job.Err = "optimization timed out"
	default:
		job.Status = StatusFailed
		job.Err = err.Error()
	}
	if result != nil {
		job.Result = result
		job.Generation = result.Generations
		job.Evaluations = result.Evaluations
	}
	status, errMsg := job.Status, job.Err
	s.mu.Unlock()

	s.metrics.JobFinished(job.ID, string(status))

	fields := map[string]interface{}{
		"optimization_id": job.ID,
		"status":          status,
	}
	if result != nil {
		fields["generations"] = result.Generations
		fields["stop_reason"] = result.StopReason
		if optimization.IsFinite(result.BestSolution.Value) {
			fields["best_cost"] = result.BestSolution.Value
		}
	}
	if status == StatusFailed {
		fields["error"] = errMsg
		s.logger.Error("Optimization failed", fields)
		return
	}
	s.logger.Info("Optimization finished", fields)
}

// job returns the job registered under id.
func (s *Server) job(id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, apperrors.NotFound("optimization %q not found", id)
	}
	return job, nil
}

// cancelJob requests cancellation of a running job.
func (s *Server) cancelJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return apperrors.NotFound("optimization %q not found", id)
	}
	if job.Status.terminal() {
		return apperrors.Errorf("cannot cancel optimization with status: %s", job.Status).
			WithStatus(http.StatusConflict)
	}

	job.cancel()
	job.Status = StatusCancelled
	job.LastUpdated = time.Now()

	s.logger.Info("Optimization cancelled", map[string]interface{}{
		"optimization_id": id,
	})
	return nil
}

// SolutionView is the JSON form of a solution. Value is null when the cost
// is NaN or infinite.
type SolutionView struct {
	Parameters []float64 `json:"parameters"`
	Value      *float64  `json:"value"`
}

func solutionView(sol *optimization.Solution) *SolutionView {
	if sol == nil {
		return nil
	}
	v := &SolutionView{Parameters: sol.Parameters}
	if optimization.IsFinite(sol.Value) {
		value := sol.Value
		v.Value = &value
	}
	return v
}

// HistoryEntry is the incumbent after one generation.
type HistoryEntry struct {
	Generation  int           `json:"generation"`
	Evaluations int           `json:"evaluations"`
	Best        *SolutionView `json:"best"`
}

// JobView is the status document for a job.
type JobView struct {
	ID          string         `json:"optimization_id"`
	Status      JobStatus      `json:"status"`
	Function    string         `json:"function"`
	Dimensions  int            `json:"dimensions"`
	Seed        uint64         `json:"seed"`
	Generation  int            `json:"generation"`
	Evaluations int            `json:"evaluations"`
	StartTime   time.Time      `json:"start_time"`
	EndTime     *time.Time     `json:"end_time,omitempty"`
	LastUpdated time.Time      `json:"last_update"`
	Best        *SolutionView  `json:"best_solution,omitempty"`
	StopReason  string         `json:"stop_reason,omitempty"`
	Converged   bool           `json:"converged"`
	Polished    bool           `json:"polished,omitempty"`
	Error       string         `json:"error,omitempty"`
	History     []HistoryEntry `json:"history,omitempty"`
}

func (s *Server) view(job *Job, withHistory bool) JobView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v := JobView{
		ID:          job.ID,
		Status:      job.Status,
		Function:    job.Function,
		Dimensions:  job.Dimensions,
		Seed:        job.Seed,
		Generation:  job.Generation,
		Evaluations: job.Evaluations,
		StartTime:   job.StartTime,
		EndTime:     job.EndTime,
		LastUpdated: job.LastUpdated,
		Error:       job.Err,
	}
	if r := job.Result; r != nil {
		v.Best = solutionView(r.BestSolution)
		v.StopReason = string(r.StopReason)
		v.Converged = r.Converged
		v.Polished = r.Polished
	} else {
		v.Best = solutionView(job.runner.GetBestSolution())
	}

	if withHistory {
		for _, e := range job.runner.GetHistory() {
			v.History = append(v.History, HistoryEntry{
				Generation:  e.Generation,
				Evaluations: e.Evaluations,
				Best:        solutionView(e.Solution),
			})
		}
	}
	return v
}
