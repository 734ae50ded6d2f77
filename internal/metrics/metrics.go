// Package metrics exports optimizer progress as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Median-Group/differential-evolution2/internal/optimization/de"
)

const namespace = "de"

// Recorder holds the service's collectors on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	generations        prometheus.Counter
	evaluations        prometheus.Counter
	bestCost           *prometheus.GaugeVec
	generationDuration prometheus.Histogram
	jobs               *prometheus.CounterVec
	activeJobs         prometheus.Gauge
}

// NewRecorder creates a Recorder with a fresh registry that also carries the
// Go runtime and process collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		generations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Generations completed across all jobs.",
		}),
		evaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Objective evaluations across all jobs.",
		}),
		bestCost: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_cost",
			Help:      "Best cost of each running job.",
		}, []string{"job"}),
		generationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Wall time of one generation.",
			Buckets:   prometheus.ExponentialBuckets(1e-5, 4, 10),
		}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Finished jobs by final status.",
		}, []string{"status"}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_jobs",
			Help:      "Jobs currently running.",
		}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.generations,
		r.evaluations,
		r.bestCost,
		r.generationDuration,
		r.jobs,
		r.activeJobs,
	)
	return r
}

// Registry returns the registry backing r.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Hook returns a GenerationHook that records progress for jobID.
// Evaluations are counted as the delta since the previous report, so the
// initial population is attributed to the first generation.
func (r *Recorder) Hook(jobID string) de.GenerationHook {
	gauge := r.bestCost.WithLabelValues(jobID)
	last := 0
	return func(rep de.GenerationReport) {
		r.generations.Inc()
		if d := rep.Evaluations - last; d > 0 {
			r.evaluations.Add(float64(d))
		}
		last = rep.Evaluations
		gauge.Set(rep.BestCost)
		r.generationDuration.Observe(rep.Duration.Seconds())
	}
}

// JobStarted marks a job as running.
func (r *Recorder) JobStarted() { r.activeJobs.Inc() }

// JobFinished records a job's final status and drops its best-cost series.
func (r *Recorder) JobFinished(jobID, status string) {
	r.activeJobs.Dec()
	r.jobs.WithLabelValues(status).Inc()
	r.bestCost.DeleteLabelValues(jobID)
}
