package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Median-Group/differential-evolution2/internal/optimization/de"
)

func TestHookRecordsProgress(t *testing.T) {
	r := NewRecorder()
	r.JobStarted()
	hook := r.Hook("job-1")

	hook(de.GenerationReport{Generation: 1, Evaluations: 40, BestCost: 3.5, Duration: time.Millisecond})
	hook(de.GenerationReport{Generation: 2, Evaluations: 60, BestCost: 1.25, Duration: time.Millisecond})

	assert.Equal(t, 2.0, testutil.ToFloat64(r.generations))
	assert.Equal(t, 60.0, testutil.ToFloat64(r.evaluations))
	assert.Equal(t, 1.25, testutil.ToFloat64(r.bestCost.WithLabelValues("job-1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.activeJobs))
	assert.Equal(t, 1, testutil.CollectAndCount(r.generationDuration))

	r.JobFinished("job-1", "completed")
	assert.Equal(t, 0.0, testutil.ToFloat64(r.activeJobs))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.jobs.WithLabelValues("completed")))
	assert.Equal(t, 0, testutil.CollectAndCount(r.bestCost))
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := NewRecorder()
	r.Hook("j")(de.GenerationReport{Generation: 1, Evaluations: 8, BestCost: 2})

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "de_generations_total 1")
	assert.Contains(t, body, "de_evaluations_total 8")
	assert.Contains(t, body, `de_best_cost{job="j"} 2`)
	assert.Contains(t, body, "go_goroutines")
}
