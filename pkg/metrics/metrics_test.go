package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mchmarny/yzlm/pkg/sim"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Observe(t *testing.T) {
	r := NewRecorder()

	r.Observe(&sim.Report{Iterations: 7, Diff: 1e-26, Error: 0.08, Converged: true})
	r.Observe(&sim.Report{Iterations: 3, Diff: 1e-26, Error: 0.1, Converged: true})
	r.Observe(&sim.Report{Iterations: 100, Diff: 0.5, Error: 0.3})
	r.Observe(nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.Runs.WithLabelValues("converged")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Runs.WithLabelValues("capped")))
	assert.Equal(t, 0.5, testutil.ToFloat64(r.FinalDiff))
	assert.Equal(t, 1, testutil.CollectAndCount(r.Iterations, "yzlm_iterations"))
	assert.Equal(t, 1, testutil.CollectAndCount(r.QualityError, "yzlm_quality_error"))
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.Observe(&sim.Report{Iterations: 5, Diff: 1e-25, Error: 0.05, Converged: true})

	path := filepath.Join(t.TempDir(), "yzlm.prom")
	require.NoError(t, r.WriteTextfile(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(b)
	assert.Contains(t, out, `yzlm_runs_total{status="converged"} 1`)
	assert.Contains(t, out, "yzlm_iterations_count 1")
	assert.Contains(t, out, "yzlm_quality_error_sum 0.05")

	n, err := testutil.GatherAndCount(r.Gatherer())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestRecorder_WriteTextfile_NoPath(t *testing.T) {
	assert.Error(t, NewRecorder().WriteTextfile(""))
}
