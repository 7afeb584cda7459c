// Package metrics records reputation trial statistics with Prometheus collectors.
package metrics

import (
	"fmt"

	"github.com/mchmarny/yzlm/pkg/sim"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "yzlm"

// Recorder collects trial metrics into its own registry so a batch can be
// dumped for a node-exporter textfile collector.
type Recorder struct {
	registry *prometheus.Registry

	// Runs counts trials by outcome (converged, capped).
	Runs *prometheus.CounterVec
	// Iterations is the distribution of iterations to convergence.
	Iterations prometheus.Histogram
	// FinalDiff is the squared L2 diff of the most recent trial.
	FinalDiff prometheus.Gauge
	// QualityError is the distribution of RMSE against ground truth.
	QualityError prometheus.Histogram
}

// NewRecorder returns a recorder with all metrics registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of reputation runs by outcome",
			},
			[]string{"status"},
		),
		Iterations: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "iterations",
				Help:      "Iterations per reputation run",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
		FinalDiff: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "final_diff",
				Help:      "Squared L2 change in object reputation at the last iteration",
			},
		),
		QualityError: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "quality_error",
				Help:      "RMS error of object reputation against ground truth",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
		),
	}

	r.registry.MustRegister(r.Runs, r.Iterations, r.FinalDiff, r.QualityError)
	return r
}

// Observe records one trial report.
func (r *Recorder) Observe(rep *sim.Report) {
	if rep == nil {
		return
	}
	status := "converged"
	if !rep.Converged {
		status = "capped"
	}
	r.Runs.WithLabelValues(status).Inc()
	r.Iterations.Observe(float64(rep.Iterations))
	r.FinalDiff.Set(rep.Diff)
	r.QualityError.Observe(rep.Error)
}

// Gatherer exposes the underlying registry.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteTextfile writes all metrics to path in the text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if path == "" {
		return fmt.Errorf("metrics file path required")
	}
	if err := prometheus.WriteToTextfile(path, r.Gatherer()); err != nil {
		return fmt.Errorf("error writing metrics to %s: %w", path, err)
	}
	return nil
}
