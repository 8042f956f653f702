package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks job lifecycle counters for the API and worker services.
type Metrics struct {
	JobsSubmitted prometheus.Counter
	JobsCompleted prometheus.Counter
	JobsFailed    prometheus.Counter
	JobsKilled    prometheus.Counter
	JobsExecuting prometheus.Gauge
	JobRuntime    prometheus.Histogram
}

// New creates the metric set and registers it with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cloudpipe_jobs_submitted_total",
			Help: "Jobs accepted for execution.",
		}),
		JobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cloudpipe_jobs_completed_total",
			Help: "Jobs that finished successfully.",
		}),
		JobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cloudpipe_jobs_failed_total",
			Help: "Jobs that finished with an error.",
		}),
		JobsKilled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cloudpipe_jobs_killed_total",
			Help: "Jobs terminated by a kill request.",
		}),
		JobsExecuting: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cloudpipe_jobs_executing",
			Help: "Jobs currently running on this worker.",
		}),
		JobRuntime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cloudpipe_job_runtime_seconds",
			Help:    "Wall-clock job execution time.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
	}

	reg.MustRegister(
		m.JobsSubmitted,
		m.JobsCompleted,
		m.JobsFailed,
		m.JobsKilled,
		m.JobsExecuting,
		m.JobRuntime,
	)

	return m
}

// NewDefault registers against the default Prometheus registry.
func NewDefault() *Metrics {
	return New(prometheus.DefaultRegisterer)
}
