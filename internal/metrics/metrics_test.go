package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.JobsSubmitted.Inc()
	m.JobsCompleted.Inc()
	m.JobsFailed.Inc()
	m.JobsKilled.Inc()
	m.JobsExecuting.Inc()
	m.JobRuntime.Observe(1.5)

	families, err := reg.Gather()
	require.NoError(t, err)

	got := make(map[string]bool, len(families))
	for _, mf := range families {
		got[mf.GetName()] = true
	}

	// Every lifecycle metric must be scrapeable from the registry it was
	// registered with.
	for _, name := range []string{
		"cloudpipe_jobs_submitted_total",
		"cloudpipe_jobs_completed_total",
		"cloudpipe_jobs_failed_total",
		"cloudpipe_jobs_killed_total",
		"cloudpipe_jobs_executing",
		"cloudpipe_job_runtime_seconds",
	} {
		assert.True(t, got[name], name)
	}
}
