package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"cleanupd/pkg/models"
)

func TestObserveRun(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveRun(models.CleanupOutcome{JobType: models.JobDaily, Success: true, RecordsArchived: 250, BatchSize: 1000, DurationSeconds: 12, DiskFreedBytes: 4096})
	m.ObserveRun(models.CleanupOutcome{JobType: models.JobDaily, Success: false, BatchSize: 800, ErrorMessage: "boom"})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(models.JobDaily, "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(models.JobDaily, "failure")))
	assert.Equal(t, 250.0, testutil.ToFloat64(m.recordsArchived))
	assert.Equal(t, 4096.0, testutil.ToFloat64(m.diskFreed))
	assert.Equal(t, 800.0, testutil.ToFloat64(m.batchSize))
}

func TestObserveDisk(t *testing.T) {
	m := New(nil)

	m.ObserveEmergency()
	m.ObserveDiskCheck(91.5, true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.emergencies))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.emergencyMode))
	assert.Equal(t, 91.5, testutil.ToFloat64(m.diskUsage))

	m.ObserveDiskCheck(60, false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.emergencyMode))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveRun(models.CleanupOutcome{})
		m.ObserveDiskCheck(50, false)
		m.ObserveEmergency()
	})
	assert.Nil(t, m.Registry())
}
