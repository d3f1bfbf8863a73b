package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cleanupd/pkg/models"
	"cleanupd/pkg/scheduler"
)

func dailyJob(t *testing.T, sc *scheduler.Scheduler) scheduler.Job {
	t.Helper()
	for _, job := range sc.ListUpcoming() {
		if job.Name == "daily-cleanup" {
			return job
		}
	}
	t.Fatal("daily-cleanup not registered")
	return scheduler.Job{}
}

func withScheduler(t *testing.T, h *harness) *scheduler.Scheduler {
	t.Helper()
	sc := scheduler.NewScheduler(nil, time.UTC)
	h.svc.engine = sc
	require.NoError(t, h.svc.RegisterJobs(DefaultSchedule()))
	return sc
}

func TestRetune_KeepsTwiceDailyCadence(t *testing.T) {
	base := clockStart()
	preload := []models.PerformanceSample{
		{DurationSeconds: 10, RecordsProcessed: 100, CPUUsage: 10, MemoryUsage: 20, Success: true, Timestamp: base.Add(-24 * time.Hour)},
		{DurationSeconds: 900, RecordsProcessed: 100, CPUUsage: 90, MemoryUsage: 90, Success: false, Timestamp: base.Add(9 * time.Hour).Add(-48 * time.Hour)},
	}
	h := newHarness(t, Options{MinSamplesForRetune: 1}, preload...)
	sc := withScheduler(t, h)

	_, err := h.svc.RunCleanup(context.Background(), dailyConfig())
	require.NoError(t, err)

	job := dailyJob(t, sc)
	assert.Equal(t, "0 5,17 * * *", job.Spec)
	assert.Contains(t, []int{5, 17}, job.NextRun.Hour())
}

func TestRetune_BestHourAlreadyScheduled(t *testing.T) {
	base := clockStart()
	preload := []models.PerformanceSample{
		// 02:00 today: fast and idle, so hour 2 outranks the 05:00 run
		{DurationSeconds: 1, RecordsProcessed: 100, Success: true, Timestamp: base.Add(-3 * time.Hour)},
	}
	h := newHarness(t, Options{MinSamplesForRetune: 1}, preload...)
	sc := withScheduler(t, h)

	_, err := h.svc.RunCleanup(context.Background(), dailyConfig())
	require.NoError(t, err)

	assert.Equal(t, "0 2,14 * * *", dailyJob(t, sc).Spec)
}

func TestShiftHours(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		best    int
		want    string
		changed bool
		wantErr bool
	}{
		{"shift both runs forward", "0 2,14 * * *", 5, "0 5,17 * * *", true, false},
		{"anchor on nearest hour", "0 2,14 * * *", 13, "0 1,13 * * *", true, false},
		{"wrap past midnight", "0 2,14 * * *", 23, "0 11,23 * * *", true, false},
		{"single hour keeps minute", "30 22 * * *", 1, "30 1 * * *", true, false},
		{"best already scheduled", "0 2,14 * * *", 14, "0 2,14 * * *", false, false},
		{"step expression", "0 */6 * * *", 5, "", false, true},
		{"descriptor", "@daily", 5, "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed, err := shiftHours(tt.spec, tt.best)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.changed, changed)
		})
	}
}
