package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cleanupd/pkg/analytics"
	"cleanupd/pkg/cleanup"
	"cleanupd/pkg/guardian"
	"cleanupd/pkg/models"
	"cleanupd/pkg/scheduler"
	"cleanupd/pkg/tuning"
)

type fakeOrchestrator struct {
	mu         sync.Mutex
	runs       []models.CleanupConfig
	reportArgs []time.Time
	reportErr  error
	days       int
}

func (f *fakeOrchestrator) Stats(context.Context) models.SchedulerStats {
	return models.SchedulerStats{Uptime: 12, RecordsArchived: 340}
}

func (f *fakeOrchestrator) History() []models.CleanupOutcome {
	return []models.CleanupOutcome{{JobType: models.JobDaily, RecordsArchived: 340, Success: true}}
}

func (f *fakeOrchestrator) GenerateReport(_ context.Context, start, end time.Time, limit int) (cleanup.Report, error) {
	f.reportArgs = []time.Time{start, end}
	if f.reportErr != nil {
		return cleanup.Report{}, f.reportErr
	}
	if end.Before(start) {
		return cleanup.Report{}, cleanup.ErrInvalidRange
	}
	return cleanup.Report{Start: start, End: end, TotalJobs: limit}, nil
}

func (f *fakeOrchestrator) BatchAnalysis() tuning.Analysis {
	return tuning.Analysis{OptimalBatchSize: 2000}
}

func (f *fakeOrchestrator) PerformanceAnalysis(days int) analytics.TrendReport {
	f.days = days
	return analytics.TrendReport{SampleCount: 3}
}

func (f *fakeOrchestrator) RunAsync(cfg models.CleanupConfig) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	f.mu.Lock()
	f.runs = append(f.runs, cfg)
	f.mu.Unlock()
	return "run-1", nil
}

func (f *fakeOrchestrator) Uptime() float64 { return 12 }

type fakeDisk struct{ err error }

func (d fakeDisk) DiskUsage(context.Context) (models.DiskUsage, error) {
	return models.DiskUsage{Path: "/", Percent: 72.5}, d.err
}

type fakeGuardian struct{}

func (fakeGuardian) State() guardian.State {
	return guardian.State{Threshold: 85, LastUsagePercent: 72.5}
}

type fakeEngine struct {
	fired chan scheduler.JobHandle
}

func (e *fakeEngine) ListUpcoming() []scheduler.Job {
	return []scheduler.Job{
		{Handle: "h-1", Name: "daily-cleanup", Kind: scheduler.KindCron, Spec: "0 2,14 * * *"},
		{Handle: "h-2", Name: "disk-check", Kind: scheduler.KindInterval, Spec: "15m0s"},
	}
}

func (e *fakeEngine) Get(handle scheduler.JobHandle) (scheduler.Job, error) {
	for _, job := range e.ListUpcoming() {
		if job.Handle == handle {
			return job, nil
		}
	}
	return scheduler.Job{}, scheduler.ErrJobNotFound
}

func (e *fakeEngine) RunNow(handle scheduler.JobHandle) error {
	e.fired <- handle
	return nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *fakeOrchestrator, *fakeEngine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	orch := &fakeOrchestrator{}
	engine := &fakeEngine{fired: make(chan scheduler.JobHandle, 1)}
	h := NewHandler(HandlerDeps{
		Orchestrator: orch,
		Disk:         fakeDisk{},
		Guardian:     fakeGuardian{},
		Engine:       engine,
		Defaults:     cleanup.DefaultSchedule().DailyConfig(),
	})
	return SetupRouter(h, prometheus.NewRegistry(), nil), orch, engine
}

func do(router *gin.Engine, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealthCheck(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := do(router, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode(t, w)["status"])
}

func TestGetStats(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := do(router, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 340.0, decode(t, w)["records_archived"])
}

func TestGetHistory(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := do(router, http.MethodGet, "/api/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["history"], 1)
}

func TestGetReport(t *testing.T) {
	t.Run("explicit range", func(t *testing.T) {
		router, orch, _ := newTestRouter(t)

		w := do(router, http.MethodGet, "/api/report?start=2026-10-01T00:00:00Z&end=2026-10-08T00:00:00Z&limit=5", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 5.0, decode(t, w)["total_jobs"])
		assert.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), orch.reportArgs[0])
	})

	t.Run("reversed range", func(t *testing.T) {
		router, _, _ := newTestRouter(t)

		w := do(router, http.MethodGet, "/api/report?start=2026-10-08T00:00:00Z&end=2026-10-01T00:00:00Z", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("malformed time", func(t *testing.T) {
		router, _, _ := newTestRouter(t)

		w := do(router, http.MethodGet, "/api/report?start=yesterday", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("store failure", func(t *testing.T) {
		router, orch, _ := newTestRouter(t)
		orch.reportErr = errors.New("disk unreadable")

		w := do(router, http.MethodGet, "/api/report", "")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestAnalysisEndpoints(t *testing.T) {
	router, orch, _ := newTestRouter(t)

	w := do(router, http.MethodGet, "/api/analysis/batch", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2000.0, decode(t, w)["optimal_batch_size"])

	w = do(router, http.MethodGet, "/api/analysis/performance", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, analytics.DefaultWindowDays, orch.days)

	w = do(router, http.MethodGet, "/api/analysis/performance?days=7", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 7, orch.days)

	w = do(router, http.MethodGet, "/api/analysis/performance?days=0", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetDisk(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := do(router, http.MethodGet, "/api/disk", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Contains(t, body, "usage")
	assert.Contains(t, body, "guardian")
}

func TestGetDisk_Unavailable(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHandler(HandlerDeps{Orchestrator: &fakeOrchestrator{}, Disk: fakeDisk{err: errors.New("statfs failed")}})

	w := do(SetupRouter(h, nil, nil), http.MethodGet, "/api/disk", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRunCleanup(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		router, orch, _ := newTestRouter(t)

		w := do(router, http.MethodPost, "/api/cleanup/run", "")
		require.Equal(t, http.StatusAccepted, w.Code)
		assert.Equal(t, "run-1", decode(t, w)["run_id"])

		require.Len(t, orch.runs, 1)
		assert.Equal(t, models.JobManual, orch.runs[0].JobType)
		assert.Equal(t, 30, orch.runs[0].RetentionDays)
		assert.True(t, orch.runs[0].AdaptiveBatch)
	})

	t.Run("explicit batch disables adaptive sizing", func(t *testing.T) {
		router, orch, _ := newTestRouter(t)

		w := do(router, http.MethodPost, "/api/cleanup/run", `{"retention_days": 14, "batch_size": 250}`)
		require.Equal(t, http.StatusAccepted, w.Code)

		require.Len(t, orch.runs, 1)
		assert.Equal(t, 14, orch.runs[0].RetentionDays)
		assert.Equal(t, 250, orch.runs[0].BatchSize)
		assert.False(t, orch.runs[0].AdaptiveBatch)
	})

	t.Run("invalid config", func(t *testing.T) {
		router, orch, _ := newTestRouter(t)

		w := do(router, http.MethodPost, "/api/cleanup/run", `{"retention_days": 0}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, orch.runs)
	})

	t.Run("malformed body", func(t *testing.T) {
		router, _, _ := newTestRouter(t)

		w := do(router, http.MethodPost, "/api/cleanup/run", `{"retention_days":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestSchedule(t *testing.T) {
	router, _, engine := newTestRouter(t)

	w := do(router, http.MethodGet, "/api/schedule", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2.0, decode(t, w)["count"])

	w = do(router, http.MethodPost, "/api/schedule/h-2/run", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	select {
	case handle := <-engine.fired:
		assert.Equal(t, scheduler.JobHandle("h-2"), handle)
	case <-time.After(time.Second):
		t.Fatal("job was not fired")
	}

	w = do(router, http.MethodPost, "/api/schedule/missing/run", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := do(router, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
