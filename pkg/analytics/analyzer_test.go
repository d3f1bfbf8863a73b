package analytics

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cleanupd/pkg/models"
	"cleanupd/pkg/state"
)

type memoryStore struct {
	samples []models.PerformanceSample
	err     error
}

func (m *memoryStore) Load() ([]models.PerformanceSample, error) { return m.samples, nil }

func (m *memoryStore) Append(s models.PerformanceSample) error {
	if m.err != nil {
		return m.err
	}
	m.samples = append(m.samples, s)
	return nil
}

func (m *memoryStore) Close() error { return nil }

var baseTime = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

func newTestAnalyzer(t *testing.T, samples ...models.PerformanceSample) *Analyzer {
	t.Helper()

	a, err := NewAnalyzer(&memoryStore{samples: samples}, nil)
	require.NoError(t, err)
	a.now = func() time.Time { return baseTime.Add(24 * time.Hour) }
	return a
}

func at(hour int) time.Time {
	return baseTime.Add(time.Duration(hour) * time.Hour)
}

func TestAnalyzeTrends_EmptyHistory(t *testing.T) {
	a := newTestAnalyzer(t)

	report := a.AnalyzeTrends(30)
	assert.Equal(t, 0.0, report.EfficiencyScore)
	assert.Empty(t, report.OptimalTimes)
	assert.Empty(t, report.PeakUsagePeriods)
	assert.Equal(t, []string{"Insufficient data for analysis"}, report.Recommendations)
}

func TestAnalyzeTrends_IgnoresSamplesOutsideWindow(t *testing.T) {
	old := models.PerformanceSample{DurationSeconds: 10, CPUUsage: 10, MemoryUsage: 10, Success: true,
		Timestamp: baseTime.AddDate(0, 0, -40)}
	a := newTestAnalyzer(t, old)

	report := a.AnalyzeTrends(30)
	assert.Equal(t, 0, report.SampleCount)
	assert.Equal(t, []string{"Insufficient data for analysis"}, report.Recommendations)
}

func TestRecord_PersistsThroughStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.json")

	a, err := NewAnalyzer(state.NewFileStore(path), nil)
	require.NoError(t, err)
	require.NoError(t, a.Record(models.PerformanceSample{DurationSeconds: 5, RecordsProcessed: 50, Success: true, Timestamp: at(1)}))

	reloaded, err := NewAnalyzer(state.NewFileStore(path), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.Len())
}

func TestRecord_StoreFailureIsReturned(t *testing.T) {
	store := &memoryStore{err: errors.New("disk full")}
	a, err := NewAnalyzer(store, nil)
	require.NoError(t, err)

	err = a.Record(models.PerformanceSample{Timestamp: at(1)})
	assert.Error(t, err)
	assert.Equal(t, 0, a.Len())
}

func TestRecord_StampsMissingTimestamp(t *testing.T) {
	store := &memoryStore{}
	a, err := NewAnalyzer(store, nil)
	require.NoError(t, err)
	a.now = func() time.Time { return at(5) }

	require.NoError(t, a.Record(models.PerformanceSample{DurationSeconds: 1}))
	assert.Equal(t, at(5), store.samples[0].Timestamp)
}

func TestAnalyzeTrends_RanksOptimalHours(t *testing.T) {
	a := newTestAnalyzer(t,
		models.PerformanceSample{DurationSeconds: 600, CPUUsage: 70, MemoryUsage: 70, Success: true, Timestamp: at(14)},
		models.PerformanceSample{DurationSeconds: 60, CPUUsage: 10, MemoryUsage: 20, Success: true, Timestamp: at(2)},
		models.PerformanceSample{DurationSeconds: 120, CPUUsage: 20, MemoryUsage: 30, Success: true, Timestamp: at(3)},
		models.PerformanceSample{DurationSeconds: 300, CPUUsage: 50, MemoryUsage: 50, Success: true, Timestamp: at(20)},
	)

	report := a.AnalyzeTrends(30)
	require.Len(t, report.OptimalTimes, 3)
	assert.Equal(t, 2, report.OptimalTimes[0].Hour)
	assert.Equal(t, 3, report.OptimalTimes[1].Hour)
	assert.Equal(t, 20, report.OptimalTimes[2].Hour)
	assert.InDelta(t, 0.4/60+0.3/10+0.2/20+0.1, report.OptimalTimes[0].Score, 1e-9)
}

func TestAnalyzeTrends_PeakPeriodsAreEdgeDetected(t *testing.T) {
	cpu := []float64{90, 85, 50, 95, 40, 90}
	samples := make([]models.PerformanceSample, 0, len(cpu))
	for i, c := range cpu {
		samples = append(samples, models.PerformanceSample{
			DurationSeconds: 100, CPUUsage: c, MemoryUsage: 30, Success: true, Timestamp: at(i),
		})
	}
	a := newTestAnalyzer(t, samples...)

	peaks := a.AnalyzeTrends(30).PeakUsagePeriods
	require.Len(t, peaks, 3)
	assert.Equal(t, at(0), peaks[0].Start)
	assert.Equal(t, at(1), peaks[0].End)
	assert.Equal(t, 90.0, peaks[0].MaxCPU)
	assert.Equal(t, at(3), peaks[1].Start)
	assert.Equal(t, at(3), peaks[1].End)
	assert.Equal(t, at(5), peaks[2].Start, "trailing peak is closed at the last sample")
}

func TestAnalyzeTrends_EfficiencyAndRecommendations(t *testing.T) {
	a := newTestAnalyzer(t,
		models.PerformanceSample{DurationSeconds: 150, CPUUsage: 20, MemoryUsage: 20, Success: true, Timestamp: at(2)},
		models.PerformanceSample{DurationSeconds: 600, CPUUsage: 60, MemoryUsage: 60, Success: false, Timestamp: at(14)},
	)

	report := a.AnalyzeTrends(30)
	assert.InDelta(t, (92.0+36.0)/2, report.EfficiencyScore, 1e-9)
	assert.Contains(t, report.Recommendations, "Consider reducing batch size to improve performance")
	assert.Contains(t, report.Recommendations, "Avoid scheduling cleanups during hour 14 (success rate: 0.0%)")
}

func TestAnalyzeTrends_TooManyPeaks(t *testing.T) {
	samples := []models.PerformanceSample{}
	for i := 0; i < 12; i++ {
		cpu := 10.0
		if i%2 == 0 {
			cpu = 95
		}
		samples = append(samples, models.PerformanceSample{
			DurationSeconds: 60, CPUUsage: cpu, MemoryUsage: 10, Success: true, Timestamp: at(i),
		})
	}
	a := newTestAnalyzer(t, samples...)

	report := a.AnalyzeTrends(30)
	assert.Len(t, report.PeakUsagePeriods, 6)
	assert.Contains(t, report.Recommendations, "High resource usage detected - consider spreading cleanup operations")
}

func TestAnalyzeTrends_HealthyHistoryHasNoRecommendations(t *testing.T) {
	a := newTestAnalyzer(t,
		models.PerformanceSample{DurationSeconds: 100, CPUUsage: 10, MemoryUsage: 10, Success: true, Timestamp: at(1)},
		models.PerformanceSample{DurationSeconds: 100, CPUUsage: 10, MemoryUsage: 10, Success: true, Timestamp: at(2)},
	)

	report := a.AnalyzeTrends(30)
	assert.Empty(t, report.Recommendations)
	assert.InDelta(t, 96.0, report.EfficiencyScore, 1e-9)
}

func TestAnalyzeTrends_ZeroDurationDoesNotPanic(t *testing.T) {
	a := newTestAnalyzer(t,
		models.PerformanceSample{DurationSeconds: 0, CPUUsage: 0, MemoryUsage: 0, Success: true, Timestamp: at(4)},
	)

	report := a.AnalyzeTrends(30)
	require.Len(t, report.OptimalTimes, 1)
	assert.InDelta(t, 100.0, report.EfficiencyScore, 1e-9)
}
