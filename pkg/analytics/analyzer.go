// Package analytics turns the durable cleanup history into trend reports:
// best hours to run, high-load windows, an overall efficiency score and
// plain-text recommendations.
package analytics

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"cleanupd/pkg/models"
	"cleanupd/pkg/state"
)

const (
	// Duration reference for the efficiency score (5 minutes)
	referenceDuration = 300.0
	peakThreshold     = 80.0
	optimalHourCount  = 3

	lowEfficiency    = 70.0
	maxPeakPeriods   = 5
	minHourlySuccess = 80.0
	insufficientData = "Insufficient data for analysis"
)

// DefaultWindowDays is the trailing window used when none is given
const DefaultWindowDays = 30

// HourlyStats aggregates samples recorded during one hour of day
type HourlyStats struct {
	AvgDuration float64 `json:"avg_duration"`
	AvgCPU      float64 `json:"avg_cpu"`
	AvgMemory   float64 `json:"avg_memory"`
	SuccessRate float64 `json:"success_rate"` // percent
	Samples     int     `json:"samples"`
}

// OptimalTime is a ranked hour of day
type OptimalTime struct {
	Hour  int         `json:"hour"`
	Score float64     `json:"score"`
	Stats HourlyStats `json:"stats"`
}

// PeakPeriod is a contiguous run of high-load samples
type PeakPeriod struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	MaxCPU    float64   `json:"max_cpu"`
	MaxMemory float64   `json:"max_memory"`
}

// TrendReport is the result of AnalyzeTrends
type TrendReport struct {
	OptimalTimes     []OptimalTime `json:"optimal_times"`
	PeakUsagePeriods []PeakPeriod  `json:"peak_usage_periods"`
	EfficiencyScore  float64       `json:"efficiency_score"`
	Recommendations  []string      `json:"recommendations"`
	SampleCount      int           `json:"sample_count"`
}

// Analyzer records cleanup samples durably and analyzes them
type Analyzer struct {
	mu      sync.RWMutex
	store   state.SampleStore
	samples []models.PerformanceSample
	logger  *zap.Logger
	now     func() time.Time
}

// NewAnalyzer loads existing samples from the store
func NewAnalyzer(store state.SampleStore, logger *zap.Logger) (*Analyzer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	samples, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load performance history: %w", err)
	}

	a := &Analyzer{
		store:   store,
		samples: samples,
		logger:  logger.Named("analytics"),
		now:     time.Now,
	}

	a.logger.Info("performance history loaded", zap.Int("samples", len(samples)))
	return a, nil
}

// Record persists a sample. The sample is durable when Record returns nil.
func (a *Analyzer) Record(sample models.PerformanceSample) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if sample.Timestamp.IsZero() {
		sample.Timestamp = a.now()
	}

	if err := a.store.Append(sample); err != nil {
		return fmt.Errorf("failed to persist performance sample: %w", err)
	}

	a.samples = append(a.samples, sample)
	return nil
}

// Len returns the number of recorded samples
func (a *Analyzer) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.samples)
}

// AnalyzeTrends analyzes samples from the trailing windowDays. It never
// fails; missing data yields an empty report with an explanatory message.
func (a *Analyzer) AnalyzeTrends(windowDays int) TrendReport {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}

	cutoff := a.now().AddDate(0, 0, -windowDays)

	a.mu.RLock()
	recent := make([]models.PerformanceSample, 0, len(a.samples))
	for _, s := range a.samples {
		if s.Timestamp.After(cutoff) {
			recent = append(recent, s)
		}
	}
	a.mu.RUnlock()

	if len(recent) == 0 {
		return TrendReport{
			OptimalTimes:     []OptimalTime{},
			PeakUsagePeriods: []PeakPeriod{},
			EfficiencyScore:  0,
			Recommendations:  []string{insufficientData},
		}
	}

	hourly := hourlyPerformance(recent)
	peaks := peakPeriods(recent)
	efficiency := efficiencyScore(recent)

	return TrendReport{
		OptimalTimes:     optimalTimes(hourly),
		PeakUsagePeriods: peaks,
		EfficiencyScore:  efficiency,
		Recommendations:  recommendations(hourly, peaks, efficiency),
		SampleCount:      len(recent),
	}
}

func hourlyPerformance(samples []models.PerformanceSample) map[int]HourlyStats {
	type acc struct {
		duration, cpu, memory float64
		successes, n          int
	}

	buckets := make(map[int]*acc)
	for _, s := range samples {
		hour := s.Timestamp.Hour()
		b, ok := buckets[hour]
		if !ok {
			b = &acc{}
			buckets[hour] = b
		}
		b.duration += s.DurationSeconds
		b.cpu += s.CPUUsage
		b.memory += s.MemoryUsage
		if s.Success {
			b.successes++
		}
		b.n++
	}

	out := make(map[int]HourlyStats, len(buckets))
	for hour, b := range buckets {
		n := float64(b.n)
		out[hour] = HourlyStats{
			AvgDuration: b.duration / n,
			AvgCPU:      b.cpu / n,
			AvgMemory:   b.memory / n,
			SuccessRate: float64(b.successes) / n * 100,
			Samples:     b.n,
		}
	}
	return out
}

// optimalTimes ranks hours by 0.4/duration + 0.3/cpu + 0.2/memory + 0.1*success
func optimalTimes(hourly map[int]HourlyStats) []OptimalTime {
	scored := make([]OptimalTime, 0, len(hourly))
	for hour, stats := range hourly {
		score := inverse(stats.AvgDuration)*0.4 +
			inverse(stats.AvgCPU)*0.3 +
			inverse(stats.AvgMemory)*0.2 +
			(stats.SuccessRate/100)*0.1
		scored = append(scored, OptimalTime{Hour: hour, Score: score, Stats: stats})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Hour < scored[j].Hour
	})

	if len(scored) > optimalHourCount {
		scored = scored[:optimalHourCount]
	}
	return scored
}

// peakPeriods merges consecutive high-load samples. One sample at or below
// the threshold closes the current window.
func peakPeriods(samples []models.PerformanceSample) []PeakPeriod {
	ordered := make([]models.PerformanceSample, len(samples))
	copy(ordered, samples)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	peaks := []PeakPeriod{}
	var current *PeakPeriod
	for _, s := range ordered {
		if s.CPUUsage > peakThreshold || s.MemoryUsage > peakThreshold {
			if current == nil {
				current = &PeakPeriod{
					Start:     s.Timestamp,
					End:       s.Timestamp,
					MaxCPU:    s.CPUUsage,
					MaxMemory: s.MemoryUsage,
				}
				continue
			}
			current.End = s.Timestamp
			current.MaxCPU = max(current.MaxCPU, s.CPUUsage)
			current.MaxMemory = max(current.MaxMemory, s.MemoryUsage)
			continue
		}

		if current != nil {
			peaks = append(peaks, *current)
			current = nil
		}
	}

	// Data ending mid-peak still counts as a peak
	if current != nil {
		peaks = append(peaks, *current)
	}
	return peaks
}

// efficiencyScore averages a 0-100 per-sample score built from duration,
// resource usage and success
func efficiencyScore(samples []models.PerformanceSample) float64 {
	if len(samples) == 0 {
		return 0
	}

	var total float64
	for _, s := range samples {
		durationScore := 1.0
		if s.DurationSeconds > 0 {
			durationScore = min(1.0, referenceDuration/s.DurationSeconds)
		}
		resourceScore := 1 - (s.CPUUsage+s.MemoryUsage)/200
		successScore := 0.0
		if s.Success {
			successScore = 1.0
		}

		total += (durationScore*0.4 + resourceScore*0.4 + successScore*0.2) * 100
	}
	return total / float64(len(samples))
}

func recommendations(hourly map[int]HourlyStats, peaks []PeakPeriod, efficiency float64) []string {
	out := []string{}

	if efficiency < lowEfficiency {
		out = append(out, "Consider reducing batch size to improve performance")
	}

	if len(peaks) > maxPeakPeriods {
		out = append(out, "High resource usage detected - consider spreading cleanup operations")
	}

	worstHour := -1
	var worst HourlyStats
	for hour, stats := range hourly {
		if worstHour == -1 ||
			stats.SuccessRate < worst.SuccessRate ||
			(stats.SuccessRate == worst.SuccessRate && hour < worstHour) {
			worstHour = hour
			worst = stats
		}
	}

	if worstHour >= 0 && worst.SuccessRate < minHourlySuccess {
		out = append(out, fmt.Sprintf(
			"Avoid scheduling cleanups during hour %d (success rate: %.1f%%)",
			worstHour, worst.SuccessRate))
	}

	return out
}

// inverse floors the denominator at 1 so idle hours do not divide by zero
func inverse(v float64) float64 {
	if v < 1 {
		v = 1
	}
	return 1 / v
}
