package tuning

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"cleanupd/pkg/models"
	"cleanupd/pkg/structures"
)

// Efficiency weights for batch bucket scoring
const (
	throughputWeight = 0.5
	memoryWeight     = 0.3
	durationWeight   = 0.2
)

const (
	defaultSeed  = 1000
	recentWindow = 10
)

// Config bounds the batch controller
type Config struct {
	MinBatchSize   int     `mapstructure:"min_batch_size"`
	MaxBatchSize   int     `mapstructure:"max_batch_size"`
	TargetDuration float64 `mapstructure:"target_duration"` // seconds
	MemoryCeiling  float64 `mapstructure:"memory_ceiling"`  // percent
}

// DefaultConfig returns the stock bounds
func DefaultConfig() Config {
	return Config{
		MinBatchSize:   100,
		MaxBatchSize:   10000,
		TargetDuration: 300,
		MemoryCeiling:  80,
	}
}

// BucketEfficiency summarizes runs that used one batch size
type BucketEfficiency struct {
	BatchSize           int     `json:"batch_size"`
	EfficiencyScore     float64 `json:"efficiency_score"`
	AvgDuration         float64 `json:"avg_duration"`
	AvgRecordsPerSecond float64 `json:"avg_records_per_second"`
	AvgMemoryUsage      float64 `json:"avg_memory_usage"`
	Runs                int     `json:"runs"`
}

// Analysis is the output of Tuner.Analyze
type Analysis struct {
	OptimalBatchSize int                `json:"optimal_batch_size"`
	CurrentBatchSize int                `json:"current_batch_size"`
	BatchEfficiency  []BucketEfficiency `json:"batch_efficiency"`
	Recommendations  []string           `json:"recommendations"`
}

// Tuner proposes batch sizes from the trailing window of recorded runs.
// It is a hill-climbing feedback controller: it only reacts to recent
// history and may oscillate under bursty load.
type Tuner struct {
	mu      sync.Mutex
	config  Config
	current int
	history *structures.History[models.BatchMetrics]
	logger  *zap.Logger
}

// NewTuner creates a batch controller seeded at 1000
func NewTuner(config Config, logger *zap.Logger) *Tuner {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Tuner{
		config:  config,
		current: clamp(defaultSeed, config.MinBatchSize, config.MaxBatchSize),
		history: structures.NewHistory[models.BatchMetrics](structures.DefaultHistoryLimit),
		logger:  logger.Named("tuning"),
	}
}

// RecordRun records the outcome of a batch run
func (t *Tuner) RecordRun(metrics models.BatchMetrics) {
	t.history.Append(metrics)
}

// History returns recorded metrics, oldest first
func (t *Tuner) History() []models.BatchMetrics {
	return t.history.Snapshot()
}

// Current returns the seed used for the next proposal
func (t *Tuner) Current() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// ProposeBatchSize calculates the batch size for the next run from recent
// successful runs and the current memory usage. The result is always within
// [MinBatchSize, MaxBatchSize].
func (t *Tuner) ProposeBatchSize(currentMemoryUsage float64) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	recent := successful(t.history.Last(recentWindow))
	if len(recent) == 0 {
		return t.config.MinBatchSize
	}

	avgDuration, _ := averages(recent)

	proposed := t.current
	switch {
	case avgDuration > t.config.TargetDuration*1.2:
		proposed = int(float64(t.current) * 0.8)
	case avgDuration < t.config.TargetDuration*0.8:
		proposed = int(float64(t.current) * 1.2)
	}

	// Memory pressure dominates throughput tuning
	if currentMemoryUsage > t.config.MemoryCeiling {
		proposed = int(float64(t.current) * 0.7)
		t.logger.Warn("high memory usage, reducing batch size",
			zap.Float64("memory_usage", currentMemoryUsage),
			zap.Float64("ceiling", t.config.MemoryCeiling),
		)
	}

	proposed = clamp(proposed, t.config.MinBatchSize, t.config.MaxBatchSize)

	if proposed != t.current {
		t.logger.Info("adjusting batch size",
			zap.Int("from", t.current),
			zap.Int("to", proposed),
			zap.Float64("avg_duration", avgDuration),
			zap.Float64("memory_usage", currentMemoryUsage),
		)
		t.current = proposed
	}

	return proposed
}

// Analyze groups successful runs by batch size and scores each bucket
func (t *Tuner) Analyze() Analysis {
	t.mu.Lock()
	current := t.current
	t.mu.Unlock()

	all := t.history.Snapshot()
	if len(all) == 0 {
		return Analysis{
			OptimalBatchSize: current,
			CurrentBatchSize: current,
			BatchEfficiency:  []BucketEfficiency{},
			Recommendations:  []string{"Insufficient performance data"},
		}
	}

	ok := successful(all)
	if len(ok) == 0 {
		return Analysis{
			OptimalBatchSize: t.config.MinBatchSize,
			CurrentBatchSize: current,
			BatchEfficiency:  []BucketEfficiency{},
			Recommendations:  []string{"No successful operations recorded"},
		}
	}

	buckets := make(map[int][]models.BatchMetrics)
	for _, m := range ok {
		buckets[m.BatchSize] = append(buckets[m.BatchSize], m)
	}

	efficiency := make([]BucketEfficiency, 0, len(buckets))
	for size, runs := range buckets {
		avgDuration, avgThroughput := averages(runs)

		var memSum float64
		for _, r := range runs {
			memSum += r.MemoryUsage
		}
		avgMemory := memSum / float64(len(runs))

		var durationTerm float64
		if avgDuration > 0 {
			durationTerm = t.config.TargetDuration / avgDuration
		}

		efficiency = append(efficiency, BucketEfficiency{
			BatchSize: size,
			EfficiencyScore: avgThroughput*throughputWeight +
				(1-avgMemory/100)*memoryWeight +
				durationTerm*durationWeight,
			AvgDuration:         avgDuration,
			AvgRecordsPerSecond: avgThroughput,
			AvgMemoryUsage:      avgMemory,
			Runs:                len(runs),
		})
	}

	// Highest score first; ties go to the smaller batch
	sort.Slice(efficiency, func(i, j int) bool {
		if efficiency[i].EfficiencyScore != efficiency[j].EfficiencyScore {
			return efficiency[i].EfficiencyScore > efficiency[j].EfficiencyScore
		}
		return efficiency[i].BatchSize < efficiency[j].BatchSize
	})

	optimal := efficiency[0].BatchSize
	recommendations := []string{}
	if optimal != current {
		recommendations = append(recommendations,
			fmt.Sprintf("Consider changing batch size to %d for optimal performance", optimal))
	}

	return Analysis{
		OptimalBatchSize: optimal,
		CurrentBatchSize: current,
		BatchEfficiency:  efficiency,
		Recommendations:  recommendations,
	}
}

func successful(metrics []models.BatchMetrics) []models.BatchMetrics {
	out := make([]models.BatchMetrics, 0, len(metrics))
	for _, m := range metrics {
		if m.Success {
			out = append(out, m)
		}
	}
	return out
}

// averages returns mean duration and mean throughput. Entries without a
// throughput signal are excluded from the throughput mean.
func averages(metrics []models.BatchMetrics) (avgDuration, avgThroughput float64) {
	if len(metrics) == 0 {
		return 0, 0
	}

	var durSum, rpsSum float64
	var rpsCount int
	for _, m := range metrics {
		durSum += m.Duration
		if m.HasThroughput {
			rpsSum += m.RecordsPerSecond
			rpsCount++
		}
	}

	avgDuration = durSum / float64(len(metrics))
	if rpsCount > 0 {
		avgThroughput = rpsSum / float64(rpsCount)
	}
	return avgDuration, avgThroughput
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
