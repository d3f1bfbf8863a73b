package cleanup

import (
	"context"
	"time"

	"go.uber.org/zap"

	"cleanupd/pkg/analytics"
	"cleanupd/pkg/models"
	"cleanupd/pkg/structures"
)

// Report summarizes cleanup activity over a period
type Report struct {
	Start                time.Time               `json:"start"`
	End                  time.Time               `json:"end"`
	TotalJobs            int                     `json:"total_jobs"`
	SuccessfulJobs       int                     `json:"successful_jobs"`
	SuccessRate          float64                 `json:"success_rate"` // percent
	TotalRecordsArchived int64                   `json:"total_records_archived"`
	AverageDuration      float64                 `json:"average_duration"`
	SystemMetrics        models.SystemMetrics    `json:"system_metrics"`
	DiskSpaceReclaimed   uint64                  `json:"disk_space_reclaimed"`
	EfficiencyScore      float64                 `json:"efficiency_score"`
	OptimalBatchSize     int                     `json:"optimal_batch_size"`
	History              []models.CleanupOutcome `json:"history"`
}

// GenerateReport summarizes runs with start <= timestamp <= end. History
// keeps the most recent limit entries in chronological order.
func (s *Service) GenerateReport(ctx context.Context, start, end time.Time, limit int) (Report, error) {
	if end.Before(start) {
		return Report{}, ErrInvalidRange
	}
	if limit <= 0 {
		limit = structures.DefaultHistoryLimit
	}

	inRange := []models.CleanupOutcome{}
	for _, outcome := range s.history.Snapshot() {
		if outcome.Timestamp.Before(start) || outcome.Timestamp.After(end) {
			continue
		}
		inRange = append(inRange, outcome)
	}

	report := Report{
		Start:     start,
		End:       end,
		TotalJobs: len(inRange),
	}

	var totalDuration float64
	for _, outcome := range inRange {
		if !outcome.Success {
			continue
		}
		report.SuccessfulJobs++
		report.TotalRecordsArchived += outcome.RecordsArchived
		report.DiskSpaceReclaimed += outcome.DiskFreedBytes
		totalDuration += outcome.DurationSeconds
	}
	if report.TotalJobs > 0 {
		report.SuccessRate = float64(report.SuccessfulJobs) / float64(report.TotalJobs) * 100
	}
	if report.SuccessfulJobs > 0 {
		report.AverageDuration = totalDuration / float64(report.SuccessfulJobs)
	}

	if metrics, err := s.source.Snapshot(ctx); err != nil {
		s.logger.Warn("failed to collect system metrics for report", zap.Error(err))
	} else {
		report.SystemMetrics = metrics
	}
	report.EfficiencyScore = s.analyzer.AnalyzeTrends(analytics.DefaultWindowDays).EfficiencyScore
	report.OptimalBatchSize = s.tuner.Analyze().OptimalBatchSize

	if len(inRange) > limit {
		inRange = inRange[len(inRange)-limit:]
	}
	report.History = inRange
	return report, nil
}
