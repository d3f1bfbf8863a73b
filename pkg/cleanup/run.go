package cleanup

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cleanupd/pkg/analytics"
	"cleanupd/pkg/backup"
	"cleanupd/pkg/models"
	"cleanupd/pkg/notify"
)

// runResult carries what execute produced
type runResult struct {
	before   models.SystemMetrics
	after    models.SystemMetrics
	archived int64
	backupID string
}

// RunCleanup executes one cleanup cycle. A second caller waits for the
// run in flight; a caller whose ctx ends while waiting gets ctx.Err() and
// no outcome is recorded.
func (s *Service) RunCleanup(ctx context.Context, cfg models.CleanupConfig) (models.CleanupOutcome, error) {
	if err := cfg.Validate(); err != nil {
		return models.CleanupOutcome{}, err
	}

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return models.CleanupOutcome{}, ctx.Err()
	}
	defer func() { <-s.sem }()

	return s.run(ctx, cfg)
}

// RunAsync validates cfg and starts a run in the background bounded by
// RunTimeout. It returns an ID that tags the run's log lines.
func (s *Service) RunAsync(cfg models.CleanupConfig) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	runID := uuid.New().String()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.RunTimeout)
		defer cancel()

		if _, err := s.RunCleanup(ctx, cfg); err != nil {
			s.logger.Error("manual cleanup failed", zap.String("run_id", runID), zap.Error(err))
			return
		}
		s.logger.Info("manual cleanup finished", zap.String("run_id", runID))
	}()
	return runID, nil
}

func (s *Service) run(ctx context.Context, cfg models.CleanupConfig) (models.CleanupOutcome, error) {
	started := s.now()
	if cfg.JobType == "" {
		cfg.JobType = models.JobManual
	}

	s.logger.Info("starting cleanup",
		zap.String("job_type", cfg.JobType),
		zap.Int("retention_days", cfg.RetentionDays),
		zap.Bool("backup_first", cfg.BackupFirst),
		zap.Bool("optimize_storage", cfg.OptimizeStorage),
	)

	res, err := s.execute(ctx, &cfg, started)
	duration := s.now().Sub(started).Seconds()

	if err != nil {
		outcome := models.CleanupOutcome{
			Timestamp:       started,
			JobType:         cfg.JobType,
			RecordsArchived: 0,
			DurationSeconds: duration,
			Success:         false,
			ErrorMessage:    err.Error(),
			BatchSize:       cfg.BatchSize,
			BackupID:        res.backupID,
		}
		s.history.Append(outcome)
		s.feed(outcome, res.before)
		s.metrics.ObserveRun(outcome)

		s.logger.Error("cleanup failed",
			zap.String("job_type", cfg.JobType),
			zap.Float64("duration_seconds", duration),
			zap.Error(err),
		)
		s.alert(ctx, "Cleanup Failed", fmt.Sprintf("%s cleanup failed: %v", cfg.JobType, err))
		return outcome, err
	}

	outcome := models.CleanupOutcome{
		Timestamp:       started,
		JobType:         cfg.JobType,
		RecordsArchived: res.archived,
		DurationSeconds: duration,
		Success:         true,
		BatchSize:       cfg.BatchSize,
		BackupID:        res.backupID,
	}
	if res.before.DiskUsedBytes > res.after.DiskUsedBytes {
		outcome.DiskFreedBytes = res.before.DiskUsedBytes - res.after.DiskUsedBytes
	}

	// Reporting is best effort
	report := notify.Payload{
		"job_type":         outcome.JobType,
		"records_archived": outcome.RecordsArchived,
		"duration_seconds": outcome.DurationSeconds,
		"batch_size":       outcome.BatchSize,
		"backup_id":        outcome.BackupID,
		"disk_freed_bytes": outcome.DiskFreedBytes,
		"metrics_before":   res.before,
		"metrics_after":    res.after,
		"status":           "success",
		"timestamp":        outcome.Timestamp,
	}
	if err := s.sink.SendReport(ctx, report); err != nil {
		s.logger.Warn("failed to send cleanup report", zap.Error(err))
	}

	s.mu.Lock()
	last := started
	s.lastCleanup = &last
	s.totalArchived += outcome.RecordsArchived
	s.mu.Unlock()
	s.history.Append(outcome)

	s.feed(outcome, res.after)
	s.metrics.ObserveRun(outcome)

	s.logger.Info("cleanup completed",
		zap.String("job_type", outcome.JobType),
		zap.Int64("records_archived", outcome.RecordsArchived),
		zap.Float64("duration_seconds", outcome.DurationSeconds),
		zap.Int("batch_size", outcome.BatchSize),
	)

	if outcome.DurationSeconds > 0 && outcome.RecordsArchived > 0 {
		s.retune()
	}
	return outcome, nil
}

// execute snapshots load, backs up, archives and optimizes. cfg.BatchSize
// is replaced with the controller's proposal when AdaptiveBatch is set.
func (s *Service) execute(ctx context.Context, cfg *models.CleanupConfig, started time.Time) (runResult, error) {
	var res runResult

	before, err := s.source.Snapshot(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to collect metrics before cleanup: %w", err)
	}
	res.before = before

	if cfg.AdaptiveBatch {
		cfg.BatchSize = s.tuner.ProposeBatchSize(before.MemoryPercent)
	}

	// Nothing is archived unless the backup verifies
	if cfg.BackupFirst {
		handle, err := s.store.CreateBackup(ctx, s.opts.BackupDir, s.opts.BackupCompress)
		if err != nil {
			return res, fmt.Errorf("failed to create backup: %w", err)
		}
		res.backupID = handle.ID

		result, err := s.verifier.Verify(ctx, handle)
		if err != nil {
			return res, fmt.Errorf("%w: %w", ErrBackupVerification, err)
		}
		if !result.Valid() {
			return res, fmt.Errorf("%w: %s", ErrBackupVerification, result.ErrorMessage)
		}

		s.afterBackup(ctx, handle)
	}

	archived, err := s.store.ArchiveOlderThan(ctx, cfg.Cutoff(started), cfg.BatchSize)
	if err != nil {
		return res, fmt.Errorf("failed to archive records: %w", err)
	}
	res.archived = archived

	if cfg.OptimizeStorage {
		if err := s.store.Optimize(ctx); err != nil {
			return res, fmt.Errorf("failed to optimize storage: %w", err)
		}
	}

	after, err := s.source.Snapshot(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to collect metrics after cleanup: %w", err)
	}
	res.after = after
	return res, nil
}

// afterBackup replicates a verified backup and prunes expired local ones.
// Neither step can fail the run.
func (s *Service) afterBackup(ctx context.Context, handle models.BackupHandle) {
	if s.replicator != nil {
		if _, err := s.replicator.Replicate(ctx, handle); err != nil {
			s.logger.Warn("failed to replicate backup", zap.String("backup_id", handle.ID), zap.Error(err))
			s.alert(ctx, "Backup Replication Failed", err.Error())
		}
	}

	cutoff := s.now().AddDate(0, 0, -s.opts.BackupRetentionDays)
	removed, err := backup.PruneLocal(s.opts.BackupDir, cutoff)
	if err != nil {
		s.logger.Warn("failed to prune old backups", zap.Error(err))
	}
	if removed > 0 {
		s.logger.Info("pruned old backups", zap.Int("removed", removed))
	}
}

// feed records the run with the batch controller and the analyzer
func (s *Service) feed(outcome models.CleanupOutcome, load models.SystemMetrics) {
	s.tuner.RecordRun(models.NewBatchMetrics(
		outcome.BatchSize,
		outcome.DurationSeconds,
		outcome.RecordsArchived,
		outcome.Success,
		load.CPUPercent,
		load.MemoryPercent,
	))

	err := s.analyzer.Record(models.PerformanceSample{
		DurationSeconds:  outcome.DurationSeconds,
		RecordsProcessed: outcome.RecordsArchived,
		CPUUsage:         load.CPUPercent,
		MemoryUsage:      load.MemoryPercent,
		Success:          outcome.Success,
		Timestamp:        outcome.Timestamp,
	})
	if err != nil {
		s.logger.Error("failed to record performance sample", zap.Error(err))
	}
}

// retune shifts the primary trigger toward the best hour once enough
// history exists. Every hour of the trigger moves by the same offset so the
// cadence is kept; nothing changes when the best hour is already scheduled.
func (s *Service) retune() {
	s.mu.RLock()
	primary := s.primary
	s.mu.RUnlock()

	if s.engine == nil || primary == "" {
		return
	}
	if s.analyzer.Len() < s.opts.MinSamplesForRetune {
		return
	}

	report := s.analyzer.AnalyzeTrends(analytics.DefaultWindowDays)
	if len(report.OptimalTimes) == 0 {
		return
	}
	best := report.OptimalTimes[0].Hour

	var current string
	for _, job := range s.engine.ListUpcoming() {
		if job.Handle == primary {
			current = job.Spec
			break
		}
	}
	if current == "" {
		return
	}

	spec, changed, err := shiftHours(current, best)
	if err != nil {
		s.logger.Debug("primary trigger not retunable", zap.String("spec", current), zap.Error(err))
		return
	}
	if !changed {
		return
	}

	if err := s.engine.Reschedule(primary, spec); err != nil {
		s.logger.Error("failed to reschedule primary cleanup", zap.String("spec", spec), zap.Error(err))
		return
	}
	s.logger.Info("primary cleanup rescheduled",
		zap.String("from", current),
		zap.String("to", spec),
		zap.Int("best_hour", best),
		zap.Float64("score", report.OptimalTimes[0].Score),
	)
}

// shiftHours moves the hour list of a five-field cron spec so that the hour
// nearest to best lands on it. Only plain hour lists such as "2,14" qualify.
func shiftHours(spec string, best int) (string, bool, error) {
	fields := strings.Fields(spec)
	if len(fields) != 5 {
		return "", false, fmt.Errorf("expected five cron fields, got %q", spec)
	}

	parts := strings.Split(fields[1], ",")
	hours := make([]int, 0, len(parts))
	for _, p := range parts {
		h, err := strconv.Atoi(p)
		if err != nil || h < 0 || h > 23 {
			return "", false, fmt.Errorf("hour field %q is not a plain list", fields[1])
		}
		if h == best {
			return spec, false, nil
		}
		hours = append(hours, h)
	}

	anchor, bestDist := hours[0], 24
	for _, h := range hours {
		d := h - best
		if d < 0 {
			d = -d
		}
		d = min(d, 24-d)
		if d < bestDist {
			anchor, bestDist = h, d
		}
	}

	offset := best - anchor
	shifted := make([]int, len(hours))
	for i, h := range hours {
		shifted[i] = ((h+offset)%24 + 24) % 24
	}
	sort.Ints(shifted)

	out := make([]string, len(shifted))
	for i, h := range shifted {
		out[i] = strconv.Itoa(h)
	}
	fields[1] = strings.Join(out, ",")
	return strings.Join(fields, " "), true, nil
}
