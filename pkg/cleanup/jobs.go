package cleanup

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cleanupd/pkg/models"
	"cleanupd/pkg/scheduler"
)

// Schedule describes the recurring jobs
type Schedule struct {
	Daily               string        `mapstructure:"daily"`
	Optimized           string        `mapstructure:"optimized"`
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`
	RetentionDays       int           `mapstructure:"retention_days"`
	BatchSize           int           `mapstructure:"batch_size"`
	BackupFirst         bool          `mapstructure:"backup_first"`
}

// DefaultSchedule runs twice daily, optimizes twice weekly and checks
// health every 30 minutes
func DefaultSchedule() Schedule {
	return Schedule{
		Daily:               "0 2,14 * * *",
		Optimized:           "0 3 * * 0,3",
		HealthCheckInterval: 30 * time.Minute,
		RetentionDays:       30,
		BatchSize:           1000,
		BackupFirst:         true,
	}
}

// DailyConfig is the config bound to the primary trigger
func (sc Schedule) DailyConfig() models.CleanupConfig {
	return models.CleanupConfig{
		JobType:       models.JobDaily,
		RetentionDays: sc.RetentionDays,
		BatchSize:     sc.BatchSize,
		BackupFirst:   sc.BackupFirst,
		AdaptiveBatch: true,
	}
}

// OptimizedConfig is the config bound to the optimization trigger
func (sc Schedule) OptimizedConfig() models.CleanupConfig {
	return models.CleanupConfig{
		JobType:         models.JobOptimized,
		RetentionDays:   sc.RetentionDays,
		BatchSize:       sc.BatchSize,
		OptimizeStorage: true,
		BackupFirst:     sc.BackupFirst,
		AdaptiveBatch:   true,
	}
}

// RegisterJobs registers the recurring cleanups and the health check. The
// daily trigger becomes the primary one that retuning may move.
func (s *Service) RegisterJobs(sc Schedule) error {
	if s.engine == nil {
		return fmt.Errorf("no trigger engine configured")
	}
	if err := sc.DailyConfig().Validate(); err != nil {
		return err
	}

	primary, err := s.engine.Register("daily-cleanup", scheduler.KindCron, sc.Daily, s.cleanupJob(sc.DailyConfig()))
	if err != nil {
		return fmt.Errorf("failed to register daily cleanup: %w", err)
	}

	if _, err := s.engine.Register("optimized-cleanup", scheduler.KindCron, sc.Optimized, s.cleanupJob(sc.OptimizedConfig())); err != nil {
		return fmt.Errorf("failed to register optimized cleanup: %w", err)
	}

	interval := sc.HealthCheckInterval
	if interval <= 0 {
		interval = DefaultSchedule().HealthCheckInterval
	}
	if _, err := s.engine.Register("health-check", scheduler.KindInterval, interval.String(), s.HealthCheck); err != nil {
		return fmt.Errorf("failed to register health check: %w", err)
	}

	s.mu.Lock()
	s.primary = primary
	s.mu.Unlock()

	s.logger.Info("cleanup jobs registered",
		zap.String("daily", sc.Daily),
		zap.String("optimized", sc.Optimized),
		zap.Duration("health_check", interval),
	)
	return nil
}

// cleanupJob binds cfg to a trigger callback bounded by RunTimeout
func (s *Service) cleanupJob(cfg models.CleanupConfig) scheduler.Callback {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, s.opts.RunTimeout)
		defer cancel()

		_, err := s.RunCleanup(ctx, cfg)
		return err
	}
}

// HealthCheck alerts when CPU or memory usage exceed the configured ceilings
func (s *Service) HealthCheck(ctx context.Context) error {
	metrics, err := s.source.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	if metrics.CPUPercent > s.opts.CPUAlertPercent {
		s.alert(ctx, "High CPU Usage", fmt.Sprintf("CPU usage at %.1f%%", metrics.CPUPercent))
	}
	if metrics.MemoryPercent > s.opts.MemoryAlertPercent {
		s.alert(ctx, "High Memory Usage", fmt.Sprintf("Memory usage at %.1f%%", metrics.MemoryPercent))
	}

	s.logger.Debug("health check",
		zap.Float64("cpu", metrics.CPUPercent),
		zap.Float64("memory", metrics.MemoryPercent),
		zap.Float64("disk", metrics.DiskPercent),
	)
	return nil
}
