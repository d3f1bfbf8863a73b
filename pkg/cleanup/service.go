// Package cleanup coordinates archival runs: backup and verification,
// archiving, optimization, reporting, and feeding the batch and schedule
// tuners with the results.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"cleanupd/pkg/analytics"
	"cleanupd/pkg/integrity"
	"cleanupd/pkg/models"
	"cleanupd/pkg/notify"
	"cleanupd/pkg/scheduler"
	"cleanupd/pkg/structures"
	"cleanupd/pkg/sysmetrics"
	"cleanupd/pkg/telemetry"
	"cleanupd/pkg/tuning"
)

var (
	// ErrInvalidRange is returned when a report's end precedes its start
	ErrInvalidRange = errors.New("end date must be after start date")
	// ErrBackupVerification aborts a run before anything is archived
	ErrBackupVerification = errors.New("backup verification failed")
)

// ArchiveStore moves aged rows out of the live datastore
type ArchiveStore interface {
	ArchiveOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
	Optimize(ctx context.Context) error
	CreateBackup(ctx context.Context, dir string, compress bool) (models.BackupHandle, error)
}

// BackupVerifier checks a backup before the run is allowed to archive
type BackupVerifier interface {
	Verify(ctx context.Context, handle models.BackupHandle) (integrity.VerificationResult, error)
}

// Replicator copies verified backups offsite
type Replicator interface {
	Replicate(ctx context.Context, handle models.BackupHandle) (string, error)
}

// TriggerEngine registers and rewrites the triggers that fire runs
type TriggerEngine interface {
	Register(name string, kind scheduler.Kind, spec string, callback scheduler.Callback) (scheduler.JobHandle, error)
	Reschedule(handle scheduler.JobHandle, spec string) error
	ListUpcoming() []scheduler.Job
}

// Options tunes the service
type Options struct {
	BackupDir           string        `mapstructure:"backup_dir"`
	BackupCompress      bool          `mapstructure:"backup_compress"`
	BackupRetentionDays int           `mapstructure:"backup_retention_days"`
	MinSamplesForRetune int           `mapstructure:"min_samples_for_retune"`
	RunTimeout          time.Duration `mapstructure:"run_timeout"`
	CPUAlertPercent     float64       `mapstructure:"cpu_alert_percent"`
	MemoryAlertPercent  float64       `mapstructure:"memory_alert_percent"`
}

// DefaultOptions returns the options used when a field is left zero
func DefaultOptions() Options {
	return Options{
		BackupDir:           "backups",
		BackupCompress:      true,
		BackupRetentionDays: 30,
		MinSamplesForRetune: 10,
		RunTimeout:          2 * time.Hour,
		CPUAlertPercent:     90,
		MemoryAlertPercent:  90,
	}
}

func (o *Options) applyDefaults() {
	d := DefaultOptions()
	if o.BackupDir == "" {
		o.BackupDir = d.BackupDir
	}
	if o.BackupRetentionDays <= 0 {
		o.BackupRetentionDays = d.BackupRetentionDays
	}
	if o.MinSamplesForRetune <= 0 {
		o.MinSamplesForRetune = d.MinSamplesForRetune
	}
	if o.RunTimeout <= 0 {
		o.RunTimeout = d.RunTimeout
	}
	if o.CPUAlertPercent <= 0 {
		o.CPUAlertPercent = d.CPUAlertPercent
	}
	if o.MemoryAlertPercent <= 0 {
		o.MemoryAlertPercent = d.MemoryAlertPercent
	}
}

// Deps are the collaborators of the service. Store, Source, Tuner and
// Analyzer are required.
type Deps struct {
	Store      ArchiveStore
	Verifier   BackupVerifier
	Replicator Replicator
	Engine     TriggerEngine
	Sink       notify.Sink
	Source     sysmetrics.Source
	Tuner      *tuning.Tuner
	Analyzer   *analytics.Analyzer
	Metrics    *telemetry.Metrics
	Logger     *zap.Logger
}

// Service is the cleanup orchestrator. At most one run is in flight.
type Service struct {
	sem chan struct{}

	mu            sync.RWMutex
	lastCleanup   *time.Time
	totalArchived int64
	primary       scheduler.JobHandle
	startTime     time.Time
	history       *structures.History[models.CleanupOutcome]

	store      ArchiveStore
	verifier   BackupVerifier
	replicator Replicator
	engine     TriggerEngine
	sink       notify.Sink
	source     sysmetrics.Source
	tuner      *tuning.Tuner
	analyzer   *analytics.Analyzer
	metrics    *telemetry.Metrics
	logger     *zap.Logger
	opts       Options
	now        func() time.Time
}

// NewService wires the orchestrator
func NewService(deps Deps, opts Options) (*Service, error) {
	if deps.Store == nil || deps.Source == nil || deps.Tuner == nil || deps.Analyzer == nil {
		return nil, fmt.Errorf("store, metrics source, tuner and analyzer are required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("cleanup")

	verifier := deps.Verifier
	if verifier == nil {
		verifier = integrity.NewVerifier(logger)
	}
	sink := deps.Sink
	if sink == nil {
		sink = notify.NewLogSink(logger)
	}
	opts.applyDefaults()

	return &Service{
		sem:        make(chan struct{}, 1),
		startTime:  time.Now(),
		history:    structures.NewHistory[models.CleanupOutcome](structures.DefaultHistoryLimit),
		store:      deps.Store,
		verifier:   verifier,
		replicator: deps.Replicator,
		engine:     deps.Engine,
		sink:       sink,
		source:     deps.Source,
		tuner:      deps.Tuner,
		analyzer:   deps.Analyzer,
		metrics:    deps.Metrics,
		logger:     logger,
		opts:       opts,
		now:        time.Now,
	}, nil
}

// Uptime returns seconds since the service was constructed
func (s *Service) Uptime() float64 {
	return s.now().Sub(s.startTime).Seconds()
}

// NextScheduledRun returns the earliest next fire across all triggers
func (s *Service) NextScheduledRun() (time.Time, bool) {
	if s.engine == nil {
		return time.Time{}, false
	}

	var next time.Time
	for _, job := range s.engine.ListUpcoming() {
		if job.NextRun.IsZero() {
			continue
		}
		if next.IsZero() || job.NextRun.Before(next) {
			next = job.NextRun
		}
	}
	return next, !next.IsZero()
}

// History returns recorded outcomes, oldest first
func (s *Service) History() []models.CleanupOutcome {
	return s.history.Snapshot()
}

// Stats returns the monitoring view. Metric collection failures leave the
// corresponding fields zero.
func (s *Service) Stats(ctx context.Context) models.SchedulerStats {
	s.mu.RLock()
	stats := models.SchedulerStats{
		Uptime:          s.Uptime(),
		RecordsArchived: s.totalArchived,
	}
	if s.lastCleanup != nil {
		last := *s.lastCleanup
		stats.LastCleanup = &last
	}
	s.mu.RUnlock()

	if next, ok := s.NextScheduledRun(); ok {
		stats.NextScheduledRun = &next
	}
	if s.engine != nil {
		stats.ActiveJobs = len(s.engine.ListUpcoming())
	}

	if metrics, err := s.source.Snapshot(ctx); err != nil {
		s.logger.Warn("failed to collect system metrics", zap.Error(err))
	} else {
		stats.Metrics = metrics
	}
	if usage, err := s.source.DiskUsage(ctx); err != nil {
		s.logger.Warn("failed to collect disk usage", zap.Error(err))
	} else {
		stats.DiskUsage = usage
	}
	return stats
}

// BatchAnalysis returns the batch controller's bucket analysis
func (s *Service) BatchAnalysis() tuning.Analysis {
	return s.tuner.Analyze()
}

// PerformanceAnalysis returns trend analysis over the trailing window
func (s *Service) PerformanceAnalysis(windowDays int) analytics.TrendReport {
	return s.analyzer.AnalyzeTrends(windowDays)
}

func (s *Service) alert(ctx context.Context, title, detail string) {
	if err := s.sink.SendAlert(ctx, title, detail); err != nil {
		s.logger.Warn("failed to send alert", zap.String("title", title), zap.Error(err))
	}
}
