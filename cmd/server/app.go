package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"cleanupd/pkg/analytics"
	"cleanupd/pkg/archive"
	"cleanupd/pkg/backup"
	"cleanupd/pkg/cleanup"
	"cleanupd/pkg/config"
	"cleanupd/pkg/guardian"
	"cleanupd/pkg/integrity"
	"cleanupd/pkg/logging"
	"cleanupd/pkg/notify"
	"cleanupd/pkg/scheduler"
	"cleanupd/pkg/state"
	"cleanupd/pkg/sysmetrics"
	"cleanupd/pkg/telemetry"
	"cleanupd/pkg/tuning"
)

// app holds the wired components shared by the subcommands
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	samples   state.SampleStore
	analyzer  *analytics.Analyzer
	collector *sysmetrics.Collector
	metrics   *telemetry.Metrics
	engine    *scheduler.Scheduler
	service   *cleanup.Service
	guardian  *guardian.Guardian

	closers []func() error
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadFromFile(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}

// newAnalysisApp opens only the metrics store, for read-only commands
func newAnalysisApp() (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	if err := a.openSamples(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// newApp wires every component. The scheduler is created but not started.
func newApp(ctx context.Context) (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) openSamples() error {
	samples, err := state.Open(a.cfg.Metrics.Driver, a.cfg.Metrics.Path)
	if err != nil {
		return fmt.Errorf("failed to open metrics store: %w", err)
	}
	a.samples = samples
	a.closers = append(a.closers, samples.Close)

	analyzer, err := analytics.NewAnalyzer(samples, a.logger)
	if err != nil {
		return err
	}
	a.analyzer = analyzer
	return nil
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg

	if err := a.openSamples(); err != nil {
		return err
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	store, err := archive.NewPostgresStore(ctx, cfg.Database, a.logger)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, store.Close)

	var replicator cleanup.Replicator
	if cfg.S3.Enabled {
		r, err := backup.NewS3Replicator(ctx, cfg.S3, a.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize backup replication: %w", err)
		}
		if err := r.EnsureBucket(ctx); err != nil {
			return err
		}
		replicator = r
	}

	sink, err := a.buildSink()
	if err != nil {
		return err
	}

	a.collector = sysmetrics.NewCollector(cfg.System.DiskPath)
	a.metrics = telemetry.New(nil)
	a.engine = scheduler.NewScheduler(a.logger, loc)

	a.service, err = cleanup.NewService(cleanup.Deps{
		Store:      store,
		Verifier:   integrity.NewVerifier(a.logger),
		Replicator: replicator,
		Engine:     a.engine,
		Sink:       sink,
		Source:     a.collector,
		Tuner:      tuning.NewTuner(cfg.Tuning, a.logger),
		Analyzer:   a.analyzer,
		Metrics:    a.metrics,
		Logger:     a.logger,
	}, cfg.Cleanup)
	if err != nil {
		return err
	}

	a.guardian = guardian.New(cfg.Guardian, a.collector, a.service, sink, a.metrics, a.logger)
	return nil
}

// buildSink fans reports out to the log and, when enabled, to NATS.
// Alerts are throttled per title.
func (a *app) buildSink() (notify.Sink, error) {
	sinks := notify.Multi{notify.NewLogSink(a.logger)}

	if a.cfg.NATS.Enabled {
		ns, err := notify.NewNATSSink(a.cfg.NATS.URL, a.cfg.NATS.SubjectPrefix, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, ns.Close)
		sinks = append(sinks, ns)
	}

	return notify.NewThrottled(sinks, a.cfg.Alerts.Interval, a.cfg.Alerts.Burst, a.logger), nil
}

// registerTriggers installs the recurring cleanups, the health check and
// the disk check
func (a *app) registerTriggers() error {
	if err := a.service.RegisterJobs(a.cfg.Schedule); err != nil {
		return err
	}
	if _, err := a.guardian.Register(a.engine); err != nil {
		return fmt.Errorf("failed to register disk check: %w", err)
	}
	return nil
}

// Close releases resources in reverse order of acquisition
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return errors.Join(errs...)
}
