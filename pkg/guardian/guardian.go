// Package guardian watches disk usage and runs an emergency cleanup
// cascade when it crosses a threshold.
package guardian

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"cleanupd/pkg/models"
	"cleanupd/pkg/notify"
	"cleanupd/pkg/scheduler"
	"cleanupd/pkg/telemetry"
)

// Defaults applied to a zero Config
const (
	DefaultThreshold     = 85.0
	DefaultLogMaxAge     = 48 * time.Hour
	DefaultCheckInterval = 15 * time.Minute
	DefaultRunTimeout    = 2 * time.Hour
)

// Probe reports how full the watched filesystem is
type Probe interface {
	UsagePercent(ctx context.Context) (float64, error)
}

// Runner executes a cleanup through the orchestrator's exclusive path
type Runner interface {
	RunCleanup(ctx context.Context, cfg models.CleanupConfig) (models.CleanupOutcome, error)
}

// Registrar is the part of the trigger engine the guardian needs
type Registrar interface {
	Register(name string, kind scheduler.Kind, spec string, callback scheduler.Callback) (scheduler.JobHandle, error)
}

// Config tunes the guardian
type Config struct {
	Threshold     float64       `mapstructure:"threshold"`
	LogDir        string        `mapstructure:"log_dir"`
	LogMaxAge     time.Duration `mapstructure:"log_max_age"`
	TempDir       string        `mapstructure:"temp_dir"`
	CheckInterval time.Duration `mapstructure:"check_interval"`
	RunTimeout    time.Duration `mapstructure:"run_timeout"` // bounds the emergency cleanup
}

func (c *Config) applyDefaults() {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.LogMaxAge <= 0 {
		c.LogMaxAge = DefaultLogMaxAge
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = DefaultCheckInterval
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = DefaultRunTimeout
	}
}

// State is the guardian's observable state
type State struct {
	EmergencyMode    bool      `json:"emergency_mode"`
	LastUsagePercent float64   `json:"last_usage_percent"`
	LastCheck        time.Time `json:"last_check"`
	Threshold        float64   `json:"threshold"`
	Cascades         int       `json:"cascades"`
	LastCascadeError string    `json:"last_cascade_error,omitempty"`
}

// Guardian is an edge-triggered Normal/Emergency state machine
type Guardian struct {
	checkMu sync.Mutex // serializes Check
	mu      sync.RWMutex
	state   State

	cfg     Config
	probe   Probe
	runner  Runner
	sink    notify.Sink
	metrics *telemetry.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a guardian in the Normal state
func New(cfg Config, probe Probe, runner Runner, sink notify.Sink, metrics *telemetry.Metrics, logger *zap.Logger) *Guardian {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.applyDefaults()

	return &Guardian{
		state:   State{Threshold: cfg.Threshold},
		cfg:     cfg,
		probe:   probe,
		runner:  runner,
		sink:    sink,
		metrics: metrics,
		logger:  logger.Named("guardian"),
		now:     time.Now,
	}
}

// State returns a copy of the current state
func (g *Guardian) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Register schedules Check on the configured interval
func (g *Guardian) Register(engine Registrar) (scheduler.JobHandle, error) {
	return engine.Register("disk-check", scheduler.KindInterval, g.cfg.CheckInterval.String(), g.Check)
}

// Check probes disk usage and fires the cascade on the Normal to Emergency
// edge. Only a failed probe is returned; cascade failures are logged.
func (g *Guardian) Check(ctx context.Context) error {
	g.checkMu.Lock()
	defer g.checkMu.Unlock()

	usage, err := g.probe.UsagePercent(ctx)
	if err != nil {
		g.logger.Error("disk probe failed", zap.Error(err))
		return fmt.Errorf("disk probe failed: %w", err)
	}

	breached := usage > g.cfg.Threshold

	g.mu.Lock()
	entering := breached && !g.state.EmergencyMode
	if !breached && g.state.EmergencyMode {
		g.logger.Info("disk usage back to normal", zap.Float64("usage", usage))
	}
	g.state.EmergencyMode = breached
	g.state.LastUsagePercent = usage
	g.state.LastCheck = g.now()
	g.mu.Unlock()

	g.metrics.ObserveDiskCheck(usage, breached)

	if !entering {
		return nil
	}

	g.logger.Warn("disk space emergency",
		zap.Float64("usage", usage),
		zap.Float64("threshold", g.cfg.Threshold),
	)
	g.metrics.ObserveEmergency()

	cascadeErr := g.cascade(ctx, usage)

	g.mu.Lock()
	g.state.Cascades++
	g.state.LastCascadeError = ""
	if cascadeErr != nil {
		g.state.LastCascadeError = cascadeErr.Error()
	}
	g.mu.Unlock()

	if cascadeErr != nil {
		g.logger.Error("emergency cleanup failed", zap.Error(cascadeErr))
	}
	return nil
}

// cascade runs every step even if an earlier one fails
func (g *Guardian) cascade(ctx context.Context, usage float64) error {
	var errs []error

	logsRemoved, err := removeOldLogs(g.cfg.LogDir, g.now().Add(-g.cfg.LogMaxAge))
	if err != nil {
		errs = append(errs, fmt.Errorf("log cleanup: %w", err))
	}

	var archived int64
	runCtx, cancel := context.WithTimeout(ctx, g.cfg.RunTimeout)
	outcome, err := g.runner.RunCleanup(runCtx, models.EmergencyConfig())
	cancel()
	if err != nil {
		errs = append(errs, fmt.Errorf("emergency cleanup: %w", err))
	} else {
		archived = outcome.RecordsArchived
	}

	tempRemoved, err := purgeDir(g.cfg.TempDir)
	if err != nil {
		errs = append(errs, fmt.Errorf("temp cleanup: %w", err))
	}

	report := notify.Payload{
		"job_type":         models.JobEmergency,
		"threshold":        g.cfg.Threshold,
		"disk_usage":       usage,
		"logs_removed":     logsRemoved,
		"temp_removed":     tempRemoved,
		"records_archived": archived,
		"success":          len(errs) == 0,
		"timestamp":        g.now(),
	}
	if g.sink != nil {
		if err := g.sink.SendReport(ctx, report); err != nil {
			errs = append(errs, fmt.Errorf("emergency report: %w", err))
		}
	}

	g.logger.Info("emergency cascade finished",
		zap.Int("logs_removed", logsRemoved),
		zap.Int("temp_removed", tempRemoved),
		zap.Int64("records_archived", archived),
	)
	return errors.Join(errs...)
}

// removeOldLogs deletes *.log* files in dir modified before cutoff
func removeOldLogs(dir string, cutoff time.Time) (int, error) {
	if dir == "" {
		return 0, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !strings.Contains(entry.Name(), ".log") {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// purgeDir deletes everything inside dir, keeping dir itself
func purgeDir(dir string) (int, error) {
	if dir == "" {
		return 0, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	var errs []error
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
