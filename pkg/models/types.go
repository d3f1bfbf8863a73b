package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned when a cleanup configuration is out of bounds
var ErrInvalidConfig = errors.New("invalid cleanup config")

// Job types used in reports and outcomes
const (
	JobDaily     = "daily"
	JobOptimized = "optimized"
	JobEmergency = "emergency"
	JobManual    = "manual"
)

// CleanupConfig describes a single cleanup invocation
type CleanupConfig struct {
	JobType         string `json:"job_type"`
	RetentionDays   int    `json:"retention_days"`
	BatchSize       int    `json:"batch_size"`
	OptimizeStorage bool   `json:"optimize_storage"`
	BackupFirst     bool   `json:"backup_first"`
	AdaptiveBatch   bool   `json:"adaptive_batch"` // Let the batch controller pick BatchSize
}

// Validate checks that retention and batch size are positive
func (c CleanupConfig) Validate() error {
	if c.RetentionDays <= 0 {
		return fmt.Errorf("%w: retention_days must be positive, got %d", ErrInvalidConfig, c.RetentionDays)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch_size must be positive, got %d", ErrInvalidConfig, c.BatchSize)
	}
	return nil
}

// Cutoff returns the age boundary for a run started at now
func (c CleanupConfig) Cutoff(now time.Time) time.Time {
	return now.AddDate(0, 0, -c.RetentionDays)
}

// EmergencyConfig is the aggressive, backup-skipping variant used when disk space runs out
func EmergencyConfig() CleanupConfig {
	return CleanupConfig{
		JobType:         JobEmergency,
		RetentionDays:   7,
		BatchSize:       5000,
		OptimizeStorage: true,
		BackupFirst:     false,
	}
}

// CleanupOutcome is the immutable record of one cleanup run
type CleanupOutcome struct {
	Timestamp       time.Time `json:"timestamp"`
	JobType         string    `json:"job_type"`
	RecordsArchived int64     `json:"records_archived"`
	DurationSeconds float64   `json:"duration_seconds"`
	Success         bool      `json:"success"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	BatchSize       int       `json:"batch_size"`
	BackupID        string    `json:"backup_id,omitempty"`
	DiskFreedBytes  uint64    `json:"disk_freed_bytes"`
}

// BatchMetrics is one batch controller observation
type BatchMetrics struct {
	BatchSize        int     `json:"batch_size"`
	Duration         float64 `json:"duration"`
	Success          bool    `json:"success"`
	CPUUsage         float64 `json:"cpu_usage"`
	MemoryUsage      float64 `json:"memory_usage"`
	RecordsPerSecond float64 `json:"records_per_second"`
	HasThroughput    bool    `json:"has_throughput"` // false when duration was zero
}

// NewBatchMetrics derives throughput from the processed record count.
// A zero duration yields no throughput signal.
func NewBatchMetrics(batchSize int, duration float64, records int64, success bool, cpu, memory float64) BatchMetrics {
	m := BatchMetrics{
		BatchSize:   batchSize,
		Duration:    duration,
		Success:     success,
		CPUUsage:    cpu,
		MemoryUsage: memory,
	}
	if duration > 0 {
		m.RecordsPerSecond = float64(records) / duration
		m.HasThroughput = true
	}
	return m
}

// PerformanceSample is the persisted record of a cleanup run
type PerformanceSample struct {
	DurationSeconds  float64   `json:"duration_seconds"`
	RecordsProcessed int64     `json:"records_processed"`
	CPUUsage         float64   `json:"cpu_usage"`
	MemoryUsage      float64   `json:"memory_usage"`
	Success          bool      `json:"success"`
	Timestamp        time.Time `json:"timestamp"`
}

// SystemMetrics is a point-in-time snapshot of host load
type SystemMetrics struct {
	CPUPercent      float64   `json:"cpu_percent"`
	MemoryPercent   float64   `json:"memory_usage"`
	DiskPercent     float64   `json:"disk_usage"`
	ProcessMemoryMB float64   `json:"process_memory"`
	DiskUsedBytes   uint64    `json:"disk_used_bytes"`
	CollectedAt     time.Time `json:"collected_at"`
}

// DiskUsage describes the filesystem holding the datastore
type DiskUsage struct {
	Path    string  `json:"path"`
	Total   uint64  `json:"total"`
	Used    uint64  `json:"used"`
	Free    uint64  `json:"free"`
	Percent float64 `json:"percent"`
}

// SchedulerStats is the monitoring view of the orchestrator
type SchedulerStats struct {
	Uptime           float64       `json:"uptime"`
	LastCleanup      *time.Time    `json:"last_cleanup"`
	RecordsArchived  int64         `json:"records_archived"`
	NextScheduledRun *time.Time    `json:"next_scheduled_run"`
	Metrics          SystemMetrics `json:"metrics"`
	DiskUsage        DiskUsage     `json:"disk_usage"`
	ActiveJobs       int           `json:"active_jobs"`
}

// BackupHandle identifies a backup file written by the archive store
type BackupHandle struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	Rows      int64     `json:"rows"`
	Checksum  string    `json:"checksum"` // hex sha256 of the file
	CreatedAt time.Time `json:"created_at"`
}
