package sysmetrics

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"cleanupd/pkg/models"
)

// Source provides host load snapshots
type Source interface {
	Snapshot(ctx context.Context) (models.SystemMetrics, error)
	DiskUsage(ctx context.Context) (models.DiskUsage, error)
}

// Collector reads CPU, memory and disk usage from the host
type Collector struct {
	diskPath       string
	cpuSampleDelay time.Duration
	pid            int32
}

// NewCollector creates a collector reporting disk usage for diskPath
func NewCollector(diskPath string) *Collector {
	if diskPath == "" {
		diskPath = "/"
	}

	return &Collector{
		diskPath:       diskPath,
		cpuSampleDelay: 500 * time.Millisecond,
		pid:            int32(os.Getpid()),
	}
}

// Snapshot returns current system metrics
func (c *Collector) Snapshot(ctx context.Context) (models.SystemMetrics, error) {
	cpuPercents, err := cpu.PercentWithContext(ctx, c.cpuSampleDelay, false)
	if err != nil {
		return models.SystemMetrics{}, fmt.Errorf("failed to read cpu usage: %w", err)
	}

	vmStat, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return models.SystemMetrics{}, fmt.Errorf("failed to read memory usage: %w", err)
	}

	usage, err := disk.UsageWithContext(ctx, c.diskPath)
	if err != nil {
		return models.SystemMetrics{}, fmt.Errorf("failed to read disk usage: %w", err)
	}

	metrics := models.SystemMetrics{
		MemoryPercent: vmStat.UsedPercent,
		DiskPercent:   usage.UsedPercent,
		DiskUsedBytes: usage.Used,
		CollectedAt:   time.Now(),
	}
	if len(cpuPercents) > 0 {
		metrics.CPUPercent = cpuPercents[0]
	}

	// Process memory is informational; failure to read it is not fatal
	if proc, err := process.NewProcessWithContext(ctx, c.pid); err == nil {
		if info, err := proc.MemoryInfoWithContext(ctx); err == nil {
			metrics.ProcessMemoryMB = float64(info.RSS) / 1024 / 1024
		}
	}

	return metrics, nil
}

// DiskUsage returns usage of the filesystem holding diskPath
func (c *Collector) DiskUsage(ctx context.Context) (models.DiskUsage, error) {
	usage, err := disk.UsageWithContext(ctx, c.diskPath)
	if err != nil {
		return models.DiskUsage{}, fmt.Errorf("failed to read disk usage: %w", err)
	}

	return models.DiskUsage{
		Path:    usage.Path,
		Total:   usage.Total,
		Used:    usage.Used,
		Free:    usage.Free,
		Percent: usage.UsedPercent,
	}, nil
}

// UsagePercent implements the disk probe used by the guardian
func (c *Collector) UsagePercent(ctx context.Context) (float64, error) {
	usage, err := c.DiskUsage(ctx)
	if err != nil {
		return 0, err
	}
	return usage.Percent, nil
}
