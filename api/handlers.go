package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cleanupd/pkg/analytics"
	"cleanupd/pkg/cleanup"
	"cleanupd/pkg/guardian"
	"cleanupd/pkg/models"
	"cleanupd/pkg/scheduler"
	"cleanupd/pkg/tuning"
)

// Orchestrator is the cleanup service surface the API exposes
type Orchestrator interface {
	Stats(ctx context.Context) models.SchedulerStats
	History() []models.CleanupOutcome
	GenerateReport(ctx context.Context, start, end time.Time, limit int) (cleanup.Report, error)
	BatchAnalysis() tuning.Analysis
	PerformanceAnalysis(windowDays int) analytics.TrendReport
	RunAsync(cfg models.CleanupConfig) (string, error)
	Uptime() float64
}

// DiskSource reports filesystem usage
type DiskSource interface {
	DiskUsage(ctx context.Context) (models.DiskUsage, error)
}

// GuardianState exposes the disk guardian's state machine
type GuardianState interface {
	State() guardian.State
}

// TriggerEngine lists and fires registered triggers
type TriggerEngine interface {
	ListUpcoming() []scheduler.Job
	Get(handle scheduler.JobHandle) (scheduler.Job, error)
	RunNow(handle scheduler.JobHandle) error
}

// Handler serves the monitoring and control endpoints
type Handler struct {
	orchestrator Orchestrator
	disk         DiskSource
	guardian     GuardianState
	engine       TriggerEngine
	defaults     models.CleanupConfig
	logger       *zap.Logger
}

// HandlerDeps wires a Handler. Guardian and Engine are optional.
type HandlerDeps struct {
	Orchestrator Orchestrator
	Disk         DiskSource
	Guardian     GuardianState
	Engine       TriggerEngine
	Defaults     models.CleanupConfig // base config for manual runs
	Logger       *zap.Logger
}

// NewHandler creates a Handler
func NewHandler(deps HandlerDeps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		orchestrator: deps.Orchestrator,
		disk:         deps.Disk,
		guardian:     deps.Guardian,
		engine:       deps.Engine,
		defaults:     deps.Defaults,
		logger:       logger.Named("api"),
	}
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now(),
		"uptime": h.orchestrator.Uptime(),
	})
}

// GetStats handles GET /api/stats
// @Summary Scheduler statistics
// @Tags monitor
// @Produce json
// @Success 200 {object} models.SchedulerStats
// @Router /api/stats [get]
func (h *Handler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.orchestrator.Stats(c.Request.Context()))
}

// GetHistory handles GET /api/history
func (h *Handler) GetHistory(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"history": h.orchestrator.History()})
}

// GetReport handles GET /api/report
// @Summary Cleanup report for a time range
// @Tags reports
// @Produce json
// @Param start query string false "RFC3339 start, defaults to 7 days ago"
// @Param end query string false "RFC3339 end, defaults to now"
// @Param limit query int false "Maximum history entries"
// @Success 200 {object} cleanup.Report
// @Failure 400 {object} gin.H
// @Router /api/report [get]
func (h *Handler) GetReport(c *gin.Context) {
	end := time.Now()
	start := end.AddDate(0, 0, -7)

	var err error
	if v := c.Query("start"); v != "" {
		if start, err = time.Parse(time.RFC3339, v); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start: " + err.Error()})
			return
		}
	}
	if v := c.Query("end"); v != "" {
		if end, err = time.Parse(time.RFC3339, v); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end: " + err.Error()})
			return
		}
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	report, err := h.orchestrator.GenerateReport(c.Request.Context(), start, end, limit)
	if err != nil {
		if errors.Is(err, cleanup.ErrInvalidRange) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("report generation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, report)
}

// GetBatchAnalysis handles GET /api/analysis/batch
func (h *Handler) GetBatchAnalysis(c *gin.Context) {
	c.JSON(http.StatusOK, h.orchestrator.BatchAnalysis())
}

// GetPerformanceAnalysis handles GET /api/analysis/performance
func (h *Handler) GetPerformanceAnalysis(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", strconv.Itoa(analytics.DefaultWindowDays)))
	if err != nil || days <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a positive integer"})
		return
	}
	c.JSON(http.StatusOK, h.orchestrator.PerformanceAnalysis(days))
}

// GetDisk handles GET /api/disk
func (h *Handler) GetDisk(c *gin.Context) {
	usage, err := h.disk.DiskUsage(c.Request.Context())
	if err != nil {
		h.logger.Warn("disk usage unavailable", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{"usage": usage}
	if h.guardian != nil {
		resp["guardian"] = h.guardian.State()
	}
	c.JSON(http.StatusOK, resp)
}

// RunCleanupRequest overrides fields of the default manual config
type RunCleanupRequest struct {
	RetentionDays   *int  `json:"retention_days"`
	BatchSize       *int  `json:"batch_size"`
	OptimizeStorage *bool `json:"optimize_storage"`
	BackupFirst     *bool `json:"backup_first"`
	AdaptiveBatch   *bool `json:"adaptive_batch"`
}

func (r RunCleanupRequest) apply(cfg models.CleanupConfig) models.CleanupConfig {
	if r.RetentionDays != nil {
		cfg.RetentionDays = *r.RetentionDays
	}
	if r.BatchSize != nil {
		cfg.BatchSize = *r.BatchSize
		cfg.AdaptiveBatch = false
	}
	if r.OptimizeStorage != nil {
		cfg.OptimizeStorage = *r.OptimizeStorage
	}
	if r.BackupFirst != nil {
		cfg.BackupFirst = *r.BackupFirst
	}
	if r.AdaptiveBatch != nil {
		cfg.AdaptiveBatch = *r.AdaptiveBatch
	}
	return cfg
}

// RunCleanup handles POST /api/cleanup/run
// @Summary Start a manual cleanup
// @Tags cleanup
// @Accept json
// @Produce json
// @Param request body RunCleanupRequest false "Overrides"
// @Success 202 {object} gin.H
// @Failure 400 {object} gin.H
// @Router /api/cleanup/run [post]
func (h *Handler) RunCleanup(c *gin.Context) {
	var req RunCleanupRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	cfg := req.apply(h.defaults)
	cfg.JobType = models.JobManual

	runID, err := h.orchestrator.RunAsync(cfg)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.logger.Info("manual cleanup accepted", zap.String("run_id", runID))
	c.JSON(http.StatusAccepted, gin.H{
		"run_id": runID,
		"status": "started",
		"config": cfg,
	})
}
