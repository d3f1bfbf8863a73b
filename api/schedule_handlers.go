package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cleanupd/pkg/scheduler"
)

// ListSchedule handles GET /api/schedule
// @Summary List registered triggers
// @Description Triggers ordered by their next fire time
// @Tags schedules
// @Produce json
// @Success 200 {object} gin.H
// @Router /api/schedule [get]
func (h *Handler) ListSchedule(c *gin.Context) {
	if h.engine == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scheduler not initialized"})
		return
	}

	jobs := h.engine.ListUpcoming()
	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// RunScheduleNow handles POST /api/schedule/:handle/run
// @Summary Fire a trigger immediately
// @Tags schedules
// @Param handle path string true "Job handle"
// @Success 202 {object} gin.H
// @Failure 404 {object} gin.H
// @Router /api/schedule/{handle}/run [post]
func (h *Handler) RunScheduleNow(c *gin.Context) {
	if h.engine == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scheduler not initialized"})
		return
	}

	handle := scheduler.JobHandle(c.Param("handle"))
	job, err := h.engine.Get(handle)
	if err != nil {
		if errors.Is(err, scheduler.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// Cleanup jobs can run for hours; fire in the background
	go func() {
		if err := h.engine.RunNow(handle); err != nil {
			h.logger.Error("triggered job failed", zap.String("job", job.Name), zap.Error(err))
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"message": "job triggered",
		"job":     job.Name,
	})
}
