package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(h *Handler, registry *prometheus.Registry, allowOrigins []string) *gin.Engine {
	router := gin.Default()

	// Configure CORS
	config := cors.DefaultConfig()
	if len(allowOrigins) == 0 {
		allowOrigins = []string{"*"}
	}
	config.AllowOrigins = allowOrigins
	config.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(config))

	// Health check
	router.GET("/health", h.HealthCheck)

	if registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api")
	{
		// Monitoring
		api.GET("/stats", h.GetStats)
		api.GET("/history", h.GetHistory)
		api.GET("/report", h.GetReport)
		api.GET("/disk", h.GetDisk)

		// Analysis
		api.GET("/analysis/batch", h.GetBatchAnalysis)
		api.GET("/analysis/performance", h.GetPerformanceAnalysis)

		// Triggers
		api.GET("/schedule", h.ListSchedule)
		api.POST("/schedule/:handle/run", h.RunScheduleNow)

		// Manual cleanup
		api.POST("/cleanup/run", h.RunCleanup)
	}

	return router
}
