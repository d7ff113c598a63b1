package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"marketplace-realtime/internal/realtime"
	"marketplace-realtime/internal/telemetry"
)

// StatsSource reports live connection counters.
type StatsSource interface {
	Stats() realtime.Stats
}

// RegisterDebugRoutes wires debug-only endpoints under /debug.
func RegisterDebugRoutes(router gin.IRouter, stats StatsSource, emitter *telemetry.AuditEmitter, enabled bool) {
	if !enabled {
		return
	}
	debug := router.Group("/debug")

	debug.GET("/realtime", func(c *gin.Context) {
		c.JSON(http.StatusOK, stats.Stats())
	})

	debug.POST("/audit", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitAudit(c, emitter, telemetry.LevelInfo, "debug.audit", "", c.DefaultQuery("text", "audit test"))
		c.JSON(http.StatusAccepted, gin.H{"status": "published"})
	})
}
