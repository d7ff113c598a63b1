package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"marketplace-realtime/internal/telemetry"
)

// PresenceHandler serves presence lookups and user notifications.
type PresenceHandler struct {
	svc   RealtimeService
	audit *telemetry.AuditEmitter
}

func NewPresenceHandler(svc RealtimeService, audit *telemetry.AuditEmitter) *PresenceHandler {
	return &PresenceHandler{svc: svc, audit: audit}
}

func (h *PresenceHandler) GetPresence(c *gin.Context) {
	view, err := h.svc.Presence(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Notify sends an application notification to a user, live or queued.
func (h *PresenceHandler) Notify(c *gin.Context) {
	var req struct {
		Event string `json:"event" binding:"required"`
		Data  any    `json:"data"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	recipient := c.Param("user_id")
	if err := h.svc.SendToUser(c.Request.Context(), recipient, req.Event, req.Data); err != nil {
		writeError(c, err)
		return
	}
	emitAudit(c, h.audit, telemetry.LevelInfo, "notification.queued", "user:"+recipient, req.Event)
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}
