package handlers

import (
	"github.com/gin-gonic/gin"

	"marketplace-realtime/internal/observability"
	"marketplace-realtime/internal/telemetry"
)

const requestIDContextKey = "request_id"

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := observability.RequestIDFromRequest(c.Request)
	c.Set(requestIDContextKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) string {
	if userID := c.GetString("userID"); userID != "" {
		return userID
	}
	return c.GetHeader("X-User-ID")
}

func emitAudit(c *gin.Context, audit *telemetry.AuditEmitter, level, action, resource, text string) {
	if audit == nil {
		return
	}
	audit.Emit(c.Request.Context(), telemetry.AuditRecord{
		Level:     level,
		Action:    action,
		Resource:  resource,
		Text:      text,
		RequestID: requestIDFromContext(c),
		UserID:    userIDFromContext(c),
	})
}
