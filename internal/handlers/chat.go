package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"marketplace-realtime/internal/models"
	"marketplace-realtime/internal/realtime"
	"marketplace-realtime/internal/telemetry"
)

// RealtimeService is the part of the coordinator exposed over HTTP.
type RealtimeService interface {
	SendMessage(ctx context.Context, in realtime.SendInput) (models.MessageDTO, error)
	ListMessages(ctx context.Context, chatID, userID string, before *time.Time, limit int64) ([]models.MessageDTO, error)
	DeleteMessage(ctx context.Context, messageID, userID string) error
	MarkRead(ctx context.Context, chatID, userID string) (int64, error)
	UnreadCount(ctx context.Context, chatID, userID string) (int64, error)
	AddReaction(ctx context.Context, messageID, userID, emoji string) ([]models.Reaction, error)
	RemoveReaction(ctx context.Context, messageID, userID, emoji string) ([]models.Reaction, error)
	SendToUser(ctx context.Context, userID, event string, payload any) error
	Presence(ctx context.Context, userID string) (realtime.PresenceView, error)
}

// ChatHandler serves message, receipt and reaction endpoints.
type ChatHandler struct {
	svc   RealtimeService
	audit *telemetry.AuditEmitter
}

// NewChatHandler builds a ChatHandler. audit may be nil.
func NewChatHandler(svc RealtimeService, audit *telemetry.AuditEmitter) *ChatHandler {
	return &ChatHandler{svc: svc, audit: audit}
}

// PostChatMessage stores a message and fans it out.
func (h *ChatHandler) PostChatMessage(c *gin.Context) {
	var req struct {
		Text            string              `json:"text"`
		Attachments     []models.Attachment `json:"attachments"`
		ClientMessageID string              `json:"clientMessageId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString("userID")
	msg, err := h.svc.SendMessage(c.Request.Context(), realtime.SendInput{
		ChatID:          c.Param("chat_id"),
		SenderID:        userID,
		Text:            req.Text,
		Attachments:     req.Attachments,
		ClientMessageID: req.ClientMessageID,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	emitAudit(c, h.audit, telemetry.LevelInfo, "message.sent", "message:"+msg.ID, "message sent")
	c.JSON(http.StatusCreated, msg)
}

// GetChatMessages returns a page of history, oldest first.
func (h *ChatHandler) GetChatMessages(c *gin.Context) {
	var before *time.Time
	if raw := c.Query("before"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid before timestamp"})
			return
		}
		before = &parsed
	}
	var limit int64
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	msgs, err := h.svc.ListMessages(c.Request.Context(), c.Param("chat_id"), c.GetString("userID"), before, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// DeleteMessage soft deletes one of the caller's messages.
func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	messageID := c.Param("message_id")
	if err := h.svc.DeleteMessage(c.Request.Context(), messageID, c.GetString("userID")); err != nil {
		writeError(c, err)
		return
	}
	emitAudit(c, h.audit, telemetry.LevelWarn, "message.deleted", "message:"+messageID, "message deleted")
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *ChatHandler) MarkRead(c *gin.Context) {
	chatID := c.Param("chat_id")
	n, err := h.svc.MarkRead(c.Request.Context(), chatID, c.GetString("userID"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chatId": chatID, "marked": n})
}

func (h *ChatHandler) GetUnreadCount(c *gin.Context) {
	chatID := c.Param("chat_id")
	n, err := h.svc.UnreadCount(c.Request.Context(), chatID, c.GetString("userID"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chatId": chatID, "unreadCount": n})
}

func (h *ChatHandler) AddReaction(c *gin.Context) {
	var req struct {
		Emoji string `json:"emoji" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	reactions, err := h.svc.AddReaction(c.Request.Context(), c.Param("message_id"), c.GetString("userID"), req.Emoji)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reactions": reactions})
}

func (h *ChatHandler) RemoveReaction(c *gin.Context) {
	reactions, err := h.svc.RemoveReaction(c.Request.Context(), c.Param("message_id"), c.GetString("userID"), c.Param("emoji"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reactions": reactions})
}

// writeError maps realtime errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, realtime.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, realtime.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, realtime.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, realtime.ErrStorage):
		status = http.StatusServiceUnavailable
	}
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	c.JSON(status, gin.H{"error": msg})
}
