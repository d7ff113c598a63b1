package ws

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"marketplace-realtime/internal/auth"
	"marketplace-realtime/internal/events"
	"marketplace-realtime/internal/observability"
)

// Session is one authenticated channel as seen by the coordinator.
type Session struct {
	ChannelID  string
	UserID     string
	DeviceInfo string
	Sink       Sink
	Info       ConnInfo
}

// SessionHandler receives channel lifecycle and inbound frames.
type SessionHandler interface {
	Connect(ctx context.Context, s Session) error
	Disconnect(ctx context.Context, channelID string)
	HandleFrame(ctx context.Context, s Session, f InboundFrame) error
	// ErrorCode maps a HandleFrame error to the code sent in an error frame.
	ErrorCode(err error) string
}

type TokenVerifier interface {
	UserIDFromToken(token string) (string, error)
}

type FrameLimiter interface {
	Allow(key string) bool
}

// WebSocketHandler authenticates and upgrades /ws requests and runs the
// read loop of each channel.
type WebSocketHandler struct {
	sessions SessionHandler
	tokens   TokenVerifier
	limiter  FrameLimiter
	upgrader websocket.Upgrader
}

// NewWebSocketHandler constructs a WebSocketHandler. A nil limiter disables
// inbound rate limiting.
func NewWebSocketHandler(sessions SessionHandler, tokens TokenVerifier, limiter FrameLimiter, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		sessions: sessions,
		tokens:   tokens,
		limiter:  limiter,
		upgrader: websocket.Upgrader{CheckOrigin: originChecker(allowedOrigins)},
	}
}

// Handle upgrades the connection and serves it until the client goes away.
func (h *WebSocketHandler) Handle(c *gin.Context) {
	ctx, span := observability.StartSpan(c.Request.Context(), "ws", "ws.handshake")
	c.Request = c.Request.WithContext(ctx)

	userID, err := h.tokens.UserIDFromToken(bearerToken(c))
	if err != nil {
		span.End()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.End()
		return
	}
	traceID := observability.TraceIDFromContext(ctx)
	span.End()

	client := NewClient(conn)
	client.prepareRead()
	go client.WritePump()

	info := ConnInfo{
		ChannelID:   newChannelID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		DeviceInfo:  observability.DeviceInfoFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	session := Session{
		ChannelID:  info.ChannelID,
		UserID:     userID,
		DeviceInfo: info.DeviceInfo,
		Sink:       client,
		Info:       info,
	}

	// Hijacked connections outlive the request context.
	sessionCtx := context.WithoutCancel(ctx)
	if err := h.sessions.Connect(sessionCtx, session); err != nil {
		log.Printf("ws connect rejected user_id=%s channel_id=%s error=%v", userID, info.ChannelID, err)
		h.reject(client, h.sessions.ErrorCode(err), err.Error())
		_ = client.Close()
		return
	}

	observability.IncWSActive()
	observability.PublishWSEvent(sessionCtx, info.wsEvent("ws_connect", ""))

	var closeReason string
	defer func() {
		h.sessions.Disconnect(sessionCtx, info.ChannelID)
		_ = client.Close()
		observability.DecWSActive()
		observability.PublishWSEvent(sessionCtx, info.wsEvent("ws_disconnect", closeReason))
	}()

	for {
		data, err := client.readFrame()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.PublishWSEvent(sessionCtx, info.wsEvent("ws_error", closeReason))
			}
			return
		}
		if h.limiter != nil && !h.limiter.Allow(userID) {
			h.reject(client, "rate_limited", "too many frames")
			continue
		}
		frame, err := DecodeFrame(data)
		if err != nil {
			h.reject(client, "invalid_frame", err.Error())
			continue
		}
		if err := h.sessions.HandleFrame(sessionCtx, session, frame); err != nil {
			h.reject(client, h.sessions.ErrorCode(err), err.Error())
		}
	}
}

// reject sends an error frame to the originating channel only.
func (h *WebSocketHandler) reject(client *Client, code, message string) {
	frame, err := events.Error(code, message).Encode()
	if err != nil {
		return
	}
	if err := client.Send(frame); err != nil {
		log.Printf("event=ws action=reject status=failed code=%s error=%v", code, err)
	}
}

// bearerToken reads the Authorization header, falling back to ?token=.
func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		token, _ := auth.BearerToken(header)
		return token
	}
	return c.Query("token")
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[strings.TrimRight(origin, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set["*"]; ok {
			return true
		}
		_, ok := set[strings.TrimRight(origin, "/")]
		return ok
	}
}
