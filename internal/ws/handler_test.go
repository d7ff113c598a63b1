package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens map[string]string

func (s staticTokens) UserIDFromToken(token string) (string, error) {
	if id, ok := s[token]; ok {
		return id, nil
	}
	return "", errors.New("invalid token")
}

type denyAll struct{}

func (denyAll) Allow(string) bool { return false }

type fakeSessions struct {
	mu           sync.Mutex
	connected    []Session
	frames       []InboundFrame
	disconnected chan string
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{disconnected: make(chan string, 1)}
}

func (f *fakeSessions) Connect(_ context.Context, s Session) error {
	f.mu.Lock()
	f.connected = append(f.connected, s)
	f.mu.Unlock()
	return nil
}

func (f *fakeSessions) Disconnect(_ context.Context, channelID string) {
	f.disconnected <- channelID
}

func (f *fakeSessions) HandleFrame(_ context.Context, s Session, frame InboundFrame) error {
	f.mu.Lock()
	f.frames = append(f.frames, frame)
	f.mu.Unlock()
	if frame.Action == ActionJoinChat {
		return errors.New("not a member")
	}
	return s.Sink.Send([]byte(`{"type":"ack","payload":null}`))
}

func (f *fakeSessions) ErrorCode(error) string { return "permission_denied" }

func startServer(t *testing.T, h *WebSocketHandler) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", h.Handle)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestWebSocketHandlerRejectsBadToken(t *testing.T) {
	h := NewWebSocketHandler(newFakeSessions(), staticTokens{}, nil, nil)
	url := startServer(t, h)

	_, resp, err := websocket.DefaultDialer.Dial(url+"?token=nope", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketHandlerDispatchesFrames(t *testing.T) {
	sessions := newFakeSessions()
	h := NewWebSocketHandler(sessions, staticTokens{"tok": "alice"}, nil, nil)
	url := startServer(t, h)

	header := http.Header{"Authorization": []string{"Bearer tok"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"markRead","chatId":"c1"}`)))
	assert.Equal(t, "ack", readFrame(t, conn)["type"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"joinChat","chatId":"c1"}`)))
	errFrame := readFrame(t, conn)
	assert.Equal(t, "error", errFrame["type"])
	assert.Equal(t, "permission_denied", errFrame["payload"].(map[string]any)["code"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"nope"}`)))
	assert.Equal(t, "invalid_frame", readFrame(t, conn)["payload"].(map[string]any)["code"])

	sessions.mu.Lock()
	require.Len(t, sessions.connected, 1)
	channelID := sessions.connected[0].ChannelID
	assert.Equal(t, "alice", sessions.connected[0].UserID)
	sessions.mu.Unlock()

	require.NoError(t, conn.Close())
	select {
	case got := <-sessions.disconnected:
		assert.Equal(t, channelID, got)
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect not observed")
	}
}

func TestWebSocketHandlerRateLimitsFrames(t *testing.T) {
	sessions := newFakeSessions()
	h := NewWebSocketHandler(sessions, staticTokens{"tok": "alice"}, denyAll{}, nil)
	url := startServer(t, h)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?token=tok", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"markRead","chatId":"c1"}`)))
	frame := readFrame(t, conn)
	assert.Equal(t, "rate_limited", frame["payload"].(map[string]any)["code"])

	sessions.mu.Lock()
	assert.Empty(t, sessions.frames)
	sessions.mu.Unlock()
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://market.example.edu/"})
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://market.example.edu")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(req))

	assert.True(t, originChecker([]string{"*"})(req))
}
