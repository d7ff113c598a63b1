package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"marketplace-realtime/internal/mocks"
	"marketplace-realtime/internal/models"
	"marketplace-realtime/internal/realtime"
)

func setupPresenceRouter(handler *PresenceHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", "u1")
		c.Next()
	})
	r.GET("/users/:user_id/presence", handler.GetPresence)
	r.POST("/notifications/:user_id", handler.Notify)
	return r
}

func TestGetPresence(t *testing.T) {
	svc := new(mocks.RealtimeServiceMock)
	router := setupPresenceRouter(NewPresenceHandler(svc, nil))

	svc.On("Presence", mock.Anything, "u2").
		Return(realtime.PresenceView{UserID: "u2", Status: models.PresenceOnline, Channels: 2}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/users/u2/presence", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var view realtime.PresenceView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
	assert.Equal(t, models.PresenceOnline, view.Status)
	assert.Equal(t, 2, view.Channels)
	svc.AssertExpectations(t)
}

func TestNotifyAccepted(t *testing.T) {
	svc := new(mocks.RealtimeServiceMock)
	router := setupPresenceRouter(NewPresenceHandler(svc, nil))

	svc.On("SendToUser", mock.Anything, "u2", "listing_sold", map[string]any{"listingId": "l9"}).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/notifications/u2", bytes.NewBufferString(`{"event":"listing_sold","data":{"listingId":"l9"}}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	svc.AssertExpectations(t)
}

func TestNotifyValidationError(t *testing.T) {
	svc := new(mocks.RealtimeServiceMock)
	router := setupPresenceRouter(NewPresenceHandler(svc, nil))

	req := httptest.NewRequest(http.MethodPost, "/notifications/u2", bytes.NewBufferString(`{"data":1}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.On("SendToUser", mock.Anything, "u2", "ping", nil).Return(realtime.ErrValidation).Once()
	req = httptest.NewRequest(http.MethodPost, "/notifications/u2", bytes.NewBufferString(`{"event":"ping"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertExpectations(t)
}

type fixedStats realtime.Stats

func (s fixedStats) Stats() realtime.Stats { return realtime.Stats(s) }

func TestDebugRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)

	disabled := gin.New()
	RegisterDebugRoutes(disabled, fixedStats{}, nil, false)
	rec := httptest.NewRecorder()
	disabled.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/realtime", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	router := gin.New()
	RegisterDebugRoutes(router, fixedStats{OnlineUsers: 2, Channels: 3}, nil, true)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/realtime", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"onlineUsers":2,"channels":3}`, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/debug/audit", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
