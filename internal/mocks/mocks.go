package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"marketplace-realtime/internal/models"
	"marketplace-realtime/internal/realtime"
)

type RealtimeServiceMock struct {
	mock.Mock
}

func (m *RealtimeServiceMock) SendMessage(ctx context.Context, in realtime.SendInput) (models.MessageDTO, error) {
	args := m.Called(ctx, in)
	var msg models.MessageDTO
	if val := args.Get(0); val != nil {
		msg = val.(models.MessageDTO)
	}
	return msg, args.Error(1)
}

func (m *RealtimeServiceMock) ListMessages(ctx context.Context, chatID, userID string, before *time.Time, limit int64) ([]models.MessageDTO, error) {
	args := m.Called(ctx, chatID, userID, before, limit)
	var msgs []models.MessageDTO
	if val := args.Get(0); val != nil {
		msgs = val.([]models.MessageDTO)
	}
	return msgs, args.Error(1)
}

func (m *RealtimeServiceMock) DeleteMessage(ctx context.Context, messageID, userID string) error {
	args := m.Called(ctx, messageID, userID)
	return args.Error(0)
}

func (m *RealtimeServiceMock) MarkRead(ctx context.Context, chatID, userID string) (int64, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *RealtimeServiceMock) UnreadCount(ctx context.Context, chatID, userID string) (int64, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *RealtimeServiceMock) AddReaction(ctx context.Context, messageID, userID, emoji string) ([]models.Reaction, error) {
	args := m.Called(ctx, messageID, userID, emoji)
	var list []models.Reaction
	if val := args.Get(0); val != nil {
		list = val.([]models.Reaction)
	}
	return list, args.Error(1)
}

func (m *RealtimeServiceMock) RemoveReaction(ctx context.Context, messageID, userID, emoji string) ([]models.Reaction, error) {
	args := m.Called(ctx, messageID, userID, emoji)
	var list []models.Reaction
	if val := args.Get(0); val != nil {
		list = val.([]models.Reaction)
	}
	return list, args.Error(1)
}

func (m *RealtimeServiceMock) SendToUser(ctx context.Context, userID, event string, payload any) error {
	args := m.Called(ctx, userID, event, payload)
	return args.Error(0)
}

func (m *RealtimeServiceMock) Presence(ctx context.Context, userID string) (realtime.PresenceView, error) {
	args := m.Called(ctx, userID)
	var view realtime.PresenceView
	if val := args.Get(0); val != nil {
		view = val.(realtime.PresenceView)
	}
	return view, args.Error(1)
}
