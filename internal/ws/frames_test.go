package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-realtime/internal/models"
)

func TestDecodeFrame(t *testing.T) {
	f, err := DecodeFrame([]byte(`{"action":"sendMessage","chatId":"c1","text":"hi","clientMessageId":"x1"}`))
	require.NoError(t, err)
	assert.Equal(t, ActionSendMessage, f.Action)
	assert.Equal(t, "c1", f.ChatID)
	assert.Equal(t, "x1", f.ClientMessageID)

	f, err = DecodeFrame([]byte(`{"action":"setStatus","status":"away"}`))
	require.NoError(t, err)
	assert.Equal(t, models.PresenceAway, f.Status)
}

func TestDecodeFrameRejects(t *testing.T) {
	cases := map[string]string{
		"garbage":         `{`,
		"unknown action":  `{"action":"dance"}`,
		"missing chat":    `{"action":"joinChat"}`,
		"missing emoji":   `{"action":"addReaction","messageId":"m1"}`,
		"bad status":      `{"action":"setStatus","status":"invisible"}`,
		"typing w/o chat": `{"action":"typing","isTyping":true}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeFrame([]byte(raw))
			assert.ErrorIs(t, err, ErrInvalidFrame)
		})
	}
}
