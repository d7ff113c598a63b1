package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-realtime/internal/events"
	"marketplace-realtime/internal/models"
)

type recordingSink struct {
	mu     sync.Mutex
	frames [][]byte
	err    error
	closed bool
}

func (s *recordingSink) Send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, frame)
	return nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) types(t *testing.T) []string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.frames))
	for _, f := range s.frames {
		var decoded struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(f, &decoded))
		out = append(out, decoded.Type)
	}
	return out
}

func TestHubGroupsRouteByKind(t *testing.T) {
	hub := NewHub()
	a, b := &recordingSink{}, &recordingSink{}
	require.True(t, hub.Attach("ch-a", a, ConnInfo{}))
	require.True(t, hub.Attach("ch-b", b, ConnInfo{}))
	require.True(t, hub.JoinPersonal("ch-a", "alice"))
	require.True(t, hub.JoinPersonal("ch-b", "bob"))
	require.True(t, hub.JoinChat("ch-a", "chat1"))

	assert.Equal(t, 1, hub.EmitToChat("chat1", events.ChatMessage(models.MessageDTO{ID: "m1", Chat: "chat1"})))
	assert.Equal(t, 1, hub.EmitToUser("bob", events.PresenceUpdate("alice", models.PresenceOnline)))
	assert.Equal(t, 0, hub.EmitToUser("carol", events.PresenceUpdate("alice", models.PresenceOnline)))

	assert.Equal(t, []string{"message:new:chat1"}, a.types(t))
	assert.Equal(t, []string{"presenceUpdate"}, b.types(t))
	assert.True(t, hub.InChat("ch-a", "chat1"))
	assert.False(t, hub.InChat("ch-b", "chat1"))
}

func TestHubFailingSinkIsDetachedAlone(t *testing.T) {
	hub := NewHub()
	good, bad := &recordingSink{}, &recordingSink{err: errors.New("broken pipe")}
	hub.Attach("good", good, ConnInfo{})
	hub.Attach("bad", bad, ConnInfo{})
	hub.JoinChat("good", "chat1")
	hub.JoinChat("bad", "chat1")

	delivered := hub.EmitToChat("chat1", events.UserTyping("chat1", "alice", true))
	assert.Equal(t, 1, delivered)
	assert.True(t, bad.closed)
	assert.False(t, good.closed)
	assert.Equal(t, 1, hub.ChatSubscriberCount("chat1"))
	assert.Equal(t, []string{"userTyping"}, good.types(t))
}

func TestHubDetachLeavesAllGroups(t *testing.T) {
	hub := NewHub()
	s := &recordingSink{}
	hub.Attach("ch", s, ConnInfo{UserID: "alice"})
	hub.JoinPersonal("ch", "alice")
	hub.JoinChat("ch", "chat1")
	hub.JoinChat("ch", "chat2")

	info, ok := hub.Detach("ch")
	require.True(t, ok)
	assert.Equal(t, "alice", info.UserID)
	assert.False(t, hub.HasPersonalSubscribers("alice"))
	assert.Equal(t, 0, hub.ChatSubscriberCount("chat1"))
	assert.Equal(t, 0, hub.ChatSubscriberCount("chat2"))

	_, ok = hub.Detach("ch")
	assert.False(t, ok)
	assert.False(t, hub.JoinChat("ch", "chat1"))
}

func TestHubPersonalGroupIsBoundToOneUser(t *testing.T) {
	hub := NewHub()
	hub.Attach("ch", &recordingSink{}, ConnInfo{})
	require.True(t, hub.JoinPersonal("ch", "alice"))
	assert.False(t, hub.JoinPersonal("ch", "mallory"))
	assert.False(t, hub.HasPersonalSubscribers("mallory"))
}

func TestHubEmitToChannel(t *testing.T) {
	hub := NewHub()
	s := &recordingSink{}
	hub.Attach("ch", s, ConnInfo{})

	require.NoError(t, hub.EmitToChannel("ch", events.PresenceSnapshot(nil)))
	assert.ErrorIs(t, hub.EmitToChannel("missing", events.PresenceSnapshot(nil)), ErrUnknownChannel)

	var frame struct {
		Type    string `json:"type"`
		Payload struct {
			OnlineMembers []string `json:"onlineMembers"`
		} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(s.frames[0], &frame))
	assert.Equal(t, "presenceSnapshot", frame.Type)
	assert.NotNil(t, frame.Payload.OnlineMembers)
}

func TestHubLeaveChat(t *testing.T) {
	hub := NewHub()
	s := &recordingSink{}
	hub.Attach("ch", s, ConnInfo{})
	hub.JoinChat("ch", "chat1")
	hub.LeaveChat("ch", "chat1")

	assert.Equal(t, 0, hub.EmitToChat("chat1", events.UserTyping("chat1", "bob", true)))
	assert.Empty(t, s.frames)
}
