package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketplace-realtime/internal/models"
	"marketplace-realtime/internal/repositories"
	"marketplace-realtime/internal/ws"
)

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type fakeSink struct {
	mu     sync.Mutex
	frames [][]byte
	err    error
	closed bool
}

func (s *fakeSink) Send(b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, append([]byte(nil), b...))
	return nil
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSink) all(t *testing.T) []frame {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]frame, 0, len(s.frames))
	for _, raw := range s.frames {
		var f frame
		require.NoError(t, json.Unmarshal(raw, &f))
		out = append(out, f)
	}
	return out
}

func (s *fakeSink) types(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, f := range s.all(t) {
		out = append(out, f.Type)
	}
	return out
}

// ofType decodes the payload of every frame named typ into a fresh T.
func ofType[T any](t *testing.T, s *fakeSink, typ string) []T {
	t.Helper()
	var out []T
	for _, f := range s.all(t) {
		if f.Type != typ {
			continue
		}
		var v T
		require.NoError(t, json.Unmarshal(f.Payload, &v))
		out = append(out, v)
	}
	return out
}

func (s *fakeSink) reset() {
	s.mu.Lock()
	s.frames = nil
	s.mu.Unlock()
}

type harness struct {
	coord *Coordinator
	store *repositories.MemoryStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, nil, nil)
}

// newHarnessWith lets a test wrap the message store or set the probe
// schedule.
func newHarnessWith(t *testing.T, wrap func(*repositories.MemoryStore) repositories.MessageRepository, backoff []time.Duration) *harness {
	t.Helper()
	store := repositories.NewMemoryStore()
	var messages repositories.MessageRepository = store
	if wrap != nil {
		messages = wrap(store)
	}
	coord := NewCoordinator(Options{
		Chats:        store,
		Messages:     messages,
		Offline:      store,
		Presence:     store,
		ProbeBackoff: backoff,
	})
	t.Cleanup(coord.Wait)
	return &harness{coord: coord, store: store}
}

func (h *harness) chat(t *testing.T, members ...string) models.Chat {
	t.Helper()
	chat, err := h.store.CreateChat(context.Background(), models.Chat{
		Members:   members,
		CreatedBy: members[0],
		Settings:  models.DefaultChatSettings(),
	})
	require.NoError(t, err)
	return chat
}

func (h *harness) connect(t *testing.T, userID, channelID string) *fakeSink {
	t.Helper()
	return h.connectSink(t, userID, channelID, &fakeSink{})
}

func (h *harness) connectSink(t *testing.T, userID, channelID string, sink *fakeSink) *fakeSink {
	t.Helper()
	require.NoError(t, h.coord.Connect(context.Background(), sessionFor(userID, channelID, sink)))
	return sink
}

func (h *harness) join(t *testing.T, channelID, chatID string) {
	t.Helper()
	require.NoError(t, h.coord.membership.JoinChatChannel(context.Background(), channelID, chatID))
}

var errStoreDown = errors.New("store unavailable")

type failingMessages struct {
	*repositories.MemoryStore
}

func (failingMessages) CreateMessage(context.Context, models.Message) (models.Message, error) {
	return models.Message{}, errStoreDown
}

// conflictingMessages reports a version conflict for the first n reaction
// writes.
type conflictingMessages struct {
	*repositories.MemoryStore
	mu        sync.Mutex
	conflicts int
}

func (c *conflictingMessages) UpdateReactions(ctx context.Context, messageID string, version int64, reactions []models.Reaction) error {
	c.mu.Lock()
	if c.conflicts > 0 {
		c.conflicts--
		c.mu.Unlock()
		return repositories.ErrVersionConflict
	}
	c.mu.Unlock()
	return c.MemoryStore.UpdateReactions(ctx, messageID, version, reactions)
}

func sessionFor(userID, channelID string, sink *fakeSink) ws.Session {
	return ws.Session{
		ChannelID: channelID,
		UserID:    userID,
		Sink:      sink,
		Info:      ws.ConnInfo{ChannelID: channelID, UserID: userID},
	}
}
