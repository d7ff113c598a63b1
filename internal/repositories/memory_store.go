package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"marketplace-realtime/internal/models"
)

// MemoryStore keeps chats, messages, offline envelopes and the presence
// trail in process memory. It backs STORE_BACKEND=memory and the tests.
type MemoryStore struct {
	mu        sync.RWMutex
	chats     map[primitive.ObjectID]models.Chat
	messages  map[primitive.ObjectID]models.Message
	envelopes map[primitive.ObjectID]models.OfflineEnvelope
	presence  map[string]models.PresenceRecord
	sessions  map[string]models.PresenceSession
}

var (
	_ ChatRepository     = (*MemoryStore)(nil)
	_ MessageRepository  = (*MemoryStore)(nil)
	_ OfflineRepository  = (*MemoryStore)(nil)
	_ PresenceRepository = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		chats:     make(map[primitive.ObjectID]models.Chat),
		messages:  make(map[primitive.ObjectID]models.Message),
		envelopes: make(map[primitive.ObjectID]models.OfflineEnvelope),
		presence:  make(map[string]models.PresenceRecord),
		sessions:  make(map[string]models.PresenceSession),
	}
}

func (s *MemoryStore) CreateChat(_ context.Context, chat models.Chat) (models.Chat, error) {
	chat.ID = primitive.NewObjectID()
	chat.Members = models.NormalizeMembers(chat.Members)
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	s.chats[chat.ID] = chat
	s.mu.Unlock()
	return chat, nil
}

func (s *MemoryStore) GetChat(_ context.Context, chatID string) (models.Chat, error) {
	oid, err := parseObjectID(chatID)
	if err != nil {
		return models.Chat{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	chat, ok := s.chats[oid]
	if !ok {
		return models.Chat{}, ErrChatNotFound
	}
	chat.Members = append([]string(nil), chat.Members...)
	return chat, nil
}

func (s *MemoryStore) FindMembers(ctx context.Context, chatID string) ([]string, error) {
	chat, err := s.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return chat.Members, nil
}

func (s *MemoryStore) ListMemberships(_ context.Context, userID string) ([]models.ChatMembers, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ChatMembers
	for id, chat := range s.chats {
		if chat.IsMember(userID) {
			out = append(out, models.ChatMembers{ChatID: id.Hex(), Members: append([]string(nil), chat.Members...)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	return out, nil
}

func (s *MemoryStore) UpdateLastMessage(_ context.Context, chatID string, messageID primitive.ObjectID, at time.Time) error {
	oid, err := parseObjectID(chatID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[oid]
	if !ok {
		return nil
	}
	if chat.LastMessageAt != nil && chat.LastMessageAt.After(at) {
		return nil
	}
	chat.LastMessage = &messageID
	chat.LastMessageAt = &at
	s.chats[oid] = chat
	return nil
}

func (s *MemoryStore) CreateMessage(_ context.Context, msg models.Message) (models.Message, error) {
	if msg.ID.IsZero() {
		msg.ID = primitive.NewObjectID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	msg.UpdatedAt = msg.CreatedAt
	if msg.ReadBy == nil {
		msg.ReadBy = []models.ReadReceipt{}
	}
	if msg.Reactions == nil {
		msg.Reactions = []models.Reaction{}
	}
	s.mu.Lock()
	s.messages[msg.ID] = cloneMessage(msg)
	s.mu.Unlock()
	return msg, nil
}

func (s *MemoryStore) GetMessage(_ context.Context, messageID string) (models.Message, error) {
	oid, err := parseObjectID(messageID)
	if err != nil {
		return models.Message{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.messages[oid]
	if !ok {
		return models.Message{}, ErrMessageNotFound
	}
	return cloneMessage(msg), nil
}

func (s *MemoryStore) ListMessages(_ context.Context, chatID string, before *time.Time, limit int64) ([]models.Message, error) {
	oid, err := parseObjectID(chatID)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	msgs := s.chatMessagesLocked(oid)
	s.mu.RUnlock()

	if before != nil {
		kept := msgs[:0]
		for _, m := range msgs {
			if m.CreatedAt.Before(*before) {
				kept = append(kept, m)
			}
		}
		msgs = kept
	}
	limit = clampPage(limit)
	if int64(len(msgs)) > limit {
		msgs = msgs[int64(len(msgs))-limit:]
	}
	return msgs, nil
}

func (s *MemoryStore) MarkRead(_ context.Context, chatID, userID string, at time.Time) (int64, error) {
	oid, err := parseObjectID(chatID)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var modified int64
	for id, msg := range s.messages {
		if msg.ChatID != oid {
			continue
		}
		if msg.ApplyRead(userID, at.UTC()) {
			s.messages[id] = msg
			modified++
		}
	}
	return modified, nil
}

func (s *MemoryStore) CountUnread(_ context.Context, chatID, userID string) (int64, error) {
	oid, err := parseObjectID(chatID)
	if err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int64
	for _, msg := range s.messages {
		if msg.ChatID == oid && !msg.Flags.Deleted && !msg.ReadByUser(userID) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) UpdateReactions(_ context.Context, messageID string, version int64, reactions []models.Reaction) error {
	oid, err := parseObjectID(messageID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[oid]
	if !ok || msg.Version != version {
		return ErrVersionConflict
	}
	msg.Reactions = models.NormalizeReactions(reactions)
	msg.Version++
	msg.UpdatedAt = time.Now().UTC()
	s.messages[oid] = msg
	return nil
}

func (s *MemoryStore) SoftDelete(_ context.Context, messageID string) error {
	oid, err := parseObjectID(messageID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[oid]
	if !ok {
		return ErrMessageNotFound
	}
	msg.Flags.Deleted = true
	msg.Text = ""
	msg.Attachments = nil
	msg.Reactions = []models.Reaction{}
	msg.Version++
	msg.UpdatedAt = time.Now().UTC()
	s.messages[oid] = msg
	return nil
}

func (s *MemoryStore) CreateEnvelope(_ context.Context, env models.OfflineEnvelope) (models.OfflineEnvelope, error) {
	env.ID = primitive.NewObjectID()
	if env.CreatedAt.IsZero() {
		env.CreatedAt = time.Now().UTC()
	}
	env.Content = append([]byte(nil), env.Content...)
	s.mu.Lock()
	s.envelopes[env.ID] = env
	s.mu.Unlock()
	return env, nil
}

func (s *MemoryStore) ListUndelivered(_ context.Context, recipientID string, now time.Time) ([]models.OfflineEnvelope, error) {
	s.mu.RLock()
	var out []models.OfflineEnvelope
	for _, env := range s.envelopes {
		if env.RecipientID == recipientID && !env.Delivered && env.ExpiresAt.After(now) {
			out = append(out, env)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.Hex() < out[j].ID.Hex()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) MarkDelivered(_ context.Context, envelopeID string, at time.Time) error {
	oid, err := parseObjectID(envelopeID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if env, ok := s.envelopes[oid]; ok {
		env.Delivered = true
		env.DeliveredAt = &at
		s.envelopes[oid] = env
	}
	return nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, env := range s.envelopes {
		if !env.ExpiresAt.After(now) {
			delete(s.envelopes, id)
			n++
		}
	}
	return n, nil
}

// Envelopes returns every stored envelope for recipientID, delivered or not.
func (s *MemoryStore) Envelopes(recipientID string) []models.OfflineEnvelope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.OfflineEnvelope
	for _, env := range s.envelopes {
		if env.RecipientID == recipientID {
			out = append(out, env)
		}
	}
	return out
}

func (s *MemoryStore) UpsertStatus(_ context.Context, userID string, status models.PresenceStatus, lastSeen time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presence[userID] = models.PresenceRecord{UserID: userID, Status: status, LastSeen: lastSeen.UTC()}
	return nil
}

func (s *MemoryStore) AddSession(_ context.Context, session models.PresenceSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ChannelID] = session
	return nil
}

func (s *MemoryStore) RemoveSession(_ context.Context, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, channelID)
	return nil
}

func (s *MemoryStore) TouchSessions(_ context.Context, channelIDs []string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range channelIDs {
		if sess, ok := s.sessions[id]; ok {
			sess.LastActive = at.UTC()
			s.sessions[id] = sess
		}
	}
	return nil
}

func (s *MemoryStore) PruneSessions(_ context.Context, idleBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, sess := range s.sessions {
		if sess.LastActive.Before(idleBefore) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) GetPresence(_ context.Context, userID string) (models.PresenceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.presence[userID]
	if !ok {
		return models.PresenceRecord{}, ErrPresenceNotFound
	}
	rec.Sessions = []models.PresenceSession{}
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			rec.Sessions = append(rec.Sessions, sess)
		}
	}
	sort.Slice(rec.Sessions, func(i, j int) bool { return rec.Sessions[i].LastActive.After(rec.Sessions[j].LastActive) })
	return rec, nil
}

func (s *MemoryStore) chatMessagesLocked(chatID primitive.ObjectID) []models.Message {
	var out []models.Message
	for _, m := range s.messages {
		if m.ChatID == chatID {
			out = append(out, cloneMessage(m))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.Hex() < out[j].ID.Hex()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func cloneMessage(m models.Message) models.Message {
	m.ReadBy = append([]models.ReadReceipt{}, m.ReadBy...)
	m.Attachments = append([]models.Attachment(nil), m.Attachments...)
	m.Reactions = models.NormalizeReactions(m.Reactions)
	return m
}
