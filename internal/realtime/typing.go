package realtime

import (
	"sort"
	"sync"
	"time"

	"marketplace-realtime/internal/events"
	"marketplace-realtime/internal/ws"
)

// TypingTracker keeps the ephemeral set of users typing in each chat.
type TypingTracker struct {
	mu    sync.Mutex
	chats map[string]map[string]time.Time
	hub   *ws.Hub
	now   func() time.Time
}

func newTypingTracker(hub *ws.Hub) *TypingTracker {
	return &TypingTracker{
		chats: make(map[string]map[string]time.Time),
		hub:   hub,
		now:   time.Now,
	}
}

// SetTyping updates the state and notifies the chat group and the actor's
// own personal group.
func (t *TypingTracker) SetTyping(chatID, userID string, isTyping bool) {
	if chatID == "" || userID == "" {
		return
	}
	t.mu.Lock()
	if isTyping {
		set, ok := t.chats[chatID]
		if !ok {
			set = make(map[string]time.Time)
			t.chats[chatID] = set
		}
		set[userID] = t.now()
	} else {
		t.removeLocked(chatID, userID)
	}
	t.mu.Unlock()

	t.emit(chatID, userID, isTyping)
}

// Typing lists the users currently typing in chatID.
func (t *TypingTracker) Typing(chatID string) []string {
	t.mu.Lock()
	out := make([]string, 0, len(t.chats[chatID]))
	for userID := range t.chats[chatID] {
		out = append(out, userID)
	}
	t.mu.Unlock()
	sort.Strings(out)
	return out
}

// PruneStale clears entries older than maxAge and announces each as stopped.
func (t *TypingTracker) PruneStale(maxAge time.Duration) int {
	cutoff := t.now().Add(-maxAge)
	type entry struct{ chatID, userID string }
	var stale []entry

	t.mu.Lock()
	for chatID, set := range t.chats {
		for userID, at := range set {
			if at.Before(cutoff) {
				stale = append(stale, entry{chatID, userID})
			}
		}
	}
	for _, e := range stale {
		t.removeLocked(e.chatID, e.userID)
	}
	t.mu.Unlock()

	for _, e := range stale {
		t.emit(e.chatID, e.userID, false)
	}
	return len(stale)
}

// ClearUser drops userID from every chat.
func (t *TypingTracker) ClearUser(userID string) {
	var chats []string
	t.mu.Lock()
	for chatID, set := range t.chats {
		if _, ok := set[userID]; ok {
			chats = append(chats, chatID)
		}
	}
	for _, chatID := range chats {
		t.removeLocked(chatID, userID)
	}
	t.mu.Unlock()

	for _, chatID := range chats {
		t.hub.EmitToChat(chatID, events.UserTyping(chatID, userID, false))
	}
}

func (t *TypingTracker) emit(chatID, userID string, isTyping bool) {
	ev := events.UserTyping(chatID, userID, isTyping)
	t.hub.EmitToChat(chatID, ev)
	t.hub.EmitToUser(userID, ev)
}

func (t *TypingTracker) removeLocked(chatID, userID string) {
	set, ok := t.chats[chatID]
	if !ok {
		return
	}
	delete(set, userID)
	if len(set) == 0 {
		delete(t.chats, chatID)
	}
}
