package ws

import (
	"context"
	"errors"
	"log"
	"sync"

	"marketplace-realtime/internal/events"
	"marketplace-realtime/internal/observability"
)

var ErrUnknownChannel = errors.New("unknown channel")

// Sink is the write side of one live channel. Send must not block.
type Sink interface {
	Send(frame []byte) error
	Close() error
}

type member struct {
	sink   Sink
	info   ConnInfo
	userID string
	chats  map[string]struct{}
}

type target struct {
	channelID string
	sink      Sink
}

// Hub maintains live channels and their broadcast groups: one personal group
// per user and one group per open chat.
type Hub struct {
	members  map[string]*member
	personal map[string]map[string]struct{}
	chats    map[string]map[string]struct{}
	mu       sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		members:  make(map[string]*member),
		personal: make(map[string]map[string]struct{}),
		chats:    make(map[string]map[string]struct{}),
	}
}

// Attach adds a channel's sink. It reports false if the id is already attached.
func (h *Hub) Attach(channelID string, sink Sink, info ConnInfo) bool {
	if channelID == "" || sink == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.members[channelID]; ok {
		return false
	}
	h.members[channelID] = &member{sink: sink, info: info, chats: make(map[string]struct{})}
	return true
}

// Detach removes a channel from every group it joined.
func (h *Hub) Detach(channelID string) (ConnInfo, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.members[channelID]
	if !ok {
		return ConnInfo{}, false
	}
	delete(h.members, channelID)
	if m.userID != "" {
		removeFromGroup(h.personal, m.userID, channelID)
	}
	for chatID := range m.chats {
		removeFromGroup(h.chats, chatID, channelID)
	}
	return m.info, true
}

// JoinPersonal subscribes a channel to its user's personal group.
func (h *Hub) JoinPersonal(channelID, userID string) bool {
	if userID == "" {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.members[channelID]
	if !ok {
		return false
	}
	if m.userID != "" && m.userID != userID {
		return false
	}
	m.userID = userID
	addToGroup(h.personal, userID, channelID)
	return true
}

// JoinChat subscribes a channel to a chat group.
func (h *Hub) JoinChat(channelID, chatID string) bool {
	if chatID == "" {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.members[channelID]
	if !ok {
		return false
	}
	m.chats[chatID] = struct{}{}
	addToGroup(h.chats, chatID, channelID)
	return true
}

// LeaveChat unsubscribes a channel from a chat group.
func (h *Hub) LeaveChat(channelID, chatID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m, ok := h.members[channelID]; ok {
		delete(m.chats, chatID)
	}
	removeFromGroup(h.chats, chatID, channelID)
}

func (h *Hub) InChat(channelID, chatID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.chats[chatID][channelID]
	return ok
}

// HasPersonalSubscribers reports whether a personal group has any channel.
func (h *Hub) HasPersonalSubscribers(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.personal[userID]) > 0
}

func (h *Hub) ChatSubscriberCount(chatID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.chats[chatID])
}

// EmitToChat sends ev to every channel viewing chatID and returns how many
// accepted it.
func (h *Hub) EmitToChat(chatID string, ev events.Event) int {
	return h.emit(h.groupTargets(h.chats, chatID), ev)
}

// EmitToUser sends ev to every channel of userID.
func (h *Hub) EmitToUser(userID string, ev events.Event) int {
	return h.emit(h.groupTargets(h.personal, userID), ev)
}

// EmitToChannel sends ev to a single channel.
func (h *Hub) EmitToChannel(channelID string, ev events.Event) error {
	h.mu.RLock()
	m, ok := h.members[channelID]
	h.mu.RUnlock()
	if !ok {
		return ErrUnknownChannel
	}
	if h.emit([]target{{channelID: channelID, sink: m.sink}}, ev) == 0 {
		return errors.New("channel rejected frame")
	}
	return nil
}

// EmitFrameToUser sends an already encoded frame to every channel of userID.
func (h *Hub) EmitFrameToUser(userID, name string, frame []byte) int {
	return h.deliver(h.groupTargets(h.personal, userID), name, frame)
}

func (h *Hub) emit(targets []target, ev events.Event) int {
	if len(targets) == 0 {
		return 0
	}
	frame, err := ev.Encode()
	if err != nil {
		log.Printf("event=hub action=encode status=failed event=%s error=%v", ev.Name(), err)
		return 0
	}
	return h.deliver(targets, ev.Kind().String(), frame)
}

// deliver hands frame to each sink independently. A failing sink is closed
// and detached without affecting the rest.
func (h *Hub) deliver(targets []target, name string, frame []byte) int {
	delivered := 0
	for _, t := range targets {
		if err := t.sink.Send(frame); err != nil {
			log.Printf("event=hub action=deliver status=failed event=%s channel_id=%s error=%v", name, t.channelID, err)
			observability.IncDelivery(name, "failed")
			_ = t.sink.Close()
			if info, ok := h.Detach(t.channelID); ok {
				h.publishWSError(info, err)
			}
			continue
		}
		observability.IncDelivery(name, "ok")
		delivered++
	}
	return delivered
}

func (h *Hub) groupTargets(groups map[string]map[string]struct{}, key string) []target {
	h.mu.RLock()
	defer h.mu.RUnlock()
	group := groups[key]
	out := make([]target, 0, len(group))
	for channelID := range group {
		if m, ok := h.members[channelID]; ok {
			out = append(out, target{channelID: channelID, sink: m.sink})
		}
	}
	return out
}

func (h *Hub) publishWSError(info ConnInfo, err error) {
	observability.PublishWSEvent(context.Background(), info.wsEvent("ws_error", err.Error()))
}

func addToGroup(groups map[string]map[string]struct{}, key, channelID string) {
	set, ok := groups[key]
	if !ok {
		set = make(map[string]struct{})
		groups[key] = set
	}
	set[channelID] = struct{}{}
}

func removeFromGroup(groups map[string]map[string]struct{}, key, channelID string) {
	if set, ok := groups[key]; ok {
		delete(set, channelID)
		if len(set) == 0 {
			delete(groups, key)
		}
	}
}
