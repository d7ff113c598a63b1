// Package events defines every server-to-client event. Events can only be
// built through the constructors below, so each kind always carries its
// own payload type.
package events

import (
	"encoding/json"
	"fmt"

	"marketplace-realtime/internal/models"
)

// Kind enumerates outbound event types.
type Kind uint8

const (
	KindPresenceSnapshot Kind = iota + 1
	KindPresenceUpdate
	KindChatMessage
	KindNewMessage
	KindMessageDeleted
	KindUnreadCountUpdate
	KindUserTyping
	KindReactionAdded
	KindReactionRemoved
	KindNotification
	KindError
)

var kindNames = map[Kind]string{
	KindPresenceSnapshot:  "presenceSnapshot",
	KindPresenceUpdate:    "presenceUpdate",
	KindChatMessage:       "message:new",
	KindNewMessage:        "newMessage",
	KindMessageDeleted:    "messageDeleted",
	KindUnreadCountUpdate: "unreadCountUpdate",
	KindUserTyping:        "userTyping",
	KindReactionAdded:     "reactionAdded",
	KindReactionRemoved:   "reactionRemoved",
	KindNotification:      "notification",
	KindError:             "error",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

type PresenceSnapshotPayload struct {
	OnlineMembers []string `json:"onlineMembers"`
}

type PresenceUpdatePayload struct {
	UserID string                `json:"userId"`
	Status models.PresenceStatus `json:"status"`
}

type UnreadCountPayload struct {
	ChatID      string `json:"chatId"`
	UnreadCount int64  `json:"unreadCount"`
}

type TypingPayload struct {
	ChatID   string `json:"chatId"`
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

type ReactionPayload struct {
	MessageID string            `json:"messageId"`
	Emoji     string            `json:"emoji"`
	UserID    string            `json:"userId"`
	Reactions []models.Reaction `json:"reactions"`
}

type MessageDeletedPayload struct {
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId"`
}

type NotificationPayload struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type ErrorPayload struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// Event is a typed outbound event.
type Event struct {
	kind    Kind
	chatID  string
	payload any
}

func (e Event) Kind() Kind   { return e.kind }
func (e Event) Payload() any { return e.payload }

// Name is the wire event name. Chat-scoped message events carry the chat id
// so a client only reacts to the chat it has open.
func (e Event) Name() string {
	if e.kind == KindChatMessage {
		return kindNames[KindChatMessage] + ":" + e.chatID
	}
	return e.kind.String()
}

type frame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Encode renders the frame written to the socket.
func (e Event) Encode() ([]byte, error) {
	if _, ok := kindNames[e.kind]; !ok {
		return nil, fmt.Errorf("encode event: unknown kind %d", e.kind)
	}
	return json.Marshal(frame{Type: e.Name(), Payload: e.payload})
}

func PresenceSnapshot(online []string) Event {
	if online == nil {
		online = []string{}
	}
	return Event{kind: KindPresenceSnapshot, payload: PresenceSnapshotPayload{OnlineMembers: online}}
}

func PresenceUpdate(userID string, status models.PresenceStatus) Event {
	return Event{kind: KindPresenceUpdate, payload: PresenceUpdatePayload{UserID: userID, Status: status}}
}

func ChatMessage(msg models.MessageDTO) Event {
	return Event{kind: KindChatMessage, chatID: msg.Chat, payload: msg}
}

func NewMessage(msg models.MessageDTO) Event {
	return Event{kind: KindNewMessage, chatID: msg.Chat, payload: msg}
}

func MessageDeleted(chatID, messageID string) Event {
	return Event{kind: KindMessageDeleted, chatID: chatID, payload: MessageDeletedPayload{ChatID: chatID, MessageID: messageID}}
}

func UnreadCountUpdate(chatID string, count int64) Event {
	return Event{kind: KindUnreadCountUpdate, chatID: chatID, payload: UnreadCountPayload{ChatID: chatID, UnreadCount: count}}
}

func UserTyping(chatID, userID string, isTyping bool) Event {
	return Event{kind: KindUserTyping, chatID: chatID, payload: TypingPayload{ChatID: chatID, UserID: userID, IsTyping: isTyping}}
}

// ReactionChanged builds reactionAdded or reactionRemoved.
func ReactionChanged(added bool, chatID, messageID, emoji, userID string, reactions []models.Reaction) Event {
	kind := KindReactionRemoved
	if added {
		kind = KindReactionAdded
	}
	if reactions == nil {
		reactions = []models.Reaction{}
	}
	return Event{kind: kind, chatID: chatID, payload: ReactionPayload{
		MessageID: messageID,
		Emoji:     emoji,
		UserID:    userID,
		Reactions: reactions,
	}}
}

func Notification(event string, data any) Event {
	return Event{kind: KindNotification, payload: NotificationPayload{Event: event, Data: data}}
}

func Error(code, message string) Event {
	return Event{kind: KindError, payload: ErrorPayload{Code: code, Error: message}}
}
