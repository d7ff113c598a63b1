package realtime

import (
	"context"
	"log"
	"time"

	"marketplace-realtime/internal/events"
	"marketplace-realtime/internal/observability"
	"marketplace-realtime/internal/repositories"
	"marketplace-realtime/internal/ws"
)

// ReceiptEngine marks chats read and publishes per-member unread counts.
type ReceiptEngine struct {
	messages repositories.MessageRepository
	hub      *ws.Hub
	now      func() time.Time
}

func newReceiptEngine(messages repositories.MessageRepository, hub *ws.Hub) *ReceiptEngine {
	return &ReceiptEngine{messages: messages, hub: hub, now: time.Now}
}

// MarkRead records a read receipt for userID on every message of chatID
// written by someone else. Repeating it changes nothing.
func (r *ReceiptEngine) MarkRead(ctx context.Context, chatID, userID string) (int64, error) {
	if chatID == "" || userID == "" {
		return 0, validationError("chat id and user id are required")
	}
	n, err := r.messages.MarkRead(ctx, chatID, userID, r.now().UTC())
	if err != nil {
		return 0, lookupError("mark read", err)
	}
	return n, nil
}

func (r *ReceiptEngine) UnreadCount(ctx context.Context, chatID, userID string) (int64, error) {
	if chatID == "" || userID == "" {
		return 0, validationError("chat id and user id are required")
	}
	n, err := r.messages.CountUnread(ctx, chatID, userID)
	if err != nil {
		return 0, lookupError("count unread", err)
	}
	return n, nil
}

// BroadcastUnread sends each member its own unread count for chatID. Counts
// are read right before each emit so interleaved updates converge on the
// latest state.
func (r *ReceiptEngine) BroadcastUnread(ctx context.Context, chatID string, members []string) {
	for _, member := range members {
		count, err := r.UnreadCount(ctx, chatID, member)
		if err != nil {
			log.Printf("unread recompute failed chat_id=%s user_id=%s: %v", chatID, member, err)
			observability.IncDelivery(events.KindUnreadCountUpdate.String(), "failed")
			continue
		}
		r.hub.EmitToUser(member, events.UnreadCountUpdate(chatID, count))
	}
}
