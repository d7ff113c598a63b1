package realtime

import (
	"context"

	"marketplace-realtime/internal/repositories"
	"marketplace-realtime/internal/ws"
)

// Membership subscribes channels to personal and chat groups.
type Membership struct {
	registry *ws.Registry
	hub      *ws.Hub
	chats    repositories.ChatRepository
	receipts *ReceiptEngine
	tasks    *tasks
}

func (m *Membership) JoinPersonalChannel(channelID, userID string) bool {
	return m.hub.JoinPersonal(channelID, userID)
}

// JoinChatChannel subscribes the channel to chatID. Opening a chat marks it
// read for the channel's user and republishes every member's unread count.
func (m *Membership) JoinChatChannel(ctx context.Context, channelID, chatID string) error {
	userID, ok := m.registry.UserFor(channelID)
	if !ok {
		return validationError("channel %s is not registered", channelID)
	}
	chat, err := m.chats.GetChat(ctx, chatID)
	if err != nil {
		return lookupError("get chat", err)
	}
	if !chat.IsMember(userID) {
		return permissionDenied("not a chat member")
	}
	m.hub.JoinChat(channelID, chatID)

	if _, err := m.receipts.MarkRead(ctx, chatID, userID); err != nil {
		return err
	}
	members := append([]string(nil), chat.Members...)
	bg := context.WithoutCancel(ctx)
	m.tasks.Go(func() { m.receipts.BroadcastUnread(bg, chatID, members) })
	return nil
}

// LeaveChatChannel only changes the subscription; presence is unaffected.
func (m *Membership) LeaveChatChannel(channelID, chatID string) {
	m.hub.LeaveChat(channelID, chatID)
}
