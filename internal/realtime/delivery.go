package realtime

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"marketplace-realtime/internal/events"
	"marketplace-realtime/internal/models"
	"marketplace-realtime/internal/observability"
	"marketplace-realtime/internal/repositories"
	"marketplace-realtime/internal/ws"
)

const (
	MaxTextLength  = 4000
	MaxAttachments = 10
)

// ClientMessageGuard deduplicates client retries of the same send.
type ClientMessageGuard interface {
	Claim(ctx context.Context, chatID, senderID, clientMessageID string) (bool, error)
	Release(ctx context.Context, chatID, senderID, clientMessageID string) error
}

type SendInput struct {
	ChatID          string
	SenderID        string
	Text            string
	Attachments     []models.Attachment
	ClientMessageID string
}

func (in SendInput) validate() error {
	if in.ChatID == "" || in.SenderID == "" {
		return validationError("chat id and sender id are required")
	}
	if strings.TrimSpace(in.Text) == "" && len(in.Attachments) == 0 {
		return validationError("message needs text or attachments")
	}
	if utf8.RuneCountInString(in.Text) > MaxTextLength {
		return validationError("text exceeds %d characters", MaxTextLength)
	}
	if len(in.Attachments) > MaxAttachments {
		return validationError("at most %d attachments are allowed", MaxAttachments)
	}
	for _, a := range in.Attachments {
		if a.URL == "" {
			return validationError("attachment url is required")
		}
	}
	return nil
}

// DeliveryPipeline persists messages and fans them out to chat viewers and
// to every member's personal group.
type DeliveryPipeline struct {
	chats    repositories.ChatRepository
	messages repositories.MessageRepository
	hub      *ws.Hub
	offline  *OfflineQueue
	receipts *ReceiptEngine
	guard    ClientMessageGuard
	tasks    *tasks
	now      func() time.Time
}

// Send stores the message and returns once it is persisted and emitted to
// the chat group. Personal fan-out and unread recompute continue in the
// background.
func (d *DeliveryPipeline) Send(ctx context.Context, in SendInput) (models.MessageDTO, error) {
	ctx, span := observability.StartSpan(ctx, "realtime", "delivery.send")
	defer span.End()

	if err := in.validate(); err != nil {
		return models.MessageDTO{}, err
	}
	chat, err := d.chats.GetChat(ctx, in.ChatID)
	if err != nil {
		return models.MessageDTO{}, lookupError("get chat", err)
	}
	if ok, reason := chat.SendPermission(in.SenderID, len(in.Attachments) > 0); !ok {
		return models.MessageDTO{}, permissionDenied(reason)
	}

	claimed, err := d.claim(ctx, in)
	if err != nil {
		return models.MessageDTO{}, err
	}

	now := d.now().UTC()
	saved, err := d.messages.CreateMessage(ctx, models.Message{
		ChatID:          chat.ID,
		SenderID:        in.SenderID,
		Text:            in.Text,
		Attachments:     in.Attachments,
		ReadBy:          []models.ReadReceipt{{UserID: in.SenderID, ReadAt: now}},
		Reactions:       []models.Reaction{},
		ClientMessageID: in.ClientMessageID,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		if claimed {
			if relErr := d.guard.Release(ctx, in.ChatID, in.SenderID, in.ClientMessageID); relErr != nil {
				log.Printf("client message release failed chat_id=%s: %v", in.ChatID, relErr)
			}
		}
		return models.MessageDTO{}, storageError("create message", err)
	}

	if err := d.chats.UpdateLastMessage(ctx, in.ChatID, saved.ID, saved.CreatedAt); err != nil {
		log.Printf("last message update failed chat_id=%s message_id=%s: %v", in.ChatID, saved.ID.Hex(), err)
	}

	dto := models.ProjectMessage(saved)
	d.hub.EmitToChat(in.ChatID, events.ChatMessage(dto))

	members := append([]string(nil), chat.Members...)
	bg := context.WithoutCancel(ctx)
	d.tasks.Go(func() { d.fanOut(bg, dto, members) })
	return dto, nil
}

// claim reserves the client message id. Guard errors fail open.
func (d *DeliveryPipeline) claim(ctx context.Context, in SendInput) (bool, error) {
	if d.guard == nil || in.ClientMessageID == "" {
		return false, nil
	}
	ok, err := d.guard.Claim(ctx, in.ChatID, in.SenderID, in.ClientMessageID)
	if err != nil {
		log.Printf("client message guard unavailable chat_id=%s: %v", in.ChatID, err)
		return false, nil
	}
	if !ok {
		return false, validationError("duplicate client message id %s", in.ClientMessageID)
	}
	return true, nil
}

// fanOut sends newMessage to every member independently, queueing it for
// members with no live channel, then recomputes unread counts.
func (d *DeliveryPipeline) fanOut(ctx context.Context, dto models.MessageDTO, members []string) {
	ev := events.NewMessage(dto)
	var wg sync.WaitGroup
	for _, member := range members {
		wg.Add(1)
		go func(member string) {
			defer wg.Done()
			if member == dto.Sender {
				d.hub.EmitToUser(member, ev)
				return
			}
			if _, err := d.offline.Deliver(ctx, member, models.EnvelopeChat, ev); err != nil {
				log.Printf("message fan-out failed chat_id=%s user_id=%s: %v", dto.Chat, member, err)
				observability.IncDelivery(ev.Kind().String(), "lost")
			}
		}(member)
	}
	wg.Wait()
	d.receipts.BroadcastUnread(ctx, dto.Chat, members)
}

// DeleteMessage soft deletes a message written by userID.
func (d *DeliveryPipeline) DeleteMessage(ctx context.Context, messageID, userID string) error {
	msg, err := d.messages.GetMessage(ctx, messageID)
	if err != nil {
		return lookupError("get message", err)
	}
	if msg.SenderID != userID {
		return permissionDenied("only the sender can delete a message")
	}
	if msg.Flags.Deleted {
		return nil
	}
	if err := d.messages.SoftDelete(ctx, messageID); err != nil {
		return lookupError("delete message", err)
	}

	chatID := msg.ChatID.Hex()
	d.hub.EmitToChat(chatID, events.MessageDeleted(chatID, messageID))

	bg := context.WithoutCancel(ctx)
	d.tasks.Go(func() {
		members, err := d.chats.FindMembers(bg, chatID)
		if err != nil {
			log.Printf("unread recompute skipped chat_id=%s: %v", chatID, err)
			return
		}
		d.receipts.BroadcastUnread(bg, chatID, members)
	})
	return nil
}

// ListMessages returns a page of a chat's history for one of its members.
func (d *DeliveryPipeline) ListMessages(ctx context.Context, chatID, userID string, before *time.Time, limit int64) ([]models.MessageDTO, error) {
	chat, err := d.chats.GetChat(ctx, chatID)
	if err != nil {
		return nil, lookupError("get chat", err)
	}
	if !chat.IsMember(userID) {
		return nil, permissionDenied("not a chat member")
	}
	msgs, err := d.messages.ListMessages(ctx, chatID, before, limit)
	if err != nil {
		return nil, lookupError("list messages", err)
	}
	return models.ProjectMessages(msgs), nil
}
