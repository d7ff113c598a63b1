package realtime

import (
	"context"
	"errors"
	"fmt"

	"marketplace-realtime/internal/events"
	"marketplace-realtime/internal/models"
	"marketplace-realtime/internal/repositories"
	"marketplace-realtime/internal/ws"
)

const reactionWriteAttempts = 3

// ReactionSync applies reaction changes and broadcasts the new set to the
// chat group.
type ReactionSync struct {
	chats    repositories.ChatRepository
	messages repositories.MessageRepository
	hub      *ws.Hub
}

func newReactionSync(chats repositories.ChatRepository, messages repositories.MessageRepository, hub *ws.Hub) *ReactionSync {
	return &ReactionSync{chats: chats, messages: messages, hub: hub}
}

func (r *ReactionSync) Add(ctx context.Context, messageID, userID, emoji string) ([]models.Reaction, error) {
	return r.apply(ctx, true, messageID, userID, emoji)
}

func (r *ReactionSync) Remove(ctx context.Context, messageID, userID, emoji string) ([]models.Reaction, error) {
	return r.apply(ctx, false, messageID, userID, emoji)
}

func (r *ReactionSync) apply(ctx context.Context, add bool, messageID, userID, emoji string) ([]models.Reaction, error) {
	if !models.IsAllowedReaction(emoji) {
		return nil, validationError("reaction %q is not allowed", emoji)
	}
	if messageID == "" || userID == "" {
		return nil, validationError("message id and user id are required")
	}

	checked := false
	for attempt := 0; attempt < reactionWriteAttempts; attempt++ {
		msg, err := r.messages.GetMessage(ctx, messageID)
		if err != nil {
			return nil, lookupError("get message", err)
		}
		if !checked {
			if err := r.checkMember(ctx, msg, userID); err != nil {
				return nil, err
			}
			checked = true
		}
		if msg.Flags.Deleted {
			return nil, fmt.Errorf("%w: message %s was deleted", ErrNotFound, messageID)
		}

		var next []models.Reaction
		var changed bool
		if add {
			next, changed = models.AddReaction(msg.Reactions, emoji, userID)
		} else {
			next, changed = models.RemoveReaction(msg.Reactions, emoji, userID)
		}
		if !changed {
			return models.NormalizeReactions(msg.Reactions), nil
		}

		err = r.messages.UpdateReactions(ctx, messageID, msg.Version, next)
		if errors.Is(err, repositories.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, lookupError("update reactions", err)
		}

		chatID := msg.ChatID.Hex()
		r.hub.EmitToChat(chatID, events.ReactionChanged(add, chatID, messageID, emoji, userID, next))
		return next, nil
	}
	return nil, storageError("update reactions", repositories.ErrVersionConflict)
}

func (r *ReactionSync) checkMember(ctx context.Context, msg models.Message, userID string) error {
	chat, err := r.chats.GetChat(ctx, msg.ChatID.Hex())
	if err != nil {
		return lookupError("get chat", err)
	}
	if !chat.IsMember(userID) {
		return permissionDenied("not a chat member")
	}
	return nil
}
