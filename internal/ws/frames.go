package ws

import (
	"encoding/json"
	"errors"
	"fmt"

	"marketplace-realtime/internal/models"
)

var ErrInvalidFrame = errors.New("invalid frame")

// Action names an inbound client frame.
type Action string

const (
	ActionJoinChat       Action = "joinChat"
	ActionLeaveChat      Action = "leaveChat"
	ActionTyping         Action = "typing"
	ActionMarkRead       Action = "markRead"
	ActionSendMessage    Action = "sendMessage"
	ActionAddReaction    Action = "addReaction"
	ActionRemoveReaction Action = "removeReaction"
	ActionSetStatus      Action = "setStatus"
)

// InboundFrame is a decoded client frame. Only the fields relevant to its
// action are set.
type InboundFrame struct {
	Action          Action                `json:"action"`
	ChatID          string                `json:"chatId,omitempty"`
	MessageID       string                `json:"messageId,omitempty"`
	Text            string                `json:"text,omitempty"`
	Attachments     []models.Attachment   `json:"attachments,omitempty"`
	ClientMessageID string                `json:"clientMessageId,omitempty"`
	Emoji           string                `json:"emoji,omitempty"`
	IsTyping        bool                  `json:"isTyping,omitempty"`
	Status          models.PresenceStatus `json:"status,omitempty"`
}

// DecodeFrame parses data and checks the fields its action requires.
func DecodeFrame(data []byte) (InboundFrame, error) {
	var f InboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return InboundFrame{}, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	if err := f.validate(); err != nil {
		return InboundFrame{}, err
	}
	return f, nil
}

func (f InboundFrame) validate() error {
	switch f.Action {
	case ActionJoinChat, ActionLeaveChat, ActionTyping, ActionMarkRead, ActionSendMessage:
		if f.ChatID == "" {
			return fmt.Errorf("%w: %s requires chatId", ErrInvalidFrame, f.Action)
		}
	case ActionAddReaction, ActionRemoveReaction:
		if f.MessageID == "" || f.Emoji == "" {
			return fmt.Errorf("%w: %s requires messageId and emoji", ErrInvalidFrame, f.Action)
		}
	case ActionSetStatus:
		if !f.Status.Valid() {
			return fmt.Errorf("%w: unknown status %q", ErrInvalidFrame, f.Status)
		}
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidFrame, f.Action)
	}
	return nil
}
