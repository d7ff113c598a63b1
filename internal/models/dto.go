package models

import "time"

// MessageDTO is the wire shape of a message.
type MessageDTO struct {
	ID          string        `json:"id"`
	Chat        string        `json:"chat"`
	Sender      string        `json:"sender"`
	Text        string        `json:"text"`
	Attachments []Attachment  `json:"attachments"`
	ReadBy      []ReadReceipt `json:"readBy"`
	Reactions   []Reaction    `json:"reactions"`
	Deleted     bool          `json:"deleted"`
	Edited      bool          `json:"edited"`
	ClientID    string        `json:"clientMessageId,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// ProjectMessage builds the DTO for m. Deleted messages are scrubbed.
func ProjectMessage(m Message) MessageDTO {
	dto := MessageDTO{
		ID:          m.ID.Hex(),
		Chat:        m.ChatID.Hex(),
		Sender:      m.SenderID,
		Text:        m.Text,
		Attachments: append([]Attachment{}, m.Attachments...),
		ReadBy:      make([]ReadReceipt, 0, len(m.ReadBy)),
		Reactions:   NormalizeReactions(m.Reactions),
		Deleted:     m.Flags.Deleted,
		Edited:      m.Flags.Edited,
		ClientID:    m.ClientMessageID,
		CreatedAt:   m.CreatedAt,
	}
	for _, r := range m.ReadBy {
		if !r.Legacy() {
			dto.ReadBy = append(dto.ReadBy, r)
		}
	}
	if m.Flags.Deleted {
		dto.Text = ""
		dto.Attachments = []Attachment{}
		dto.Reactions = []Reaction{}
	}
	return dto
}

func ProjectMessages(msgs []Message) []MessageDTO {
	out := make([]MessageDTO, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ProjectMessage(m))
	}
	return out
}
