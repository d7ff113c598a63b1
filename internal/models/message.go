package models

import (
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
)

// Attachment references an already uploaded file.
type Attachment struct {
	URL  string `bson:"url" json:"url"`
	Kind string `bson:"kind,omitempty" json:"kind,omitempty"`
	Name string `bson:"name,omitempty" json:"name,omitempty"`
	Size int64  `bson:"size,omitempty" json:"size,omitempty"`
}

// ReadReceipt records that a user has read a message.
// A zero ReadAt marks a legacy entry that stored only the user id.
type ReadReceipt struct {
	UserID string    `bson:"user" json:"user"`
	ReadAt time.Time `bson:"readAt" json:"readAt"`
}

type readReceiptDoc struct {
	UserID string    `bson:"user"`
	ReadAt time.Time `bson:"readAt"`
}

// Legacy reports whether the receipt lacks a timestamp.
func (r ReadReceipt) Legacy() bool {
	return r.ReadAt.IsZero()
}

// UnmarshalBSONValue accepts both the current sub-document form and the
// old bare user id string.
func (r *ReadReceipt) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	switch t {
	case bsontype.String:
		userID, _, ok := bsoncore.ReadString(data)
		if !ok {
			return errors.New("read receipt: malformed string")
		}
		*r = ReadReceipt{UserID: userID}
		return nil
	case bsontype.EmbeddedDocument:
		var doc readReceiptDoc
		if err := bson.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("read receipt: %w", err)
		}
		*r = ReadReceipt{UserID: doc.UserID, ReadAt: doc.ReadAt}
		return nil
	case bsontype.Null, bsontype.Undefined:
		*r = ReadReceipt{}
		return nil
	}
	return fmt.Errorf("read receipt: unexpected bson type %s", t)
}

// MessageFlags carries soft state. Deleted messages keep their slot for ordering.
type MessageFlags struct {
	Deleted bool `bson:"deleted" json:"deleted"`
	Edited  bool `bson:"edited" json:"edited"`
}

// Message is a single chat message.
type Message struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ChatID          primitive.ObjectID `bson:"chat" json:"chat"`
	SenderID        string             `bson:"sender" json:"sender"`
	Text            string             `bson:"text,omitempty" json:"text,omitempty"`
	Attachments     []Attachment       `bson:"attachments,omitempty" json:"attachments,omitempty"`
	ReadBy          []ReadReceipt      `bson:"readBy" json:"readBy"`
	Reactions       []Reaction         `bson:"reactions" json:"reactions"`
	Flags           MessageFlags       `bson:"flags" json:"flags"`
	ClientMessageID string             `bson:"clientMessageId,omitempty" json:"clientMessageId,omitempty"`
	Version         int64              `bson:"version" json:"-"`
	CreatedAt       time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// ReadByUser ignores legacy receipts, which still count as unread.
func (m Message) ReadByUser(userID string) bool {
	for _, r := range m.ReadBy {
		if r.UserID == userID && !r.Legacy() {
			return true
		}
	}
	return false
}

// ApplyRead drops legacy receipts for userID and adds a fresh one unless
// the user already has one. It reports whether ReadBy changed.
func (m *Message) ApplyRead(userID string, at time.Time) bool {
	changed := false
	kept := m.ReadBy[:0:0]
	for _, r := range m.ReadBy {
		if r.UserID == userID && r.Legacy() {
			changed = true
			continue
		}
		kept = append(kept, r)
	}
	m.ReadBy = kept
	if m.SenderID == userID {
		return changed
	}
	if m.ReadByUser(userID) {
		return changed
	}
	m.ReadBy = append(m.ReadBy, ReadReceipt{UserID: userID, ReadAt: at})
	return true
}
