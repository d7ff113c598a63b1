package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultOfflineTTL bounds how long an undelivered envelope is kept.
const DefaultOfflineTTL = 30 * 24 * time.Hour

type EnvelopeKind string

const (
	EnvelopeChat         EnvelopeKind = "chat"
	EnvelopeNotification EnvelopeKind = "notification"
	EnvelopeSystem       EnvelopeKind = "system"
)

func (k EnvelopeKind) Valid() bool {
	switch k {
	case EnvelopeChat, EnvelopeNotification, EnvelopeSystem:
		return true
	}
	return false
}

// OfflineEnvelope is a queued event for a user with no live channel.
// Content holds the encoded frame exactly as it would have been sent live.
type OfflineEnvelope struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	RecipientID string             `bson:"recipient" json:"recipient"`
	Kind        EnvelopeKind       `bson:"kind" json:"kind"`
	Event       string             `bson:"event" json:"event"`
	Content     []byte             `bson:"content" json:"content"`
	Delivered   bool               `bson:"delivered" json:"delivered"`
	Read        bool               `bson:"read" json:"read"`
	DeliveredAt *time.Time         `bson:"deliveredAt,omitempty" json:"deliveredAt,omitempty"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
	ExpiresAt   time.Time          `bson:"expiresAt" json:"expiresAt"`
}
