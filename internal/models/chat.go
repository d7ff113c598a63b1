package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ChatType is derived from the member count and never stored.
type ChatType string

const (
	ChatTypeDirect ChatType = "direct"
	ChatTypeGroup  ChatType = "group"
)

// ChatSettings controls who may post in a chat.
type ChatSettings struct {
	AllowMemberMessages bool `bson:"allowMemberMessages" json:"allowMemberMessages"`
	AllowFileUploads    bool `bson:"allowFileUploads" json:"allowFileUploads"`
}

// DefaultChatSettings is applied to newly created chats.
func DefaultChatSettings() ChatSettings {
	return ChatSettings{AllowMemberMessages: true, AllowFileUploads: true}
}

// Chat is a conversation between two (direct) or more (group) users.
type Chat struct {
	ID            primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Name          string              `bson:"name,omitempty" json:"name,omitempty"`
	Members       []string            `bson:"members" json:"members"`
	Admins        []string            `bson:"admins,omitempty" json:"admins,omitempty"`
	CreatedBy     string              `bson:"createdBy" json:"createdBy"`
	Settings      ChatSettings        `bson:"settings" json:"settings"`
	MutedUsers    []string            `bson:"mutedUsers,omitempty" json:"mutedUsers,omitempty"`
	LastMessage   *primitive.ObjectID `bson:"lastMessage,omitempty" json:"lastMessage,omitempty"`
	LastMessageAt *time.Time          `bson:"lastMessageAt,omitempty" json:"lastMessageAt,omitempty"`
	CreatedAt     time.Time           `bson:"createdAt" json:"createdAt"`
}

// ChatMembers is the routing projection of a chat.
type ChatMembers struct {
	ChatID  string
	Members []string
}

// Type reports direct for exactly two members and group otherwise.
func (c Chat) Type() ChatType {
	if len(c.Members) == 2 {
		return ChatTypeDirect
	}
	return ChatTypeGroup
}

func (c Chat) IsMember(userID string) bool {
	return contains(c.Members, userID)
}

// IsAdmin treats the creator as an implicit admin.
func (c Chat) IsAdmin(userID string) bool {
	if userID == "" {
		return false
	}
	return c.CreatedBy == userID || contains(c.Admins, userID)
}

func (c Chat) IsMuted(userID string) bool {
	return contains(c.MutedUsers, userID)
}

// SendPermission reports whether userID may post, and why not.
// Muting only restricts the muted member's own sends.
func (c Chat) SendPermission(userID string, withAttachments bool) (bool, string) {
	if !c.IsMember(userID) {
		return false, "not a chat member"
	}
	admin := c.IsAdmin(userID)
	if c.IsMuted(userID) && !admin {
		return false, "muted in this chat"
	}
	if !c.Settings.AllowMemberMessages && !admin {
		return false, "only admins can post in this chat"
	}
	if withAttachments && !c.Settings.AllowFileUploads && !admin {
		return false, "file uploads are disabled in this chat"
	}
	return true, ""
}

// NormalizeMembers returns ids deduplicated in first-seen order with empty ids dropped.
func NormalizeMembers(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func contains(ids []string, id string) bool {
	if id == "" {
		return false
	}
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
