package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestChatTypeFromMembers(t *testing.T) {
	assert.Equal(t, ChatTypeDirect, Chat{Members: []string{"a", "b"}}.Type())
	assert.Equal(t, ChatTypeGroup, Chat{Members: []string{"a", "b", "c"}}.Type())
}

func TestSendPermission(t *testing.T) {
	chat := Chat{
		Members:    []string{"owner", "admin", "member", "muted"},
		Admins:     []string{"admin"},
		CreatedBy:  "owner",
		MutedUsers: []string{"muted", "admin"},
		Settings:   DefaultChatSettings(),
	}

	ok, _ := chat.SendPermission("member", false)
	assert.True(t, ok)
	ok, reason := chat.SendPermission("stranger", false)
	assert.False(t, ok)
	assert.Equal(t, "not a chat member", reason)
	ok, _ = chat.SendPermission("muted", false)
	assert.False(t, ok)
	ok, _ = chat.SendPermission("admin", false)
	assert.True(t, ok, "admins are not restricted by mute")

	chat.Settings = ChatSettings{AllowMemberMessages: false, AllowFileUploads: false}
	ok, _ = chat.SendPermission("member", false)
	assert.False(t, ok)
	ok, _ = chat.SendPermission("owner", true)
	assert.True(t, ok)

	chat.Settings.AllowMemberMessages = true
	ok, _ = chat.SendPermission("member", false)
	assert.True(t, ok)
	ok, reason = chat.SendPermission("member", true)
	assert.False(t, ok)
	assert.Contains(t, reason, "file uploads")
}

func TestNormalizeMembers(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, NormalizeMembers([]string{"a", "", "b", "a", "c", "b"}))
	assert.Empty(t, NormalizeMembers(nil))
}

func TestAddAndRemoveReaction(t *testing.T) {
	var reactions []Reaction
	reactions, changed := AddReaction(reactions, "👍", "u1")
	require.True(t, changed)
	reactions, changed = AddReaction(reactions, "👍", "u2")
	require.True(t, changed)

	again, changed := AddReaction(reactions, "👍", "u1")
	assert.False(t, changed)
	assert.Equal(t, reactions, again)

	require.Len(t, reactions, 1)
	assert.Equal(t, 2, reactions[0].Count)
	assert.Equal(t, []string{"u1", "u2"}, reactions[0].Users)

	reactions, changed = RemoveReaction(reactions, "👍", "u1")
	require.True(t, changed)
	assert.Equal(t, 1, reactions[0].Count)

	_, changed = RemoveReaction(reactions, "❤️", "u2")
	assert.False(t, changed)

	reactions, changed = RemoveReaction(reactions, "👍", "u2")
	require.True(t, changed)
	assert.Empty(t, reactions)
}

func TestAddReactionDoesNotAliasInput(t *testing.T) {
	orig := []Reaction{{Emoji: "🔥", Users: []string{"u1"}, Count: 1}}
	_, _ = AddReaction(orig, "🔥", "u2")
	_, _ = RemoveReaction(orig, "🔥", "u1")
	assert.Equal(t, []string{"u1"}, orig[0].Users)
	assert.Equal(t, 1, orig[0].Count)
}

func TestNormalizeReactionsFixesCounts(t *testing.T) {
	got := NormalizeReactions([]Reaction{
		{Emoji: "👍", Users: []string{"u1", "u1", "u2"}, Count: 7},
		{Emoji: "😂", Users: nil, Count: 3},
	})
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Count)
	assert.Equal(t, []string{"u1", "u2"}, got[0].Users)
}

func TestIsAllowedReaction(t *testing.T) {
	assert.True(t, IsAllowedReaction("🎉"))
	assert.False(t, IsAllowedReaction("🦄"))
	assert.False(t, IsAllowedReaction(""))
}

func TestApplyReadReplacesLegacyReceipt(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	msg := Message{SenderID: "s", ReadBy: []ReadReceipt{{UserID: "s", ReadAt: at}, {UserID: "u1"}}}

	assert.False(t, msg.ReadByUser("u1"))
	assert.True(t, msg.ApplyRead("u1", at))
	assert.True(t, msg.ReadByUser("u1"))
	assert.Len(t, msg.ReadBy, 2)

	assert.False(t, msg.ApplyRead("u1", at.Add(time.Minute)), "second read is a no-op")
	assert.False(t, msg.ApplyRead("s", at), "sender never gets a second receipt")
}

func TestReadReceiptDecodesLegacyString(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	raw, err := bson.Marshal(bson.M{
		"readBy": bson.A{"u1", bson.M{"user": "u2", "readAt": at}},
	})
	require.NoError(t, err)

	var doc struct {
		ReadBy []ReadReceipt `bson:"readBy"`
	}
	require.NoError(t, bson.Unmarshal(raw, &doc))
	require.Len(t, doc.ReadBy, 2)

	assert.Equal(t, "u1", doc.ReadBy[0].UserID)
	assert.True(t, doc.ReadBy[0].Legacy())
	assert.Equal(t, "u2", doc.ReadBy[1].UserID)
	assert.True(t, doc.ReadBy[1].ReadAt.Equal(at))
}

func TestProjectMessageScrubsDeleted(t *testing.T) {
	msg := Message{
		ID:          primitive.NewObjectID(),
		ChatID:      primitive.NewObjectID(),
		SenderID:    "u1",
		Text:        "secret",
		Attachments: []Attachment{{URL: "https://cdn/x.png"}},
		ReadBy:      []ReadReceipt{{UserID: "legacy"}, {UserID: "u2", ReadAt: time.Now()}},
		Reactions:   []Reaction{{Emoji: "👍", Users: []string{"u2"}, Count: 1}},
	}

	live := ProjectMessage(msg)
	assert.Equal(t, "secret", live.Text)
	require.Len(t, live.ReadBy, 1)
	assert.Equal(t, "u2", live.ReadBy[0].UserID)

	msg.Flags.Deleted = true
	gone := ProjectMessage(msg)
	assert.True(t, gone.Deleted)
	assert.Empty(t, gone.Text)
	assert.Empty(t, gone.Attachments)
	assert.Empty(t, gone.Reactions)
	assert.Equal(t, msg.ID.Hex(), gone.ID)
}

func TestStatusAndKindValidation(t *testing.T) {
	assert.True(t, PresenceBusy.Valid())
	assert.False(t, PresenceStatus("sleeping").Valid())
	assert.True(t, EnvelopeNotification.Valid())
	assert.False(t, EnvelopeKind("push").Valid())
}
