package repositories

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"marketplace-realtime/internal/models"
)

const (
	MessagesCollection = "messages"
	defaultPageSize    = 50
	maxPageSize        = 200
)

// MessageRepository abstracts message persistence.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg models.Message) (models.Message, error)
	GetMessage(ctx context.Context, messageID string) (models.Message, error)
	ListMessages(ctx context.Context, chatID string, before *time.Time, limit int64) ([]models.Message, error)
	MarkRead(ctx context.Context, chatID, userID string, at time.Time) (int64, error)
	CountUnread(ctx context.Context, chatID, userID string) (int64, error)
	UpdateReactions(ctx context.Context, messageID string, version int64, reactions []models.Reaction) error
	SoftDelete(ctx context.Context, messageID string) error
}

// MessageRepo is a MongoDB implementation of MessageRepository.
type MessageRepo struct {
	col *mongo.Collection
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *mongo.Database) *MessageRepo {
	return &MessageRepo{col: db.Collection(MessagesCollection)}
}

// CreateMessage inserts msg, assigning an id and timestamps when missing.
func (r *MessageRepo) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	if msg.ID.IsZero() {
		msg.ID = primitive.NewObjectID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	msg.UpdatedAt = msg.CreatedAt
	if msg.ReadBy == nil {
		msg.ReadBy = []models.ReadReceipt{}
	}
	if msg.Reactions == nil {
		msg.Reactions = []models.Reaction{}
	}
	if _, err := r.col.InsertOne(ctx, msg); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// GetMessage fetches a message by id.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	oid, err := parseObjectID(messageID)
	if err != nil {
		return models.Message{}, err
	}
	var msg models.Message
	err = r.col.FindOne(ctx, bson.M{"_id": oid}).Decode(&msg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// ListMessages returns up to limit messages created before the cursor,
// oldest first.
func (r *MessageRepo) ListMessages(ctx context.Context, chatID string, before *time.Time, limit int64) ([]models.Message, error) {
	oid, err := parseObjectID(chatID)
	if err != nil {
		return nil, err
	}
	limit = clampPage(limit)

	filter := bson.M{"chat": oid}
	if before != nil {
		filter["createdAt"] = bson.M{"$lt": before.UTC()}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(limit)

	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var msgs []models.Message
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// readByUser matches receipts of userID that carry a timestamp.
func readByUser(userID string) bson.M {
	return bson.M{"$elemMatch": bson.M{"user": userID, "readAt": bson.M{"$ne": nil}}}
}

// MarkRead clears legacy receipts of userID and adds a timestamped receipt to
// every message in the chat not sent by userID, in one ordered bulk write.
func (r *MessageRepo) MarkRead(ctx context.Context, chatID, userID string, at time.Time) (int64, error) {
	oid, err := parseObjectID(chatID)
	if err != nil {
		return 0, err
	}
	legacyDoc := bson.M{"user": userID, "readAt": nil}
	writes := []mongo.WriteModel{
		mongo.NewUpdateManyModel().
			SetFilter(bson.M{"chat": oid, "readBy": userID}).
			SetUpdate(bson.M{"$pull": bson.M{"readBy": userID}}),
		mongo.NewUpdateManyModel().
			SetFilter(bson.M{"chat": oid, "readBy": bson.M{"$elemMatch": legacyDoc}}).
			SetUpdate(bson.M{"$pull": bson.M{"readBy": legacyDoc}}),
		mongo.NewUpdateManyModel().
			SetFilter(bson.M{
				"chat":   oid,
				"sender": bson.M{"$ne": userID},
				"readBy": bson.M{"$not": readByUser(userID)},
			}).
			SetUpdate(bson.M{"$push": bson.M{"readBy": bson.M{"user": userID, "readAt": at.UTC()}}}),
	}
	res, err := r.col.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(true))
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// CountUnread counts non-deleted messages in the chat that userID has not read.
func (r *MessageRepo) CountUnread(ctx context.Context, chatID, userID string) (int64, error) {
	oid, err := parseObjectID(chatID)
	if err != nil {
		return 0, err
	}
	return r.col.CountDocuments(ctx, bson.M{
		"chat":          oid,
		"flags.deleted": bson.M{"$ne": true},
		"readBy":        bson.M{"$not": readByUser(userID)},
	})
}

// UpdateReactions replaces the reaction set if the stored version still
// matches, and bumps the version.
func (r *MessageRepo) UpdateReactions(ctx context.Context, messageID string, version int64, reactions []models.Reaction) error {
	oid, err := parseObjectID(messageID)
	if err != nil {
		return err
	}
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": oid, "version": version},
		bson.M{
			"$set": bson.M{"reactions": models.NormalizeReactions(reactions), "updatedAt": time.Now().UTC()},
			"$inc": bson.M{"version": 1},
		})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrVersionConflict
	}
	return nil
}

// SoftDelete scrubs content and flags the message as deleted.
func (r *MessageRepo) SoftDelete(ctx context.Context, messageID string) error {
	oid, err := parseObjectID(messageID)
	if err != nil {
		return err
	}
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{
		"$set": bson.M{
			"flags.deleted": true,
			"text":          "",
			"attachments":   bson.A{},
			"reactions":     bson.A{},
			"updatedAt":     time.Now().UTC(),
		},
		"$inc": bson.M{"version": 1},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrMessageNotFound
	}
	return nil
}

func clampPage(limit int64) int64 {
	if limit <= 0 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}
