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

const ChatsCollection = "chats"

// ChatRepository abstracts chat persistence.
type ChatRepository interface {
	CreateChat(ctx context.Context, chat models.Chat) (models.Chat, error)
	GetChat(ctx context.Context, chatID string) (models.Chat, error)
	FindMembers(ctx context.Context, chatID string) ([]string, error)
	ListMemberships(ctx context.Context, userID string) ([]models.ChatMembers, error)
	UpdateLastMessage(ctx context.Context, chatID string, messageID primitive.ObjectID, at time.Time) error
}

// ChatRepo is a MongoDB implementation of ChatRepository.
type ChatRepo struct {
	col *mongo.Collection
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *mongo.Database) *ChatRepo {
	return &ChatRepo{col: db.Collection(ChatsCollection)}
}

// CreateChat stores a new chat with normalized members.
func (r *ChatRepo) CreateChat(ctx context.Context, chat models.Chat) (models.Chat, error) {
	chat.ID = primitive.NewObjectID()
	chat.Members = models.NormalizeMembers(chat.Members)
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = time.Now().UTC()
	}
	if _, err := r.col.InsertOne(ctx, chat); err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

// GetChat fetches a chat by id.
func (r *ChatRepo) GetChat(ctx context.Context, chatID string) (models.Chat, error) {
	oid, err := parseObjectID(chatID)
	if err != nil {
		return models.Chat{}, err
	}
	var chat models.Chat
	err = r.col.FindOne(ctx, bson.M{"_id": oid}).Decode(&chat)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}

// FindMembers returns only the member ids of a chat.
func (r *ChatRepo) FindMembers(ctx context.Context, chatID string) ([]string, error) {
	oid, err := parseObjectID(chatID)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Members []string `bson:"members"`
	}
	opts := options.FindOne().SetProjection(bson.M{"members": 1})
	err = r.col.FindOne(ctx, bson.M{"_id": oid}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.Members, nil
}

// ListMemberships returns every chat containing userID with its members.
func (r *ChatRepo) ListMemberships(ctx context.Context, userID string) ([]models.ChatMembers, error) {
	opts := options.Find().SetProjection(bson.M{"members": 1})
	cur, err := r.col.Find(ctx, bson.M{"members": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var result []models.ChatMembers
	for cur.Next(ctx) {
		var doc struct {
			ID      primitive.ObjectID `bson:"_id"`
			Members []string           `bson:"members"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		result = append(result, models.ChatMembers{ChatID: doc.ID.Hex(), Members: doc.Members})
	}
	return result, cur.Err()
}

// UpdateLastMessage moves the chat's last message pointer forward. An older
// message never overwrites a newer one.
func (r *ChatRepo) UpdateLastMessage(ctx context.Context, chatID string, messageID primitive.ObjectID, at time.Time) error {
	oid, err := parseObjectID(chatID)
	if err != nil {
		return err
	}
	filter := bson.M{
		"_id": oid,
		"$or": bson.A{
			bson.M{"lastMessageAt": bson.M{"$exists": false}},
			bson.M{"lastMessageAt": bson.M{"$lte": at}},
		},
	}
	_, err = r.col.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"lastMessage": messageID, "lastMessageAt": at}})
	return err
}
