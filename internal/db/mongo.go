package db

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"marketplace-realtime/internal/repositories"
)

// ConnectMongo dials MongoDB and verifies the connection.
func ConnectMongo(ctx context.Context, uri, database string) (*mongo.Client, *mongo.Database, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	opts := options.Client().ApplyURI(uri).SetServerSelectionTimeout(10 * time.Second)
	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 10*time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}

	log.Printf("connected to mongo database=%s", database)
	return client, client.Database(database), nil
}

// EnsureIndexes creates the indexes the realtime queries rely on.
func EnsureIndexes(ctx context.Context, database *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		repositories.ChatsCollection: {
			{Keys: bson.D{{Key: "members", Value: 1}}, Options: options.Index().SetName("idx_members")},
		},
		repositories.MessagesCollection: {
			{
				Keys:    bson.D{{Key: "chat", Value: 1}, {Key: "createdAt", Value: -1}},
				Options: options.Index().SetName("idx_chat_created"),
			},
			{
				Keys:    bson.D{{Key: "chat", Value: 1}, {Key: "readBy.user", Value: 1}},
				Options: options.Index().SetName("idx_chat_read_by"),
			},
		},
		repositories.OfflineCollection: {
			{
				Keys:    bson.D{{Key: "recipient", Value: 1}, {Key: "delivered", Value: 1}, {Key: "createdAt", Value: 1}},
				Options: options.Index().SetName("idx_recipient_pending"),
			},
			{
				Keys:    bson.D{{Key: "expiresAt", Value: 1}},
				Options: options.Index().SetName("ttl_expires_at").SetExpireAfterSeconds(0),
			},
		},
	}

	for collection, models := range indexes {
		if _, err := database.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", collection, err)
		}
	}
	return nil
}
