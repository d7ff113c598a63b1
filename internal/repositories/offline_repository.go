package repositories

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"marketplace-realtime/internal/models"
)

const OfflineCollection = "offline_envelopes"

// OfflineRepository abstracts the durable offline queue.
type OfflineRepository interface {
	CreateEnvelope(ctx context.Context, env models.OfflineEnvelope) (models.OfflineEnvelope, error)
	ListUndelivered(ctx context.Context, recipientID string, now time.Time) ([]models.OfflineEnvelope, error)
	MarkDelivered(ctx context.Context, envelopeID string, at time.Time) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// OfflineRepo is a MongoDB implementation of OfflineRepository.
type OfflineRepo struct {
	col *mongo.Collection
}

// NewOfflineRepo constructs an OfflineRepo.
func NewOfflineRepo(db *mongo.Database) *OfflineRepo {
	return &OfflineRepo{col: db.Collection(OfflineCollection)}
}

func (r *OfflineRepo) CreateEnvelope(ctx context.Context, env models.OfflineEnvelope) (models.OfflineEnvelope, error) {
	env.ID = primitive.NewObjectID()
	if env.CreatedAt.IsZero() {
		env.CreatedAt = time.Now().UTC()
	}
	if _, err := r.col.InsertOne(ctx, env); err != nil {
		return models.OfflineEnvelope{}, err
	}
	return env, nil
}

// ListUndelivered returns pending, unexpired envelopes in creation order.
func (r *OfflineRepo) ListUndelivered(ctx context.Context, recipientID string, now time.Time) ([]models.OfflineEnvelope, error) {
	filter := bson.M{
		"recipient": recipientID,
		"delivered": false,
		"expiresAt": bson.M{"$gt": now.UTC()},
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var envs []models.OfflineEnvelope
	if err := cur.All(ctx, &envs); err != nil {
		return nil, err
	}
	return envs, nil
}

func (r *OfflineRepo) MarkDelivered(ctx context.Context, envelopeID string, at time.Time) error {
	oid, err := parseObjectID(envelopeID)
	if err != nil {
		return err
	}
	_, err = r.col.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{"delivered": true, "deliveredAt": at.UTC()}})
	return err
}

// DeleteExpired removes envelopes past expiresAt whatever their delivery
// state. The TTL index does the same lazily.
func (r *OfflineRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.col.DeleteMany(ctx, bson.M{"expiresAt": bson.M{"$lte": now.UTC()}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
