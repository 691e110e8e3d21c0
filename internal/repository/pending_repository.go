package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vhvplatform/go-hotel-notification-service/internal/domain"
	"github.com/vhvplatform/go-hotel-notification-service/internal/shared/mongodb"
)

const pendingCollection = "pending_notifications"

// deliveredRetention is how long delivered entries are kept before the TTL index removes them
const deliveredRetention = 7 * 24 * time.Hour

// PendingRepository is the durable queue of real-time messages for offline users
type PendingRepository struct {
	client *mongodb.MongoClient
}

// NewPendingRepository creates a new pending notification repository
func NewPendingRepository(client *mongodb.MongoClient) *PendingRepository {
	return &PendingRepository{client: client}
}

// EnsureIndexes creates necessary indexes for optimal query performance
func (r *PendingRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "userId", Value: 1},
				{Key: "delivered", Value: 1},
				{Key: "createdAt", Value: -1},
			},
			Options: options.Index().SetName("user_delivered_created_idx"),
		},
		{
			Keys: bson.D{{Key: "deliveredAt", Value: 1}},
			Options: options.Index().
				SetName("delivered_at_ttl_idx").
				SetSparse(true).
				SetExpireAfterSeconds(int32(deliveredRetention.Seconds())),
		},
	}

	return r.client.CreateIndexes(ctx, pendingCollection, indexes)
}

// Enqueue stores a message for later replay
func (r *PendingRepository) Enqueue(ctx context.Context, p *domain.PendingNotification) error {
	p.ID = primitive.NewObjectID()
	p.Delivered = false
	p.DeliveredAt = nil
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	_, err := r.client.Collection(pendingCollection).InsertOne(ctx, p)
	return err
}

// FetchPending returns the most recent limit undelivered entries of a user,
// oldest first.
func (r *PendingRepository) FetchPending(ctx context.Context, userID string, limit int) ([]*domain.PendingNotification, error) {
	filter := bson.M{"userId": userID, "delivered": false}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.client.Collection(pendingCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var items []*domain.PendingNotification
	if err = cursor.All(ctx, &items); err != nil {
		return nil, err
	}

	reverse(items)
	return items, nil
}

// MarkDelivered flags an entry as delivered; the TTL index removes it later
func (r *PendingRepository) MarkDelivered(ctx context.Context, id primitive.ObjectID) error {
	update := bson.M{"$set": bson.M{"delivered": true, "deliveredAt": time.Now()}}
	_, err := r.client.Collection(pendingCollection).UpdateOne(ctx, bson.M{"_id": id}, update)
	return err
}

// CountPending returns the number of undelivered entries of a user within an organization
func (r *PendingRepository) CountPending(ctx context.Context, orgID, userID string) (int64, error) {
	filter := bson.M{"organizationId": orgID, "userId": userID, "delivered": false}
	return r.client.Collection(pendingCollection).CountDocuments(ctx, filter)
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
