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

const failedDeliveriesCollection = "failed_deliveries"

// FailedDeliveryRepository handles dead-lettered deliveries
type FailedDeliveryRepository struct {
	client *mongodb.MongoClient
}

// NewFailedDeliveryRepository creates a new failed delivery repository
func NewFailedDeliveryRepository(client *mongodb.MongoClient) *FailedDeliveryRepository {
	return &FailedDeliveryRepository{client: client}
}

// EnsureIndexes creates necessary indexes for optimal query performance
func (r *FailedDeliveryRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "organizationId", Value: 1},
				{Key: "failedAt", Value: -1},
			},
			Options: options.Index().SetName("org_failed_at_idx"),
		},
	}

	return r.client.CreateIndexes(ctx, failedDeliveriesCollection, indexes)
}

// Create creates a new failed delivery record
func (r *FailedDeliveryRepository) Create(ctx context.Context, failed *domain.FailedDelivery) error {
	failed.ID = primitive.NewObjectID()
	if failed.FailedAt.IsZero() {
		failed.FailedAt = time.Now()
	}

	_, err := r.client.Collection(failedDeliveriesCollection).InsertOne(ctx, failed)
	return err
}

// FindByID finds a failed delivery of an organization by ID
func (r *FailedDeliveryRepository) FindByID(ctx context.Context, organizationID, id string) (*domain.FailedDelivery, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}

	var failed domain.FailedDelivery
	filter := bson.M{"_id": objectID, "organizationId": organizationID}
	if err := r.client.Collection(failedDeliveriesCollection).FindOne(ctx, filter).Decode(&failed); err != nil {
		return nil, err
	}
	return &failed, nil
}

// FindAll pages the failed deliveries of an organization, newest first
func (r *FailedDeliveryRepository) FindAll(ctx context.Context, organizationID string, page, pageSize int) ([]*domain.FailedDelivery, int64, error) {
	return findPage[domain.FailedDelivery](ctx, r.client.Collection(failedDeliveriesCollection),
		bson.M{"organizationId": organizationID}, "failedAt", page, pageSize)
}

// RecordRetry stores the outcome of a failed retry attempt
func (r *FailedDeliveryRepository) RecordRetry(ctx context.Context, id primitive.ObjectID, lastError string) error {
	update := bson.M{
		"$set": bson.M{"error": lastError, "failedAt": time.Now()},
		"$inc": bson.M{"retryCount": 1},
	}
	_, err := r.client.Collection(failedDeliveriesCollection).UpdateOne(ctx, bson.M{"_id": id}, update)
	return err
}

// Delete deletes a failed delivery by ID
func (r *FailedDeliveryRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	_, err := r.client.Collection(failedDeliveriesCollection).DeleteOne(ctx, bson.M{"_id": id})
	return err
}

// Count returns the total number of dead-lettered deliveries
func (r *FailedDeliveryRepository) Count(ctx context.Context) (int64, error) {
	return r.client.Collection(failedDeliveriesCollection).EstimatedDocumentCount(ctx)
}
