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

const deliveryLogsCollection = "delivery_logs"

// DeliveryLogRepository stores the audit trail of delivery attempts
type DeliveryLogRepository struct {
	client *mongodb.MongoClient
}

// NewDeliveryLogRepository creates a new delivery log repository
func NewDeliveryLogRepository(client *mongodb.MongoClient) *DeliveryLogRepository {
	return &DeliveryLogRepository{client: client}
}

// EnsureIndexes creates necessary indexes for optimal query performance
func (r *DeliveryLogRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "organizationId", Value: 1},
				{Key: "createdAt", Value: -1},
			},
			Options: options.Index().SetName("org_created_idx"),
		},
		{
			Keys:    bson.D{{Key: "eventId", Value: 1}},
			Options: options.Index().SetName("event_id_idx"),
		},
	}

	return r.client.CreateIndexes(ctx, deliveryLogsCollection, indexes)
}

// RecordMany inserts the delivery attempts of one event
func (r *DeliveryLogRepository) RecordMany(ctx context.Context, logs []*domain.DeliveryLog) error {
	if len(logs) == 0 {
		return nil
	}
	docs := make([]interface{}, len(logs))
	for i, l := range logs {
		l.ID = primitive.NewObjectID()
		if l.CreatedAt.IsZero() {
			l.CreatedAt = time.Now()
		}
		docs[i] = l
	}

	_, err := r.client.Collection(deliveryLogsCollection).InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	return err
}

// FindByOrganization pages the delivery history of an organization, newest first
func (r *DeliveryLogRepository) FindByOrganization(ctx context.Context, organizationID string, req domain.ListDeliveriesRequest) ([]*domain.DeliveryLog, int64, error) {
	return findPage[domain.DeliveryLog](ctx, r.client.Collection(deliveryLogsCollection),
		deliveryFilter(organizationID, req), "createdAt", req.Page, req.PageSize)
}

// FindByEvent returns every attempt recorded for an event
func (r *DeliveryLogRepository) FindByEvent(ctx context.Context, organizationID, eventID string) ([]*domain.DeliveryLog, error) {
	filter := bson.M{"organizationId": organizationID, "eventId": eventID}
	cursor, err := r.client.Collection(deliveryLogsCollection).Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	logs := []*domain.DeliveryLog{}
	if err = cursor.All(ctx, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

func deliveryFilter(organizationID string, req domain.ListDeliveriesRequest) bson.M {
	filter := bson.M{"organizationId": organizationID}
	if req.EventType != "" {
		filter["eventType"] = req.EventType
	}
	if req.Channel != "" {
		filter["channel"] = req.Channel
	}
	return filter
}
