package repository

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vhvplatform/go-hotel-notification-service/internal/domain"
	"github.com/vhvplatform/go-hotel-notification-service/internal/shared/mongodb"
)

const bouncesCollection = "email_bounces"

// BounceRepository handles email bounce data operations
type BounceRepository struct {
	client *mongodb.MongoClient
}

// NewBounceRepository creates a new bounce repository
func NewBounceRepository(client *mongodb.MongoClient) *BounceRepository {
	return &BounceRepository{client: client}
}

// EnsureIndexes creates necessary indexes for optimal query performance
func (r *BounceRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "email", Value: 1},
				{Key: "type", Value: 1},
				{Key: "timestamp", Value: -1},
			},
			Options: options.Index().SetName("email_type_timestamp_idx"),
		},
	}

	return r.client.CreateIndexes(ctx, bouncesCollection, indexes)
}

// Create creates a new bounce record. Addresses are stored lower-cased.
func (r *BounceRepository) Create(ctx context.Context, bounce *domain.EmailBounce) error {
	bounce.ID = primitive.NewObjectID()
	bounce.Email = strings.ToLower(bounce.Email)
	bounce.CreatedAt = time.Now()
	if bounce.Timestamp.IsZero() {
		bounce.Timestamp = bounce.CreatedAt
	}

	_, err := r.client.Collection(bouncesCollection).InsertOne(ctx, bounce)
	return err
}

// FindByEmail finds bounce records for an email address
func (r *BounceRepository) FindByEmail(ctx context.Context, email string) ([]*domain.EmailBounce, error) {
	return r.find(ctx, bson.M{"email": strings.ToLower(email)})
}

// FindRecentHardBounces finds hard bounces and complaints of an email recorded
// since the given time
func (r *BounceRepository) FindRecentHardBounces(ctx context.Context, email string, since time.Time) ([]*domain.EmailBounce, error) {
	return r.find(ctx, bson.M{
		"email":     strings.ToLower(email),
		"type":      bson.M{"$in": bson.A{"hard", "complaint"}},
		"timestamp": bson.M{"$gte": since},
	})
}

func (r *BounceRepository) find(ctx context.Context, filter bson.M) ([]*domain.EmailBounce, error) {
	cursor, err := r.client.Collection(bouncesCollection).Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var bounces []*domain.EmailBounce
	if err = cursor.All(ctx, &bounces); err != nil {
		return nil, err
	}
	return bounces, nil
}
