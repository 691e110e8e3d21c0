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

const rulesCollection = "notification_rules"

// RuleRepository handles notification rule data operations
type RuleRepository struct {
	client *mongodb.MongoClient
}

// NewRuleRepository creates a new rule repository
func NewRuleRepository(client *mongodb.MongoClient) *RuleRepository {
	return &RuleRepository{client: client}
}

// EnsureIndexes creates necessary indexes for optimal query performance
func (r *RuleRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "organizationId", Value: 1},
				{Key: "eventType", Value: 1},
				{Key: "isActive", Value: 1},
			},
			Options: options.Index().SetName("org_event_active_idx"),
		},
		{
			Keys: bson.D{
				{Key: "organizationId", Value: 1},
				{Key: "name", Value: 1},
			},
			Options: options.Index().SetName("org_name_idx").SetUnique(true),
		},
	}

	return r.client.CreateIndexes(ctx, rulesCollection, indexes)
}

// Create creates a new rule
func (r *RuleRepository) Create(ctx context.Context, rule *domain.NotificationRule) error {
	rule.ID = primitive.NewObjectID()
	rule.CreatedAt = time.Now()
	rule.UpdatedAt = rule.CreatedAt

	_, err := r.client.Collection(rulesCollection).InsertOne(ctx, rule)
	return err
}

// FindByID finds a rule of an organization by ID
func (r *RuleRepository) FindByID(ctx context.Context, organizationID, id string) (*domain.NotificationRule, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}

	var rule domain.NotificationRule
	filter := bson.M{"_id": objectID, "organizationId": organizationID}
	if err := r.client.Collection(rulesCollection).FindOne(ctx, filter).Decode(&rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

// FindByOrganization lists every rule of an organization ordered by event type
func (r *RuleRepository) FindByOrganization(ctx context.Context, organizationID string) ([]*domain.NotificationRule, error) {
	opts := options.Find().SetSort(bson.D{{Key: "eventType", Value: 1}, {Key: "createdAt", Value: 1}})
	return r.find(ctx, bson.M{"organizationId": organizationID}, opts)
}

// FindByEventType returns the active rules of an organization for eventType in
// creation order, which is the order plans are built in.
func (r *RuleRepository) FindByEventType(ctx context.Context, organizationID string, eventType domain.EventType) ([]*domain.NotificationRule, error) {
	filter := bson.M{
		"organizationId": organizationID,
		"eventType":      eventType,
		"isActive":       true,
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	return r.find(ctx, filter, opts)
}

func (r *RuleRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*domain.NotificationRule, error) {
	cursor, err := r.client.Collection(rulesCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	rules := []*domain.NotificationRule{}
	if err = cursor.All(ctx, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// Update replaces a rule within its organization
func (r *RuleRepository) Update(ctx context.Context, rule *domain.NotificationRule) error {
	rule.UpdatedAt = time.Now()

	filter := bson.M{"_id": rule.ID, "organizationId": rule.OrganizationID}
	result, err := r.client.Collection(rulesCollection).ReplaceOne(ctx, filter, rule)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// Delete deletes a rule within its organization
func (r *RuleRepository) Delete(ctx context.Context, organizationID, id string) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	result, err := r.client.Collection(rulesCollection).DeleteOne(ctx, bson.M{"_id": objectID, "organizationId": organizationID})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// SeedDefaults inserts defaults for an organization that has no rules yet and
// returns how many were inserted. An organization with any rule is left as is.
// Inserts are upserts keyed by name so concurrent seeding cannot duplicate.
func (r *RuleRepository) SeedDefaults(ctx context.Context, organizationID string, defaults []*domain.NotificationRule) (int, error) {
	existing, err := r.client.Collection(rulesCollection).CountDocuments(ctx,
		bson.M{"organizationId": organizationID}, options.Count().SetLimit(1))
	if err != nil {
		return 0, err
	}
	if existing > 0 {
		return 0, nil
	}

	now := time.Now()
	models := make([]mongo.WriteModel, 0, len(defaults))
	for _, rule := range defaults {
		doc := *rule
		doc.ID = primitive.NewObjectID()
		doc.OrganizationID = organizationID
		doc.CreatedAt = now
		doc.UpdatedAt = now

		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"organizationId": organizationID, "name": doc.Name}).
			SetUpdate(bson.M{"$setOnInsert": doc}).
			SetUpsert(true))
	}
	if len(models) == 0 {
		return 0, nil
	}

	result, err := r.client.Collection(rulesCollection).BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return 0, err
	}
	return int(result.UpsertedCount), nil
}
