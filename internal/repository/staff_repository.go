package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vhvplatform/go-hotel-notification-service/internal/domain"
	"github.com/vhvplatform/go-hotel-notification-service/internal/shared/mongodb"
)

const staffCollection = "staff"

// StaffRepository is the staff directory used to resolve rule roles to recipients
type StaffRepository struct {
	client *mongodb.MongoClient
}

// NewStaffRepository creates a new staff repository
func NewStaffRepository(client *mongodb.MongoClient) *StaffRepository {
	return &StaffRepository{client: client}
}

// EnsureIndexes creates necessary indexes for optimal query performance
func (r *StaffRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "organizationId", Value: 1},
				{Key: "role", Value: 1},
				{Key: "active", Value: 1},
			},
			Options: options.Index().SetName("org_role_active_idx"),
		},
		{
			Keys: bson.D{
				{Key: "organizationId", Value: 1},
				{Key: "userId", Value: 1},
			},
			Options: options.Index().SetName("org_user_idx").SetUnique(true),
		},
	}

	return r.client.CreateIndexes(ctx, staffCollection, indexes)
}

// FindByRole returns the active staff of an organization holding role. With a
// propertyID, staff bound to another property are excluded; staff without a
// property cover every property.
func (r *StaffRepository) FindByRole(ctx context.Context, organizationID, propertyID string, role domain.Role) ([]domain.Recipient, error) {
	cursor, err := r.client.Collection(staffCollection).Find(ctx, staffFilter(organizationID, propertyID, role),
		options.Find().SetSort(bson.D{{Key: "userId", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	recipients := []domain.Recipient{}
	if err = cursor.All(ctx, &recipients); err != nil {
		return nil, err
	}
	return recipients, nil
}

// Upsert creates or replaces a staff member keyed by organization and user id
func (r *StaffRepository) Upsert(ctx context.Context, recipient *domain.Recipient) error {
	filter := bson.M{"organizationId": recipient.OrganizationID, "userId": recipient.UserID}
	_, err := r.client.Collection(staffCollection).ReplaceOne(ctx, filter, recipient, options.Replace().SetUpsert(true))
	return err
}

func staffFilter(organizationID, propertyID string, role domain.Role) bson.M {
	filter := bson.M{
		"organizationId": organizationID,
		"role":           role,
		"active":         true,
	}
	if propertyID != "" {
		filter["$or"] = bson.A{
			bson.M{"propertyId": propertyID},
			bson.M{"propertyId": bson.M{"$exists": false}},
			bson.M{"propertyId": ""},
		}
	}
	return filter
}
