package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vhvplatform/go-hotel-notification-service/internal/domain"
	"github.com/vhvplatform/go-hotel-notification-service/internal/shared/mongodb"
)

const templatesCollection = "notification_templates"

// maxTemplateSize bounds the combined subject, html and text of a template
const maxTemplateSize = 1024 * 1024

// ErrTemplateTooLarge is returned for templates above maxTemplateSize
var ErrTemplateTooLarge = errors.New("template size exceeds maximum allowed size")

func templateSize(t *domain.Template) int {
	return len(t.Subject) + len(t.HTML) + len(t.Text)
}

// TemplateRepository handles template data operations
type TemplateRepository struct {
	client *mongodb.MongoClient
}

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(client *mongodb.MongoClient) *TemplateRepository {
	return &TemplateRepository{client: client}
}

// EnsureIndexes creates necessary indexes for optimal query performance
func (r *TemplateRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "eventType", Value: 1}},
			Options: options.Index().SetName("event_type_idx").SetUnique(true),
		},
	}

	return r.client.CreateIndexes(ctx, templatesCollection, indexes)
}

// List returns every stored template; it feeds the in-memory template store at startup
func (r *TemplateRepository) List(ctx context.Context) ([]*domain.Template, error) {
	cursor, err := r.client.Collection(templatesCollection).Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	templates := []*domain.Template{}
	if err = cursor.All(ctx, &templates); err != nil {
		return nil, err
	}
	return templates, nil
}

// Upsert stores template under its event type
func (r *TemplateRepository) Upsert(ctx context.Context, template *domain.Template) error {
	if templateSize(template) > maxTemplateSize {
		return ErrTemplateTooLarge
	}
	template.UpdatedAt = time.Now()

	filter := bson.M{"eventType": template.EventType}
	opts := options.Replace().SetUpsert(true)
	if _, err := r.client.Collection(templatesCollection).ReplaceOne(ctx, filter, template, opts); err != nil {
		return err
	}
	return nil
}
