package dlq

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vhvplatform/go-hotel-notification-service/internal/dispatcher"
	"github.com/vhvplatform/go-hotel-notification-service/internal/domain"
	"github.com/vhvplatform/go-hotel-notification-service/internal/metrics"
	apperrors "github.com/vhvplatform/go-hotel-notification-service/internal/shared/errors"
	"github.com/vhvplatform/go-hotel-notification-service/internal/shared/logger"
)

// MaxRetries is the number of manual retries allowed per failed delivery
const MaxRetries = 3

// Store persists dead-lettered deliveries
type Store interface {
	Create(ctx context.Context, failed *domain.FailedDelivery) error
	FindByID(ctx context.Context, organizationID, id string) (*domain.FailedDelivery, error)
	FindAll(ctx context.Context, organizationID string, page, pageSize int) ([]*domain.FailedDelivery, int64, error)
	RecordRetry(ctx context.Context, id primitive.ObjectID, lastError string) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	Count(ctx context.Context) (int64, error)
}

// DeadLetterQueue handles failed email and sms deliveries
type DeadLetterQueue struct {
	store       Store
	dispatchers dispatcher.Set
	log         *logger.Logger
}

// NewDeadLetterQueue creates a new dead letter queue
func NewDeadLetterQueue(store Store, dispatchers dispatcher.Set, log *logger.Logger) *DeadLetterQueue {
	if log == nil {
		log = logger.NewNop()
	}
	return &DeadLetterQueue{
		store:       store,
		dispatchers: dispatchers,
		log:         log,
	}
}

// Add adds a failed delivery to the DLQ
func (q *DeadLetterQueue) Add(ctx context.Context, failed *domain.FailedDelivery) error {
	q.log.Warn("Adding delivery to DLQ", "event_id", failed.EventID, "channel", failed.Channel,
		"recipient_id", failed.RecipientID, "error", failed.Error)

	if err := q.store.Create(ctx, failed); err != nil {
		return err
	}
	metrics.DLQSize.Inc()
	return nil
}

// List pages the failed deliveries of an organization
func (q *DeadLetterQueue) List(ctx context.Context, organizationID string, page, pageSize int) ([]*domain.FailedDelivery, int64, error) {
	return q.store.FindAll(ctx, organizationID, page, pageSize)
}

// Retry re-sends a failed delivery on its original channel. It is removed
// from the DLQ on success; on failure its retry count grows.
func (q *DeadLetterQueue) Retry(ctx context.Context, organizationID, id string) (domain.DeliveryResult, error) {
	failed, err := q.store.FindByID(ctx, organizationID, id)
	if err != nil {
		return domain.DeliveryResult{}, apperrors.NewNotFoundError("failed delivery not found", err)
	}
	if failed.RetryCount >= MaxRetries {
		return domain.DeliveryResult{}, apperrors.NewValidationError(
			fmt.Sprintf("retry limit of %d reached", MaxRetries), nil)
	}

	disp, ok := q.dispatchers.Get(failed.Channel)
	if !ok {
		return domain.DeliveryResult{}, apperrors.NewConfigurationError(
			fmt.Sprintf("no dispatcher for channel %s", failed.Channel), nil)
	}

	q.log.Info("Retrying failed delivery", "id", id, "channel", failed.Channel, "attempt", failed.RetryCount+1)

	msg := failed.Message
	result := disp.Deliver(ctx, failed.Address, &msg)
	result.RecipientID = failed.RecipientID

	if !result.Success {
		if err := q.store.RecordRetry(ctx, failed.ID, result.Error); err != nil {
			q.log.Error("Failed to record retry", "id", id, "error", err)
		}
		return result, nil
	}

	if err := q.store.Delete(ctx, failed.ID); err != nil {
		return result, apperrors.NewInternalError("failed to remove delivery from DLQ", err)
	}
	metrics.DLQSize.Dec()
	return result, nil
}

// SyncSize sets the DLQ size gauge from the store
func (q *DeadLetterQueue) SyncSize(ctx context.Context) error {
	n, err := q.store.Count(ctx)
	if err != nil {
		return err
	}
	metrics.DLQSize.Set(float64(n))
	return nil
}
