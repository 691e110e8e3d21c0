package dlq

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/vhvplatform/go-hotel-notification-service/internal/dispatcher"
	"github.com/vhvplatform/go-hotel-notification-service/internal/domain"
	apperrors "github.com/vhvplatform/go-hotel-notification-service/internal/shared/errors"
)

type memoryStore struct {
	items map[primitive.ObjectID]*domain.FailedDelivery
}

func newMemoryStore() *memoryStore {
	return &memoryStore{items: make(map[primitive.ObjectID]*domain.FailedDelivery)}
}

func (m *memoryStore) Create(ctx context.Context, failed *domain.FailedDelivery) error {
	failed.ID = primitive.NewObjectID()
	m.items[failed.ID] = failed
	return nil
}

func (m *memoryStore) FindByID(ctx context.Context, organizationID, id string) (*domain.FailedDelivery, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}
	f, ok := m.items[oid]
	if !ok || f.OrganizationID != organizationID {
		return nil, mongo.ErrNoDocuments
	}
	return f, nil
}

func (m *memoryStore) FindAll(ctx context.Context, organizationID string, page, pageSize int) ([]*domain.FailedDelivery, int64, error) {
	var out []*domain.FailedDelivery
	for _, f := range m.items {
		if f.OrganizationID == organizationID {
			out = append(out, f)
		}
	}
	return out, int64(len(out)), nil
}

func (m *memoryStore) RecordRetry(ctx context.Context, id primitive.ObjectID, lastError string) error {
	m.items[id].RetryCount++
	m.items[id].Error = lastError
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	delete(m.items, id)
	return nil
}

func (m *memoryStore) Count(ctx context.Context) (int64, error) {
	return int64(len(m.items)), nil
}

type flakyEmail struct {
	err   error
	calls int
}

func (f *flakyEmail) Send(ctx context.Context, email *dispatcher.OutboundEmail) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "msg-1", nil
}

func failedEmail(org string) *domain.FailedDelivery {
	return &domain.FailedDelivery{
		EventID:        "evt-1",
		OrganizationID: org,
		RecipientID:    "u2",
		Channel:        domain.ChannelEmail,
		Address:        "u2@hotel.example",
		Message:        domain.RenderedMessage{Subject: "Payment failed", Text: "Card declined"},
		Error:          "550 mailbox unavailable",
	}
}

func newQueue(transport dispatcher.EmailTransport) (*DeadLetterQueue, *memoryStore) {
	store := newMemoryStore()
	set := dispatcher.NewSet(dispatcher.NewEmailDispatcher(transport, nil, dispatcher.EmailConfig{}, nil))
	return NewDeadLetterQueue(store, set, nil), store
}

func TestRetrySuccessRemovesEntry(t *testing.T) {
	email := &flakyEmail{}
	q, store := newQueue(email)
	ctx := context.Background()
	failed := failedEmail("org-1")
	require.NoError(t, q.Add(ctx, failed))

	res, err := q.Retry(ctx, "org-1", failed.ID.Hex())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "u2", res.RecipientID)
	assert.Empty(t, store.items)
}

func TestRetryFailureIncrementsCount(t *testing.T) {
	email := &flakyEmail{err: errors.New("still down")}
	q, store := newQueue(email)
	ctx := context.Background()
	failed := failedEmail("org-1")
	require.NoError(t, q.Add(ctx, failed))

	for i := 0; i < MaxRetries; i++ {
		res, err := q.Retry(ctx, "org-1", failed.ID.Hex())
		require.NoError(t, err)
		assert.False(t, res.Success)
	}
	assert.Equal(t, MaxRetries, store.items[failed.ID].RetryCount)

	_, err := q.Retry(ctx, "org-1", failed.ID.Hex())
	require.Error(t, err)
	assert.Equal(t, MaxRetries, email.calls, "no send once the retry limit is reached")
}

func TestRetryOtherOrganizationNotFound(t *testing.T) {
	q, _ := newQueue(&flakyEmail{})
	ctx := context.Background()
	failed := failedEmail("org-1")
	require.NoError(t, q.Add(ctx, failed))

	_, err := q.Retry(ctx, "org-2", failed.ID.Hex())
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeNotFound, appErr.Code)
}

func TestRetryUnknownChannel(t *testing.T) {
	q, _ := newQueue(&flakyEmail{})
	ctx := context.Background()
	failed := failedEmail("org-1")
	failed.Channel = domain.ChannelSMS
	require.NoError(t, q.Add(ctx, failed))

	_, err := q.Retry(ctx, "org-1", failed.ID.Hex())
	assert.Error(t, err)
}

func TestListAndSyncSize(t *testing.T) {
	q, _ := newQueue(&flakyEmail{})
	ctx := context.Background()
	require.NoError(t, q.Add(ctx, failedEmail("org-1")))
	require.NoError(t, q.Add(ctx, failedEmail("org-2")))

	items, total, err := q.List(ctx, "org-1", 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, items, 1)
	assert.NoError(t, q.SyncSize(ctx))
}
