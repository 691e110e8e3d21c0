package dispatcher

import (
	"context"

	"github.com/google/uuid"

	"github.com/vhvplatform/go-hotel-notification-service/internal/domain"
)

// Realtime is the part of the connection registry used for in-app delivery
type Realtime interface {
	SendToUser(ctx context.Context, userID string, msg *domain.RealtimeMessage) bool
	SendToOrganization(ctx context.Context, orgID string, msg *domain.RealtimeMessage) int
}

// RealtimeDispatcher delivers in-app notifications through the registry
type RealtimeDispatcher struct {
	registry Realtime
}

// NewRealtimeDispatcher creates an in-app dispatcher
func NewRealtimeDispatcher(registry Realtime) *RealtimeDispatcher {
	return &RealtimeDispatcher{registry: registry}
}

// Channel implements Dispatcher
func (d *RealtimeDispatcher) Channel() domain.Channel {
	return domain.ChannelInApp
}

// Deliver pushes to the user's live connections. A user with none gets the
// message queued for replay, which still counts as accepted.
func (d *RealtimeDispatcher) Deliver(ctx context.Context, userID string, msg *domain.RenderedMessage) domain.DeliveryResult {
	if userID == "" {
		return failed(domain.ChannelInApp, userID, "no user id")
	}
	id := uuid.NewString()
	live := d.registry.SendToUser(ctx, userID, msg.ToRealtime(id))
	return domain.DeliveryResult{
		Channel:   domain.ChannelInApp,
		Address:   userID,
		Success:   true,
		Queued:    !live,
		MessageID: id,
	}
}

// Broadcast pushes msg to every matching connection of orgID
func (d *RealtimeDispatcher) Broadcast(ctx context.Context, orgID string, msg *domain.RealtimeMessage) int {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Kind == "" {
		msg.Kind = "broadcast"
	}
	msg.OrganizationID = orgID
	return d.registry.SendToOrganization(ctx, orgID, msg)
}
