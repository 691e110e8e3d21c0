package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vhvplatform/go-hotel-notification-service/internal/domain"
	"github.com/vhvplatform/go-hotel-notification-service/internal/middleware"
	"github.com/vhvplatform/go-hotel-notification-service/internal/shared/errors"
	"github.com/vhvplatform/go-hotel-notification-service/internal/shared/logger"
)

// EventSubmitter dispatches an event synchronously
type EventSubmitter interface {
	SubmitEvent(ctx context.Context, event domain.NotificationEvent) (*domain.SubmitResult, error)
}

// EventQueue accepts an event for asynchronous dispatch
type EventQueue interface {
	Enqueue(event domain.NotificationEvent) (string, error)
	QueueSize() int
}

// DeliveryHistory pages the delivery log of an organization
type DeliveryHistory interface {
	FindByOrganization(ctx context.Context, organizationID string, req domain.ListDeliveriesRequest) ([]*domain.DeliveryLog, int64, error)
}

// NotificationHandler handles HTTP requests for events and their deliveries
type NotificationHandler struct {
	service EventSubmitter
	queue   EventQueue
	history DeliveryHistory
	log     *logger.Logger
}

// NewNotificationHandler creates a new notification handler. queue and history may be nil.
func NewNotificationHandler(service EventSubmitter, queue EventQueue, history DeliveryHistory, log *logger.Logger) *NotificationHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &NotificationHandler{
		service: service,
		queue:   queue,
		history: history,
		log:     log,
	}
}

// RegisterRoutes mounts the event and delivery routes on rg
func (h *NotificationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/events", h.SubmitEvent)
	rg.POST("/events/async", h.EnqueueEvent)
	rg.GET("/deliveries", h.ListDeliveries)
}

func (h *NotificationHandler) bindEvent(c *gin.Context) (domain.NotificationEvent, bool) {
	var req domain.SubmitEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.NewValidationError("Invalid request", err))
		return domain.NotificationEvent{}, false
	}
	return domain.NotificationEvent{
		Type:           req.Type,
		Priority:       req.Priority,
		Subject:        req.Subject,
		Message:        req.Message,
		Data:           req.Data,
		OrganizationID: middleware.MustGetOrganizationID(c),
		PropertyID:     req.PropertyID,
	}, true
}

// SubmitEvent dispatches an event and returns the per-delivery outcome
func (h *NotificationHandler) SubmitEvent(c *gin.Context) {
	event, ok := h.bindEvent(c)
	if !ok {
		return
	}

	result, err := h.service.SubmitEvent(c.Request.Context(), event)
	if err != nil {
		h.log.Error("Failed to submit event", "error", err, "type", event.Type, "organization_id", event.OrganizationID)
		respondError(c, err, "Failed to submit event")
		return
	}

	c.JSON(http.StatusOK, result)
}

// EnqueueEvent accepts an event for asynchronous dispatch
func (h *NotificationHandler) EnqueueEvent(c *gin.Context) {
	if h.queue == nil {
		c.JSON(http.StatusServiceUnavailable, errors.NewUnavailableError("Async dispatch is disabled", nil))
		return
	}
	event, ok := h.bindEvent(c)
	if !ok {
		return
	}

	id, err := h.queue.Enqueue(event)
	if err != nil {
		h.log.Error("Failed to enqueue event", "error", err, "type", event.Type)
		respondError(c, err, "Failed to enqueue event")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"event_id":   id,
		"queue_size": h.queue.QueueSize(),
	})
}

// ListDeliveries pages the delivery history of the organization
func (h *NotificationHandler) ListDeliveries(c *gin.Context) {
	orgID := middleware.MustGetOrganizationID(c)
	if h.history == nil {
		c.JSON(http.StatusServiceUnavailable, errors.NewUnavailableError("Delivery history is disabled", nil))
		return
	}

	var req domain.ListDeliveriesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.NewValidationError("Invalid request", err))
		return
	}
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 {
		req.PageSize = 20
	}

	logs, total, err := h.history.FindByOrganization(c.Request.Context(), orgID, req)
	if err != nil {
		h.log.Error("Failed to list deliveries", "error", err, "organization_id", orgID)
		respondError(c, err, "Failed to list deliveries")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      logs,
		"total":     total,
		"page":      req.Page,
		"page_size": req.PageSize,
	})
}
