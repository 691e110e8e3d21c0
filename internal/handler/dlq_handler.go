package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vhvplatform/go-hotel-notification-service/internal/domain"
	"github.com/vhvplatform/go-hotel-notification-service/internal/middleware"
	"github.com/vhvplatform/go-hotel-notification-service/internal/shared/logger"
)

// DeadLetters lists and retries failed deliveries
type DeadLetters interface {
	List(ctx context.Context, organizationID string, page, pageSize int) ([]*domain.FailedDelivery, int64, error)
	Retry(ctx context.Context, organizationID, id string) (domain.DeliveryResult, error)
}

// DLQHandler handles dead letter queue operations
type DLQHandler struct {
	dlq DeadLetters
	log *logger.Logger
}

// NewDLQHandler creates a new DLQ handler
func NewDLQHandler(dlq DeadLetters, log *logger.Logger) *DLQHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &DLQHandler{dlq: dlq, log: log}
}

// RegisterRoutes mounts the DLQ routes on rg
func (h *DLQHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/dlq", h.GetFailedDeliveries)
	rg.POST("/dlq/:id/retry", h.RetryDelivery)
}

// GetFailedDeliveries retrieves failed deliveries from the DLQ
func (h *DLQHandler) GetFailedDeliveries(c *gin.Context) {
	orgID := middleware.MustGetOrganizationID(c)
	page, pageSize := pageParams(c)

	failed, total, err := h.dlq.List(c.Request.Context(), orgID, page, pageSize)
	if err != nil {
		h.log.Error("Failed to get failed deliveries", "error", err)
		respondError(c, err, "Failed to get failed deliveries")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      failed,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// RetryDelivery retries a failed delivery
func (h *DLQHandler) RetryDelivery(c *gin.Context) {
	orgID := middleware.MustGetOrganizationID(c)
	id := c.Param("id")

	result, err := h.dlq.Retry(c.Request.Context(), orgID, id)
	if err != nil {
		h.log.Error("Failed to retry delivery", "error", err, "id", id)
		respondError(c, err, "Failed to retry delivery")
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	c.JSON(status, result)
}
