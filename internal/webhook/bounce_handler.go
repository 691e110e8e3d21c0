package webhook

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vhvplatform/go-hotel-notification-service/internal/domain"
	"github.com/vhvplatform/go-hotel-notification-service/internal/metrics"
	"github.com/vhvplatform/go-hotel-notification-service/internal/shared/logger"
)

// BounceRecorder stores bounce records
type BounceRecorder interface {
	Create(ctx context.Context, bounce *domain.EmailBounce) error
}

// BounceHandler handles email bounce webhooks
type BounceHandler struct {
	repo BounceRecorder
	log  *logger.Logger
}

// BounceEvent represents a bounce event from an email provider
type BounceEvent struct {
	Type       string    `json:"type"` // bounce, complaint
	Email      string    `json:"email"`
	Timestamp  time.Time `json:"timestamp"`
	Reason     string    `json:"reason"`
	BounceType string    `json:"bounce_type"` // hard, soft
}

// NewBounceHandler creates a new bounce handler
func NewBounceHandler(repo BounceRecorder, log *logger.Logger) *BounceHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &BounceHandler{
		repo: repo,
		log:  log,
	}
}

// RegisterRoutes mounts the provider webhooks on rg
func (h *BounceHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/ses", h.HandleSESWebhook)
	rg.POST("/sendgrid", h.HandleSendGridWebhook)
}

// toBounce maps a provider event to a bounce record. Complaints suppress like
// hard bounces.
func toBounce(event BounceEvent) (*domain.EmailBounce, bool) {
	if strings.TrimSpace(event.Email) == "" {
		return nil, false
	}
	bounceType := strings.ToLower(event.BounceType)
	if strings.EqualFold(event.Type, "complaint") {
		bounceType = "complaint"
	}
	if bounceType == "" {
		bounceType = "soft"
	}
	return &domain.EmailBounce{
		Email:     strings.TrimSpace(event.Email),
		Type:      bounceType,
		Reason:    event.Reason,
		Timestamp: event.Timestamp,
	}, true
}

func (h *BounceHandler) record(ctx context.Context, event BounceEvent) error {
	bounce, ok := toBounce(event)
	if !ok {
		h.log.Warn("Ignoring bounce event without email", "type", event.Type)
		return nil
	}
	if err := h.repo.Create(ctx, bounce); err != nil {
		return err
	}
	metrics.EmailBounces.WithLabelValues(bounce.Type).Inc()
	return nil
}

// HandleSESWebhook handles AWS SES bounce webhooks
func (h *BounceHandler) HandleSESWebhook(c *gin.Context) {
	var event BounceEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		h.log.Error("Invalid bounce event", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	h.log.Info("Received bounce event", "email", event.Email, "type", event.Type)

	if err := h.record(c.Request.Context(), event); err != nil {
		h.log.Error("Failed to record bounce", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process bounce"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleSendGridWebhook handles SendGrid bounce webhooks
func (h *BounceHandler) HandleSendGridWebhook(c *gin.Context) {
	var events []BounceEvent
	if err := c.ShouldBindJSON(&events); err != nil {
		h.log.Error("Invalid SendGrid event", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	recorded := 0
	for _, event := range events {
		h.log.Info("Received SendGrid bounce event", "email", event.Email, "type", event.Type)
		if err := h.record(c.Request.Context(), event); err != nil {
			h.log.Error("Failed to record bounce", "error", err)
			continue
		}
		recorded++
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "recorded": recorded})
}
