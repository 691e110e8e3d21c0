package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vhvplatform/go-hotel-notification-service/internal/domain"
	"github.com/vhvplatform/go-hotel-notification-service/internal/middleware"
	"github.com/vhvplatform/go-hotel-notification-service/internal/shared/errors"
	"github.com/vhvplatform/go-hotel-notification-service/internal/shared/logger"
)

// Broadcaster pushes a message to the live connections of an organization
type Broadcaster interface {
	Broadcast(ctx context.Context, orgID string, msg *domain.RealtimeMessage) int
}

// StatsProvider reports live connection counts
type StatsProvider interface {
	GetStats() domain.RegistryStats
}

// PendingCounter counts the queued messages a user has not received yet
type PendingCounter interface {
	CountPending(ctx context.Context, orgID, userID string) (int64, error)
}

// RealtimeHandler exposes registry statistics and organization broadcasts
type RealtimeHandler struct {
	broadcaster Broadcaster
	stats       StatsProvider
	pending     PendingCounter
	log         *logger.Logger
}

// NewRealtimeHandler creates a new realtime handler
func NewRealtimeHandler(broadcaster Broadcaster, stats StatsProvider, pending PendingCounter, log *logger.Logger) *RealtimeHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &RealtimeHandler{broadcaster: broadcaster, stats: stats, pending: pending, log: log}
}

// RegisterRoutes mounts the realtime routes on rg
func (h *RealtimeHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/realtime/stats", h.GetStats)
	rg.GET("/realtime/pending/:userId", h.GetPending)
	rg.POST("/realtime/broadcast", h.Broadcast)
}

// GetStats returns the registry statistics. Only the caller's organization
// appears in the per-organization breakdown.
func (h *RealtimeHandler) GetStats(c *gin.Context) {
	orgID := middleware.MustGetOrganizationID(c)
	stats := h.stats.GetStats()

	c.JSON(http.StatusOK, gin.H{
		"total_connections":        stats.TotalConnections,
		"active_users":             stats.ActiveUsers,
		"organization_connections": stats.ConnectionsByOrg[orgID],
	})
}

// GetPending returns how many queued messages wait for the user's next connection
func (h *RealtimeHandler) GetPending(c *gin.Context) {
	orgID := middleware.MustGetOrganizationID(c)
	userID := c.Param("userId")

	count, err := h.pending.CountPending(c.Request.Context(), orgID, userID)
	if err != nil {
		respondError(c, err, "Failed to count pending messages")
		return
	}

	c.JSON(http.StatusOK, gin.H{"user_id": userID, "pending": count})
}

// Broadcast pushes a message to every matching live connection of the organization
func (h *RealtimeHandler) Broadcast(c *gin.Context) {
	orgID := middleware.MustGetOrganizationID(c)

	var req domain.BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.NewValidationError("Invalid request", err))
		return
	}
	if req.Priority == "" {
		req.Priority = domain.PriorityNormal
	} else if !req.Priority.Valid() {
		c.JSON(http.StatusBadRequest, errors.NewValidationError("Unknown priority", nil))
		return
	}

	msg := &domain.RealtimeMessage{
		Priority:   req.Priority,
		Subject:    req.Subject,
		Text:       req.Text,
		Data:       req.Data,
		PropertyID: req.PropertyID,
		CreatedAt:  time.Now(),
	}
	delivered := h.broadcaster.Broadcast(c.Request.Context(), orgID, msg)
	h.log.Info("Broadcast sent", "organization_id", orgID, "property_id", req.PropertyID, "delivered", delivered)

	c.JSON(http.StatusOK, gin.H{"message_id": msg.ID, "delivered": delivered})
}
