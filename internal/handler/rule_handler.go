package handler

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/vhvplatform/go-hotel-notification-service/internal/domain"
	"github.com/vhvplatform/go-hotel-notification-service/internal/middleware"
	"github.com/vhvplatform/go-hotel-notification-service/internal/rules"
	"github.com/vhvplatform/go-hotel-notification-service/internal/shared/errors"
	"github.com/vhvplatform/go-hotel-notification-service/internal/shared/logger"
)

// RuleStore persists notification rules
type RuleStore interface {
	Create(ctx context.Context, rule *domain.NotificationRule) error
	FindByID(ctx context.Context, organizationID, id string) (*domain.NotificationRule, error)
	FindByOrganization(ctx context.Context, organizationID string) ([]*domain.NotificationRule, error)
	Update(ctx context.Context, rule *domain.NotificationRule) error
	Delete(ctx context.Context, organizationID, id string) error
	SeedDefaults(ctx context.Context, organizationID string, defaults []*domain.NotificationRule) (int, error)
}

// RuleHandler handles notification rule administration
type RuleHandler struct {
	store RuleStore
	log   *logger.Logger
}

// NewRuleHandler creates a new rule handler
func NewRuleHandler(store RuleStore, log *logger.Logger) *RuleHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &RuleHandler{store: store, log: log}
}

// RegisterRoutes mounts the rule routes on rg
func (h *RuleHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/rules", h.ListRules)
	rg.POST("/rules", h.CreateRule)
	rg.POST("/rules/seed", h.SeedRules)
	rg.GET("/rules/:id", h.GetRule)
	rg.PUT("/rules/:id", h.UpdateRule)
	rg.DELETE("/rules/:id", h.DeleteRule)
}

func notFoundOr(err error, message string) error {
	if stderrors.Is(err, mongo.ErrNoDocuments) || stderrors.Is(err, primitive.ErrInvalidHex) {
		return errors.NewNotFoundError(message, err)
	}
	return err
}

func (h *RuleHandler) bindRule(c *gin.Context) (*domain.NotificationRule, bool) {
	var rule domain.NotificationRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, errors.NewValidationError("Invalid request", err))
		return nil, false
	}
	if err := rules.ValidateRule(&rule); err != nil {
		c.JSON(http.StatusBadRequest, errors.NewValidationError(err.Error(), nil))
		return nil, false
	}
	rule.OrganizationID = middleware.MustGetOrganizationID(c)
	return &rule, true
}

// ListRules lists the organization's rules
func (h *RuleHandler) ListRules(c *gin.Context) {
	orgID := middleware.MustGetOrganizationID(c)

	list, err := h.store.FindByOrganization(c.Request.Context(), orgID)
	if err != nil {
		h.log.Error("Failed to list rules", "error", err, "organization_id", orgID)
		respondError(c, err, "Failed to list rules")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list, "total": len(list)})
}

// CreateRule stores a new rule
func (h *RuleHandler) CreateRule(c *gin.Context) {
	rule, ok := h.bindRule(c)
	if !ok {
		return
	}

	if err := h.store.Create(c.Request.Context(), rule); err != nil {
		h.log.Error("Failed to create rule", "error", err, "organization_id", rule.OrganizationID)
		respondError(c, err, "Failed to create rule")
		return
	}
	c.JSON(http.StatusCreated, rule)
}

// GetRule returns one rule
func (h *RuleHandler) GetRule(c *gin.Context) {
	orgID := middleware.MustGetOrganizationID(c)

	rule, err := h.store.FindByID(c.Request.Context(), orgID, c.Param("id"))
	if err != nil {
		respondError(c, notFoundOr(err, "Rule not found"), "Failed to get rule")
		return
	}
	c.JSON(http.StatusOK, rule)
}

// UpdateRule replaces a rule
func (h *RuleHandler) UpdateRule(c *gin.Context) {
	rule, ok := h.bindRule(c)
	if !ok {
		return
	}
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		respondError(c, errors.NewNotFoundError("Rule not found", err), "Failed to update rule")
		return
	}

	existing, err := h.store.FindByID(c.Request.Context(), rule.OrganizationID, id.Hex())
	if err != nil {
		respondError(c, notFoundOr(err, "Rule not found"), "Failed to update rule")
		return
	}
	rule.ID = id
	rule.CreatedAt = existing.CreatedAt

	if err := h.store.Update(c.Request.Context(), rule); err != nil {
		h.log.Error("Failed to update rule", "error", err, "id", id.Hex())
		respondError(c, notFoundOr(err, "Rule not found"), "Failed to update rule")
		return
	}
	c.JSON(http.StatusOK, rule)
}

// DeleteRule deletes a rule
func (h *RuleHandler) DeleteRule(c *gin.Context) {
	orgID := middleware.MustGetOrganizationID(c)

	if err := h.store.Delete(c.Request.Context(), orgID, c.Param("id")); err != nil {
		respondError(c, notFoundOr(err, "Rule not found"), "Failed to delete rule")
		return
	}
	c.Status(http.StatusNoContent)
}

// SeedRules inserts the default rule set; existing rules are left untouched
func (h *RuleHandler) SeedRules(c *gin.Context) {
	orgID := middleware.MustGetOrganizationID(c)

	inserted, err := h.store.SeedDefaults(c.Request.Context(), orgID, rules.DefaultRules(orgID))
	if err != nil {
		h.log.Error("Failed to seed rules", "error", err, "organization_id", orgID)
		respondError(c, err, "Failed to seed rules")
		return
	}
	h.log.Info("Seeded default rules", "organization_id", orgID, "inserted", inserted)
	c.JSON(http.StatusOK, gin.H{"inserted": inserted})
}
