package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vhvplatform/go-hotel-notification-service/internal/domain"
	"github.com/vhvplatform/go-hotel-notification-service/internal/shared/errors"
	"github.com/vhvplatform/go-hotel-notification-service/internal/shared/logger"
	"github.com/vhvplatform/go-hotel-notification-service/internal/templates"
)

// TemplateWriter persists templates
type TemplateWriter interface {
	Upsert(ctx context.Context, template *domain.Template) error
}

// TemplateHandler handles template administration
type TemplateHandler struct {
	store  *templates.Store
	writer TemplateWriter
	log    *logger.Logger
}

// NewTemplateHandler creates a new template handler. writer may be nil, in
// which case templates only live in memory.
func NewTemplateHandler(store *templates.Store, writer TemplateWriter, log *logger.Logger) *TemplateHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &TemplateHandler{store: store, writer: writer, log: log}
}

// RegisterRoutes mounts the template routes on rg
func (h *TemplateHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/templates/:eventType", h.GetTemplate)
	rg.PUT("/templates/:eventType", h.UpsertTemplate)
}

// GetTemplate returns the template used for an event type
func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	eventType := domain.EventType(c.Param("eventType"))
	c.JSON(http.StatusOK, gin.H{
		"template": h.store.Get(eventType),
		"default":  !h.store.Has(eventType),
	})
}

// UpsertTemplate replaces the template of an event type
func (h *TemplateHandler) UpsertTemplate(c *gin.Context) {
	var req domain.UpsertTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.NewValidationError("Invalid request", err))
		return
	}

	tmpl := &domain.Template{
		EventType: domain.EventType(c.Param("eventType")),
		Subject:   req.Subject,
		HTML:      req.HTML,
		Text:      req.Text,
		Variables: req.Variables,
	}
	if h.writer != nil {
		if err := h.writer.Upsert(c.Request.Context(), tmpl); err != nil {
			h.log.Error("Failed to store template", "error", err, "event_type", tmpl.EventType)
			respondError(c, err, "Failed to store template")
			return
		}
	}
	h.store.Register(*tmpl)

	c.JSON(http.StatusOK, tmpl)
}
