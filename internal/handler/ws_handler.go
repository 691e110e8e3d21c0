package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/vhvplatform/go-hotel-notification-service/internal/dispatcher"
	"github.com/vhvplatform/go-hotel-notification-service/internal/domain"
	"github.com/vhvplatform/go-hotel-notification-service/internal/middleware"
	"github.com/vhvplatform/go-hotel-notification-service/internal/registry"
	"github.com/vhvplatform/go-hotel-notification-service/internal/shared/errors"
	"github.com/vhvplatform/go-hotel-notification-service/internal/shared/logger"
)

const (
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	replayTimeout  = 10 * time.Second
)

// ConnectionManager tracks live websocket connections
type ConnectionManager interface {
	OpenConnection(ctx context.Context, userID string, scope domain.Scope, pusher registry.Pusher) string
	CloseConnection(id string)
	SetConnectionCleanup(id string, fn func()) bool
	Touch(id string) bool
}

// WSHandler upgrades in-app clients to websocket connections
type WSHandler struct {
	connections ConnectionManager
	upgrader    websocket.Upgrader
	log         *logger.Logger
}

// NewWSHandler creates a websocket handler. An empty allowedOrigins accepts any origin.
func NewWSHandler(connections ConnectionManager, allowedOrigins []string, log *logger.Logger) *WSHandler {
	if log == nil {
		log = logger.NewNop()
	}
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &WSHandler{
		connections: connections,
		log:         log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin]
			},
		},
	}
}

// RegisterRoutes mounts GET /ws on r
func (h *WSHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/ws", h.Serve)
}

// Serve upgrades the request and keeps the connection registered until the
// client goes away or the registry evicts it. The user is identified by the
// user_id query parameter; the scope comes from organization_id (or the
// X-Organization-ID header) and property_id.
func (h *WSHandler) Serve(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, errors.NewValidationError("user_id is required", nil))
		return
	}
	orgID := c.Query("organization_id")
	if orgID == "" {
		orgID = c.GetHeader(middleware.OrganizationIDHeader)
	}
	if orgID != "" && !middleware.ValidOrganizationID(orgID) {
		c.JSON(http.StatusBadRequest, errors.NewValidationError("invalid organization_id", nil))
		return
	}
	scope := domain.Scope{OrganizationID: orgID, PropertyID: c.Query("property_id")}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", "error", err, "user_id", userID)
		return
	}
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))

	pusher := dispatcher.NewWSPusher(conn)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), replayTimeout)
	id := h.connections.OpenConnection(ctx, userID, scope, pusher)
	cancel()

	defer h.connections.CloseConnection(id)

	done := make(chan struct{})
	if !h.connections.SetConnectionCleanup(id, func() {
		close(done)
		_ = pusher.Close()
	}) {
		// evicted during replay
		_ = pusher.Close()
		return
	}

	conn.SetPongHandler(func(string) error {
		h.connections.Touch(id)
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go h.pingLoop(pusher, done)

	h.log.Debug("Websocket connected", "connection_id", id, "user_id", userID, "organization_id", orgID)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("Websocket read failed", "connection_id", id, "error", err)
			}
			return
		}
		h.connections.Touch(id)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}

func (h *WSHandler) pingLoop(pusher *dispatcher.WSPusher, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := pusher.Ping(); err != nil {
				return
			}
		}
	}
}
