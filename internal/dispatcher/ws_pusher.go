package dispatcher

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vhvplatform/go-hotel-notification-service/internal/domain"
)

const defaultWriteWait = 10 * time.Second

// WSPusher pushes messages to one websocket connection. gorilla connections
// allow a single concurrent writer, so writes are serialized.
type WSPusher struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewWSPusher wraps a websocket connection
func NewWSPusher(conn *websocket.Conn) *WSPusher {
	return &WSPusher{conn: conn}
}

// Push writes msg as JSON, bounded by the context deadline
func (p *WSPusher) Push(ctx context.Context, msg *domain.RealtimeMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultWriteWait)
	}
	if err := p.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return p.conn.WriteJSON(msg)
}

// Ping sends a websocket ping control frame
func (p *WSPusher) Ping() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
}

// Close sends a close frame and closes the connection
func (p *WSPusher) Close() error {
	p.mu.Lock()
	_ = p.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	p.mu.Unlock()
	return p.conn.Close()
}
