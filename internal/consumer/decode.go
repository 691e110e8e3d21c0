package consumer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vhvplatform/go-hotel-notification-service/internal/domain"
)

// EventQueue accepts decoded events for asynchronous dispatch
type EventQueue interface {
	Enqueue(event domain.NotificationEvent) (string, error)
}

// DecodeEvent parses a JSON business event. When the payload has no type the
// last segment of routingKey is used, so "event.payment-failure" routes a
// bare payload as a payment-failure.
func DecodeEvent(body []byte, routingKey string) (domain.NotificationEvent, error) {
	var event domain.NotificationEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return event, fmt.Errorf("invalid event payload: %w", err)
	}
	if event.Type == "" && routingKey != "" {
		if i := strings.LastIndex(routingKey, "."); i >= 0 {
			event.Type = domain.EventType(routingKey[i+1:])
		} else {
			event.Type = domain.EventType(routingKey)
		}
	}
	if event.Type == "" {
		return event, fmt.Errorf("event type is required")
	}
	if event.Priority != "" && !event.Priority.Valid() {
		return event, fmt.Errorf("unknown priority %q", event.Priority)
	}
	return event, nil
}
