package dispatcher

import (
	"context"

	"github.com/vhvplatform/go-hotel-notification-service/internal/domain"
)

// Dispatcher delivers a rendered message over one channel. Failures are
// reported in the result, never as panics or errors.
type Dispatcher interface {
	Channel() domain.Channel
	Deliver(ctx context.Context, address string, msg *domain.RenderedMessage) domain.DeliveryResult
}

// Set indexes dispatchers by channel
type Set map[domain.Channel]Dispatcher

// NewSet builds a set from dispatchers, skipping nil entries
func NewSet(dispatchers ...Dispatcher) Set {
	s := make(Set)
	for _, d := range dispatchers {
		if d != nil {
			s[d.Channel()] = d
		}
	}
	return s
}

// Get returns the dispatcher of ch
func (s Set) Get(ch domain.Channel) (Dispatcher, bool) {
	d, ok := s[ch]
	return d, ok
}

func failed(ch domain.Channel, address, reason string) domain.DeliveryResult {
	return domain.DeliveryResult{Channel: ch, Address: address, Success: false, Error: reason}
}
