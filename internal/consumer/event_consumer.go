package consumer

import (
	"context"
	"time"

	"github.com/vhvplatform/go-hotel-notification-service/internal/metrics"
	"github.com/vhvplatform/go-hotel-notification-service/internal/shared/config"
	"github.com/vhvplatform/go-hotel-notification-service/internal/shared/logger"
	"github.com/vhvplatform/go-hotel-notification-service/internal/shared/rabbitmq"
)

const consumerTag = "hotel-notification-service"

// EventConsumer consumes business events from RabbitMQ
type EventConsumer struct {
	cfg   config.RabbitMQConfig
	queue EventQueue
	log   *logger.Logger
	dial  func(url string) (*rabbitmq.RabbitMQClient, error)
}

// NewEventConsumer creates a new event consumer
func NewEventConsumer(cfg config.RabbitMQConfig, queue EventQueue, log *logger.Logger) *EventConsumer {
	if log == nil {
		log = logger.NewNop()
	}
	return &EventConsumer{
		cfg:   cfg,
		queue: queue,
		log:   log,
		dial:  rabbitmq.NewRabbitMQClient,
	}
}

// Run consumes until ctx is cancelled, reconnecting with backoff when the
// broker connection drops.
func (c *EventConsumer) Run(ctx context.Context) {
	backoff := time.Second
	for {
		err := c.consume(ctx)
		if ctx.Err() != nil {
			c.log.Info("Event consumer stopped")
			return
		}
		metrics.ConsumerRestarts.WithLabelValues("rabbitmq").Inc()
		c.log.Warn("Event consumer interrupted, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (c *EventConsumer) consume(ctx context.Context) error {
	client, err := c.dial(c.cfg.URL)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.SetupTopicQueue(c.cfg.Exchange, c.cfg.Queue, c.cfg.RoutingKey, c.cfg.Prefetch); err != nil {
		c.log.Error("Failed to set up queue", "error", err)
		return err
	}

	messages, err := client.Consume(ctx, c.cfg.Queue, consumerTag)
	if err != nil {
		c.log.Error("Failed to start consuming", "error", err)
		return err
	}
	c.log.Info("Starting event consumer", "queue", c.cfg.Queue, "exchange", c.cfg.Exchange)

	for msg := range messages {
		ack, requeue := c.handle(msg.Body, msg.RoutingKey)
		if ack {
			_ = msg.Ack()
		} else {
			_ = msg.Nack(requeue)
		}
	}
	return nil
}

// handle decodes and enqueues one message. Malformed messages are dropped;
// a rejected enqueue is requeued for another consumer.
func (c *EventConsumer) handle(body []byte, routingKey string) (ack bool, requeue bool) {
	event, err := DecodeEvent(body, routingKey)
	if err != nil {
		c.log.Error("Failed to decode event", "error", err, "routing_key", routingKey)
		return false, false
	}

	id, err := c.queue.Enqueue(event)
	if err != nil {
		c.log.Error("Failed to enqueue event", "error", err, "type", event.Type)
		return false, true
	}
	c.log.Debug("Event accepted", "event_id", id, "type", event.Type, "routing_key", routingKey)
	return true, false
}
