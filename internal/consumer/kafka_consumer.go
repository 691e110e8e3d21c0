package consumer

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/vhvplatform/go-hotel-notification-service/internal/metrics"
	"github.com/vhvplatform/go-hotel-notification-service/internal/shared/config"
	"github.com/vhvplatform/go-hotel-notification-service/internal/shared/logger"
)

// messageReader is the subset of *kafka.Reader the consumer uses
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer consumes business events from a Kafka topic within a consumer group
type KafkaConsumer struct {
	reader messageReader
	queue  EventQueue
	log    *logger.Logger
}

// NewKafkaConsumer creates a consumer group reader for cfg.Topic
func NewKafkaConsumer(cfg config.KafkaConfig, queue EventQueue, log *logger.Logger) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
		GroupID: cfg.GroupID,
	})
	return newKafkaConsumer(reader, queue, log)
}

func newKafkaConsumer(reader messageReader, queue EventQueue, log *logger.Logger) *KafkaConsumer {
	if log == nil {
		log = logger.NewNop()
	}
	return &KafkaConsumer{reader: reader, queue: queue, log: log}
}

// Run fetches and commits messages until ctx is cancelled. A message whose
// enqueue fails is retried after a pause and committed only once accepted.
func (c *KafkaConsumer) Run(ctx context.Context) {
	defer c.reader.Close()
	c.log.Info("Starting kafka consumer")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.log.Info("Kafka consumer stopped")
				return
			}
			metrics.ConsumerRestarts.WithLabelValues("kafka").Inc()
			c.log.Error("Failed to fetch message", "error", err)
			if !sleepCtx(ctx, time.Second) {
				return
			}
			continue
		}

		for !c.handle(msg) {
			if !sleepCtx(ctx, time.Second) {
				return
			}
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.log.Error("Failed to commit message", "error", err, "offset", msg.Offset)
		}
	}
}

// handle reports whether msg can be committed
func (c *KafkaConsumer) handle(msg kafka.Message) bool {
	event, err := DecodeEvent(msg.Value, string(msg.Key))
	if err != nil {
		c.log.Error("Dropping malformed event", "error", err, "partition", msg.Partition, "offset", msg.Offset)
		return true
	}
	if _, err := c.queue.Enqueue(event); err != nil {
		c.log.Error("Failed to enqueue event", "error", err, "type", event.Type)
		return false
	}
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
