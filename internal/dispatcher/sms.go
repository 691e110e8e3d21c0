package dispatcher

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/vhvplatform/go-hotel-notification-service/internal/domain"
	"github.com/vhvplatform/go-hotel-notification-service/internal/shared/logger"
	"github.com/vhvplatform/go-hotel-notification-service/internal/templates"
)

const maxSMSLength = 480

// SMSTransport sends one text message and returns the provider message id
type SMSTransport interface {
	Send(ctx context.Context, to, body string) (string, error)
}

// SMSDispatcher hands rendered messages to an optional SMS transport
type SMSDispatcher struct {
	transport SMSTransport
	log       *logger.Logger
}

// NewSMSDispatcher creates an SMS dispatcher; a nil transport fails every delivery cleanly
func NewSMSDispatcher(transport SMSTransport, log *logger.Logger) *SMSDispatcher {
	if log == nil {
		log = logger.NewNop()
	}
	return &SMSDispatcher{transport: transport, log: log}
}

// Channel implements Dispatcher
func (d *SMSDispatcher) Channel() domain.Channel {
	return domain.ChannelSMS
}

// Deliver implements Dispatcher
func (d *SMSDispatcher) Deliver(ctx context.Context, phone string, msg *domain.RenderedMessage) domain.DeliveryResult {
	if d.transport == nil {
		return failed(domain.ChannelSMS, phone, "sms transport not configured")
	}
	if strings.TrimSpace(phone) == "" {
		return failed(domain.ChannelSMS, phone, "no phone number")
	}

	id, err := d.transport.Send(ctx, phone, smsBody(msg))
	if err != nil {
		d.log.Error("Failed to send SMS", "phone", phone, "event_id", msg.EventID, "error", err)
		return failed(domain.ChannelSMS, phone, err.Error())
	}
	return domain.DeliveryResult{Channel: domain.ChannelSMS, Address: phone, Success: true, MessageID: id}
}

func smsBody(msg *domain.RenderedMessage) string {
	body := templates.DecorateSubject(msg.Priority, msg.Subject)
	if msg.Text != "" {
		body += ": " + msg.Text
	}
	if r := []rune(body); len(r) > maxSMSLength {
		body = string(r[:maxSMSLength-3]) + "..."
	}
	return body
}

// LogSMSTransport writes messages to the log instead of a provider
type LogSMSTransport struct {
	from string
	log  *logger.Logger
}

// NewLogSMSTransport creates the logging SMS transport
func NewLogSMSTransport(from string, log *logger.Logger) *LogSMSTransport {
	return &LogSMSTransport{from: from, log: log}
}

// Send implements SMSTransport
func (t *LogSMSTransport) Send(ctx context.Context, to, body string) (string, error) {
	id := uuid.NewString()
	t.log.Info("SMS", "id", id, "from", t.from, "to", to, "body", body)
	return id, nil
}
