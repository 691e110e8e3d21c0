package dispatcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/vhvplatform/go-hotel-notification-service/internal/domain"
	"github.com/vhvplatform/go-hotel-notification-service/internal/shared/logger"
	"github.com/vhvplatform/go-hotel-notification-service/internal/templates"
)

// OutboundEmail is what an email transport receives
type OutboundEmail struct {
	To      string
	Subject string
	HTML    string
	Text    string
	ReplyTo string
	Headers map[string]string
}

// EmailTransport sends one email and returns the provider message id
type EmailTransport interface {
	Send(ctx context.Context, email *OutboundEmail) (string, error)
}

// BounceChecker reports addresses that must not be mailed
type BounceChecker interface {
	IsBounced(ctx context.Context, email string) (bool, error)
}

// EmailConfig holds email dispatcher settings
type EmailConfig struct {
	ReplyTo      string
	BulkInterval time.Duration
}

// BulkResult aggregates a bulk send
type BulkResult struct {
	Sent    int                     `json:"sent"`
	Failed  int                     `json:"failed"`
	Results []domain.DeliveryResult `json:"results"`
}

// EmailDispatcher hands rendered messages to an email transport
type EmailDispatcher struct {
	transport EmailTransport
	bounces   BounceChecker
	config    EmailConfig
	limiter   *rate.Limiter
	log       *logger.Logger
}

// NewEmailDispatcher creates an email dispatcher. transport may be nil, in
// which case every delivery fails with a not-configured result.
func NewEmailDispatcher(transport EmailTransport, bounces BounceChecker, config EmailConfig, log *logger.Logger) *EmailDispatcher {
	if config.BulkInterval <= 0 {
		config.BulkInterval = 100 * time.Millisecond
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &EmailDispatcher{
		transport: transport,
		bounces:   bounces,
		config:    config,
		limiter:   rate.NewLimiter(rate.Every(config.BulkInterval), 1),
		log:       log,
	}
}

// Channel implements Dispatcher
func (d *EmailDispatcher) Channel() domain.Channel {
	return domain.ChannelEmail
}

// Deliver decorates the subject, wraps the html layout and sends
func (d *EmailDispatcher) Deliver(ctx context.Context, address string, msg *domain.RenderedMessage) domain.DeliveryResult {
	if d.transport == nil {
		return failed(domain.ChannelEmail, address, "email transport not configured")
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return failed(domain.ChannelEmail, address, "no email address")
	}

	if d.bounces != nil {
		bounced, err := d.bounces.IsBounced(ctx, address)
		if err != nil {
			d.log.Warn("Bounce check failed, sending anyway", "email", address, "error", err)
		} else if bounced {
			return failed(domain.ChannelEmail, address, "address suppressed after hard bounce")
		}
	}

	subject := templates.DecorateSubject(msg.Priority, msg.Subject)
	email := &OutboundEmail{
		To:      address,
		Subject: subject,
		HTML:    templates.WrapHTML(msg.Priority, subject, msg.HTML),
		Text:    msg.Text,
		ReplyTo: d.config.ReplyTo,
		Headers: trackingHeaders(msg),
	}

	id, err := d.transport.Send(ctx, email)
	if err != nil {
		d.log.Error("Failed to send email", "email", address, "event_id", msg.EventID, "error", err)
		return failed(domain.ChannelEmail, address, err.Error())
	}
	return domain.DeliveryResult{
		Channel:   domain.ChannelEmail,
		Address:   address,
		Success:   true,
		MessageID: id,
	}
}

// SendBulk delivers msg to every address, pacing sends by the bulk interval
func (d *EmailDispatcher) SendBulk(ctx context.Context, addresses []string, msg *domain.RenderedMessage) BulkResult {
	result := BulkResult{Results: make([]domain.DeliveryResult, 0, len(addresses))}
	for _, addr := range addresses {
		var res domain.DeliveryResult
		if err := d.limiter.Wait(ctx); err != nil {
			res = failed(domain.ChannelEmail, addr, fmt.Sprintf("bulk send aborted: %v", err))
		} else {
			res = d.Deliver(ctx, addr, msg)
		}
		if res.Success {
			result.Sent++
		} else {
			result.Failed++
		}
		result.Results = append(result.Results, res)
	}
	d.log.Info("Bulk email finished", "sent", result.Sent, "failed", result.Failed)
	return result
}

func trackingHeaders(msg *domain.RenderedMessage) map[string]string {
	h := map[string]string{
		"X-Notification-ID":   uuid.NewString(),
		"X-Notification-Type": string(msg.EventType),
	}
	if msg.EventID != "" {
		h["X-Event-ID"] = msg.EventID
	}
	if msg.OrganizationID != "" {
		h["X-Organization-ID"] = msg.OrganizationID
	}
	if msg.Priority == domain.PriorityImmediate {
		h["X-Priority"] = "1"
		h["Importance"] = "high"
	}
	return h
}
