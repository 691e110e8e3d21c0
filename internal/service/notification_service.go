package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vhvplatform/go-hotel-notification-service/internal/dispatcher"
	"github.com/vhvplatform/go-hotel-notification-service/internal/domain"
	"github.com/vhvplatform/go-hotel-notification-service/internal/metrics"
	"github.com/vhvplatform/go-hotel-notification-service/internal/rules"
	apperrors "github.com/vhvplatform/go-hotel-notification-service/internal/shared/errors"
	"github.com/vhvplatform/go-hotel-notification-service/internal/shared/logger"
	"github.com/vhvplatform/go-hotel-notification-service/internal/templates"
)

// RuleSource loads the rules of an organization
type RuleSource interface {
	FindByEventType(ctx context.Context, organizationID string, eventType domain.EventType) ([]*domain.NotificationRule, error)
}

// RecipientDirectory resolves staff members holding a role
type RecipientDirectory interface {
	FindByRole(ctx context.Context, organizationID, propertyID string, role domain.Role) ([]domain.Recipient, error)
}

// DeliveryRecorder persists the audit trail of delivery attempts
type DeliveryRecorder interface {
	RecordMany(ctx context.Context, logs []*domain.DeliveryLog) error
}

// FailureSink receives failed email and sms deliveries
type FailureSink interface {
	Add(ctx context.Context, failed *domain.FailedDelivery) error
}

// Options tunes the orchestrator
type Options struct {
	Parallelism     int
	DeliveryTimeout time.Duration
}

// NotificationService accepts business events and drives them through
// planning, rendering, dispatch and recording.
type NotificationService struct {
	rules       RuleSource
	engine      *rules.Engine
	throttler   rules.Throttler
	directory   RecipientDirectory
	templates   *templates.Store
	dispatchers dispatcher.Set
	recorder    DeliveryRecorder
	failures    FailureSink
	opts        Options
	log         *logger.Logger
}

// NewNotificationService creates the orchestrator. recorder and failures may be nil.
func NewNotificationService(
	ruleSource RuleSource,
	engine *rules.Engine,
	throttler rules.Throttler,
	directory RecipientDirectory,
	store *templates.Store,
	dispatchers dispatcher.Set,
	recorder DeliveryRecorder,
	failures FailureSink,
	opts Options,
	log *logger.Logger,
) *NotificationService {
	if opts.Parallelism <= 0 {
		opts.Parallelism = 8
	}
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = 30 * time.Second
	}
	if throttler == nil {
		throttler = rules.NewMemoryThrottler()
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &NotificationService{
		rules:       ruleSource,
		engine:      engine,
		throttler:   throttler,
		directory:   directory,
		templates:   store,
		dispatchers: dispatchers,
		recorder:    recorder,
		failures:    failures,
		opts:        opts,
		log:         log,
	}
}

// delivery is one (recipient, channel) attempt of an event
type delivery struct {
	entry     rules.PlanEntry
	recipient domain.Recipient
	message   *domain.RenderedMessage
}

// SubmitEvent plans, renders and dispatches event. Individual delivery
// failures are reported in the result; an error is returned only when the
// rule set cannot be loaded or no recipient could be resolved at all.
func (s *NotificationService) SubmitEvent(ctx context.Context, event domain.NotificationEvent) (*domain.SubmitResult, error) {
	if event.Type == "" {
		return nil, apperrors.NewValidationError("event type is required", nil)
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	if event.Priority == "" {
		event.Priority = domain.PriorityNormal
	} else if !event.Priority.Valid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown priority %q", event.Priority), nil)
	}

	start := time.Now()
	defer func() {
		metrics.DispatchDuration.WithLabelValues(string(event.Type)).Observe(time.Since(start).Seconds())
	}()

	log := s.log.With("event_id", event.ID, "event_type", event.Type, "organization_id", event.OrganizationID)

	ruleSet, err := s.rules.FindByEventType(ctx, event.OrganizationID, event.Type)
	if err != nil {
		log.Error("Failed to load notification rules", "error", err)
		return nil, apperrors.NewUnavailableError("failed to load notification rules",
			fmt.Errorf("%w: %v", apperrors.ErrRulesUnavailable, err))
	}

	plan := s.engine.Plan(event.Type, ruleSet)
	result := &domain.SubmitResult{
		EventID:         event.ID,
		Outcome:         domain.OutcomeDispatched,
		DeliveryResults: []domain.DeliveryResult{},
	}
	if plan.Empty() {
		metrics.EventsUnrouted.WithLabelValues(string(event.Type)).Inc()
		log.Info("No rule configured for event")
		result.Outcome = domain.OutcomeNoRuleConfigured
		return result, nil
	}

	deliveries, throttled, err := s.expand(ctx, &event, plan, log)
	if err != nil {
		return nil, err
	}
	result.Throttled = throttled

	results := s.dispatch(ctx, deliveries)
	for i, res := range results {
		if res.Success {
			result.Sent++
		} else {
			result.Failed++
		}
		metrics.DeliveriesTotal.WithLabelValues(string(res.Channel), event.OrganizationID, deliveryStatus(res)).Inc()
		s.recordFailure(ctx, &event, deliveries[i], res, log)
	}
	result.DeliveryResults = results
	s.recordLogs(ctx, &event, deliveries, results, log)

	log.Info("Event dispatched", "sent", result.Sent, "failed", result.Failed, "throttled", result.Throttled)
	return result, nil
}

// expand resolves recipients and renders one message per planned delivery.
// The first rule targeting a (recipient, channel) pair wins within an event.
func (s *NotificationService) expand(ctx context.Context, event *domain.NotificationEvent, plan rules.Plan, log *logger.Logger) ([]delivery, int, error) {
	byRole := make(map[domain.Role][]domain.Recipient)
	var lookups, lookupErrors int
	for _, role := range plan.Roles() {
		lookups++
		recipients, err := s.directory.FindByRole(ctx, event.OrganizationID, event.PropertyID, role)
		if err != nil {
			lookupErrors++
			log.Error("Failed to resolve recipients", "role", role, "error", err)
			continue
		}
		byRole[role] = recipients
	}
	if lookups > 0 && lookupErrors == lookups {
		return nil, 0, apperrors.NewUnavailableError("failed to resolve recipients", apperrors.ErrNoRecipients)
	}

	var (
		deliveries []delivery
		throttled  int
		planned    = make(map[string]bool)
		throttle   = make(map[string]bool)
		rendered   = make(map[string]*domain.RenderedMessage)
	)
	for _, entry := range plan.Entries {
		for _, recipient := range byRole[entry.Role] {
			pairKey := recipient.UserID + "|" + string(entry.Channel)
			if planned[pairKey] {
				continue
			}
			if !s.allow(ctx, entry, recipient, throttle, log) {
				throttled++
				metrics.DeliveriesTotal.WithLabelValues(string(entry.Channel), event.OrganizationID, "throttled").Inc()
				continue
			}
			planned[pairKey] = true

			priority := effectivePriority(entry, event)
			renderKey := string(entry.TemplateKey) + "|" + string(priority) + "|" + recipient.UserID
			msg, ok := rendered[renderKey]
			if !ok {
				msg = s.render(event, entry.TemplateKey, priority, recipient)
				rendered[renderKey] = msg
			}
			deliveries = append(deliveries, delivery{entry: entry, recipient: recipient, message: msg})
		}
	}
	return deliveries, throttled, nil
}

// allow applies the rule throttle once per (rule, recipient) per event
func (s *NotificationService) allow(ctx context.Context, entry rules.PlanEntry, recipient domain.Recipient, decided map[string]bool, log *logger.Logger) bool {
	if entry.Throttle == nil || entry.Throttle.MinInterval <= 0 || entry.RuleID == "" {
		return true
	}
	key := rules.ThrottleKey(entry.RuleID, recipient.UserID)
	if ok, seen := decided[key]; seen {
		return ok
	}
	ok, err := s.throttler.Allow(ctx, key, entry.Throttle.MinInterval)
	if err != nil {
		log.Warn("Throttle check failed, allowing delivery", "rule_id", entry.RuleID, "recipient_id", recipient.UserID, "error", err)
		ok = true
	}
	decided[key] = ok
	return ok
}

func effectivePriority(entry rules.PlanEntry, event *domain.NotificationEvent) domain.Priority {
	if entry.Priority != "" {
		return entry.Priority
	}
	return event.Priority
}

func (s *NotificationService) render(event *domain.NotificationEvent, templateKey domain.EventType, priority domain.Priority, recipient domain.Recipient) *domain.RenderedMessage {
	data := make(map[string]any, len(event.Data)+6)
	data["subject"] = event.Subject
	data["message"] = event.Message
	data["recipientName"] = recipient.Name
	data["recipientRole"] = string(recipient.Role)
	data["organizationId"] = event.OrganizationID
	data["propertyId"] = event.PropertyID
	for k, v := range event.Data {
		data[k] = v
	}

	out := s.templates.Render(templateKey, data)
	return &domain.RenderedMessage{
		EventID:        event.ID,
		EventType:      event.Type,
		Priority:       priority,
		Subject:        out.Subject,
		HTML:           out.HTML,
		Text:           out.Text,
		Data:           event.Data,
		OrganizationID: event.OrganizationID,
		PropertyID:     event.PropertyID,
		CreatedAt:      event.CreatedAt,
	}
}

// dispatch runs every delivery independently with bounded concurrency
func (s *NotificationService) dispatch(ctx context.Context, deliveries []delivery) []domain.DeliveryResult {
	results := make([]domain.DeliveryResult, len(deliveries))
	g := new(errgroup.Group)
	g.SetLimit(s.opts.Parallelism)
	for i, d := range deliveries {
		g.Go(func() error {
			results[i] = s.deliverOne(ctx, d)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *NotificationService) deliverOne(ctx context.Context, d delivery) (res domain.DeliveryResult) {
	ch := d.entry.Channel
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Dispatcher panicked", "channel", ch, "recipient_id", d.recipient.UserID, "panic", r)
			res = domain.DeliveryResult{Channel: ch, Success: false, Error: fmt.Sprintf("dispatcher panic: %v", r)}
		}
		res.RecipientID = d.recipient.UserID
		res.RuleID = d.entry.RuleID
		res.Channel = ch
	}()

	disp, ok := s.dispatchers.Get(ch)
	if !ok {
		return domain.DeliveryResult{Success: false, Error: fmt.Sprintf("no dispatcher for channel %s", ch)}
	}
	address := d.recipient.AddressFor(ch)
	if address == "" {
		return domain.DeliveryResult{Success: false, Error: fmt.Sprintf("recipient has no %s address", ch)}
	}

	dctx, cancel := context.WithTimeout(ctx, s.opts.DeliveryTimeout)
	defer cancel()
	return disp.Deliver(dctx, address, d.message)
}

func (s *NotificationService) recordFailure(ctx context.Context, event *domain.NotificationEvent, d delivery, res domain.DeliveryResult, log *logger.Logger) {
	if res.Success || s.failures == nil || res.Address == "" {
		return
	}
	if res.Channel != domain.ChannelEmail && res.Channel != domain.ChannelSMS {
		return
	}
	err := s.failures.Add(context.WithoutCancel(ctx), &domain.FailedDelivery{
		EventID:        event.ID,
		OrganizationID: event.OrganizationID,
		RecipientID:    d.recipient.UserID,
		Channel:        res.Channel,
		Address:        res.Address,
		Message:        *d.message,
		Error:          res.Error,
		FailedAt:       time.Now(),
	})
	if err != nil {
		log.Error("Failed to add delivery to DLQ", "recipient_id", d.recipient.UserID, "error", err)
	}
}

func (s *NotificationService) recordLogs(ctx context.Context, event *domain.NotificationEvent, deliveries []delivery, results []domain.DeliveryResult, log *logger.Logger) {
	if s.recorder == nil || len(results) == 0 {
		return
	}
	now := time.Now()
	logs := make([]*domain.DeliveryLog, len(results))
	for i, res := range results {
		logs[i] = &domain.DeliveryLog{
			EventID:        event.ID,
			EventType:      event.Type,
			OrganizationID: event.OrganizationID,
			PropertyID:     event.PropertyID,
			RuleID:         res.RuleID,
			RecipientID:    res.RecipientID,
			Channel:        res.Channel,
			Address:        res.Address,
			Priority:       deliveries[i].message.Priority,
			Subject:        deliveries[i].message.Subject,
			Success:        res.Success,
			Queued:         res.Queued,
			MessageID:      res.MessageID,
			Error:          res.Error,
			CreatedAt:      now,
		}
	}
	if err := s.recorder.RecordMany(context.WithoutCancel(ctx), logs); err != nil {
		log.Error("Failed to record delivery logs", "error", err)
	}
}

func deliveryStatus(res domain.DeliveryResult) string {
	switch {
	case !res.Success:
		return "failed"
	case res.Queued:
		return "queued"
	default:
		return "sent"
	}
}
