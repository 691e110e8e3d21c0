package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vhvplatform/go-hotel-notification-service/internal/domain"
	"github.com/vhvplatform/go-hotel-notification-service/internal/metrics"
	"github.com/vhvplatform/go-hotel-notification-service/internal/shared/logger"
)

// EventSubmitter dispatches the flushed summary events
type EventSubmitter interface {
	SubmitEvent(ctx context.Context, event domain.NotificationEvent) (*domain.SubmitResult, error)
}

type digestKey struct {
	organizationID string
	propertyID     string
}

// DigestScheduler buffers daily-summary events per organization and property
// and submits them as one daily-summary event on a cron schedule.
type DigestScheduler struct {
	cron     *cron.Cron
	schedule string
	service  EventSubmitter
	log      *logger.Logger

	mu      sync.Mutex
	buffer  map[digestKey][]domain.NotificationEvent
	entryID cron.EntryID
	started bool
}

// NewDigestScheduler creates a digest scheduler flushing on schedule (standard 5-field cron)
func NewDigestScheduler(service EventSubmitter, schedule string, log *logger.Logger) *DigestScheduler {
	if schedule == "" {
		schedule = "0 8 * * *"
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &DigestScheduler{
		cron:     cron.New(),
		schedule: schedule,
		service:  service,
		log:      log,
		buffer:   make(map[digestKey][]domain.NotificationEvent),
	}
}

// Start registers the flush job and starts the cron runner
func (s *DigestScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	entryID, err := s.cron.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		s.Flush(ctx)
	})
	if err != nil {
		return fmt.Errorf("invalid digest schedule %q: %w", s.schedule, err)
	}
	s.entryID = entryID
	s.cron.Start()
	s.started = true
	s.log.Info("Digest scheduler started", "schedule", s.schedule)
	return nil
}

// Stop stops the cron runner and waits for a running flush to finish.
// Buffered events are kept until the next Flush.
func (s *DigestScheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.cron.Remove(s.entryID)
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.log.Info("Digest scheduler stopped")
}

// Add buffers a daily-summary event. Other priorities are refused.
func (s *DigestScheduler) Add(event domain.NotificationEvent) bool {
	if event.Priority != domain.PriorityDailySummary {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := digestKey{organizationID: event.OrganizationID, propertyID: event.PropertyID}
	s.buffer[key] = append(s.buffer[key], event)
	metrics.DigestBuffered.Inc()
	return true
}

// Pending returns the number of buffered events
func (s *DigestScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, events := range s.buffer {
		n += len(events)
	}
	return n
}

// Flush submits one summary event per buffered (organization, property) and
// returns how many summaries were submitted.
func (s *DigestScheduler) Flush(ctx context.Context) int {
	s.mu.Lock()
	buffered := s.buffer
	s.buffer = make(map[digestKey][]domain.NotificationEvent)
	s.mu.Unlock()

	keys := make([]digestKey, 0, len(buffered))
	for k := range buffered {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].organizationID != keys[j].organizationID {
			return keys[i].organizationID < keys[j].organizationID
		}
		return keys[i].propertyID < keys[j].propertyID
	})

	submitted := 0
	for _, key := range keys {
		events := buffered[key]
		metrics.DigestBuffered.Sub(float64(len(events)))

		summary := Summarize(key.organizationID, key.propertyID, events)
		result, err := s.service.SubmitEvent(ctx, summary)
		if err != nil {
			s.log.Error("Failed to submit daily summary", "error", err,
				"organization_id", key.organizationID, "property_id", key.propertyID, "events", len(events))
			continue
		}
		submitted++
		s.log.Info("Daily summary submitted", "organization_id", key.organizationID,
			"property_id", key.propertyID, "events", len(events), "sent", result.Sent)
	}
	return submitted
}

// Summarize folds events into a single daily-summary event
func Summarize(organizationID, propertyID string, events []domain.NotificationEvent) domain.NotificationEvent {
	items := make([]string, 0, len(events))
	for _, e := range events {
		line := e.Subject
		if line == "" {
			line = e.Message
		}
		items = append(items, fmt.Sprintf("- [%s] %s", e.Type, line))
	}
	joined := strings.Join(items, "\n")

	return domain.NotificationEvent{
		Type:           domain.EventDailySummary,
		Priority:       domain.PriorityDailySummary,
		Subject:        fmt.Sprintf("Daily summary: %d notifications", len(events)),
		Message:        joined,
		OrganizationID: organizationID,
		PropertyID:     propertyID,
		Data: map[string]any{
			"summaryCount": len(events),
			"summaryItems": joined,
		},
	}
}
