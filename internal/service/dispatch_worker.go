package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vhvplatform/go-hotel-notification-service/internal/domain"
	"github.com/vhvplatform/go-hotel-notification-service/internal/metrics"
	"github.com/vhvplatform/go-hotel-notification-service/internal/queue"
	apperrors "github.com/vhvplatform/go-hotel-notification-service/internal/shared/errors"
	"github.com/vhvplatform/go-hotel-notification-service/internal/shared/logger"
)

// EventSubmitter is the synchronous entry point the workers call
type EventSubmitter interface {
	SubmitEvent(ctx context.Context, event domain.NotificationEvent) (*domain.SubmitResult, error)
}

// DigestBuffer holds daily-summary events until the next scheduled flush
type DigestBuffer interface {
	Add(event domain.NotificationEvent) bool
}

// DispatchWorker drains queued events by priority with a fixed pool of workers
type DispatchWorker struct {
	submitter EventSubmitter
	digest    DigestBuffer
	queue     *queue.PriorityQueue
	workers   int
	log       *logger.Logger
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewDispatchWorker creates the async dispatch pool. digest may be nil.
func NewDispatchWorker(submitter EventSubmitter, digest DigestBuffer, workers int, log *logger.Logger) *DispatchWorker {
	if workers <= 0 {
		workers = 5 // Default to 5 workers
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &DispatchWorker{
		submitter: submitter,
		digest:    digest,
		queue:     queue.NewPriorityQueue(),
		workers:   workers,
		log:       log,
	}
}

// Start starts the worker pool
func (w *DispatchWorker) Start() {
	w.startOnce.Do(func() {
		w.log.Info("Starting dispatch workers", "workers", w.workers)
		for i := 0; i < w.workers; i++ {
			w.wg.Add(1)
			go w.worker(i)
		}
	})
}

// Stop closes the queue and waits for workers to drain it
func (w *DispatchWorker) Stop() {
	w.stopOnce.Do(func() {
		w.queue.Close()
		w.wg.Wait()
		w.log.Info("Dispatch workers stopped")
	})
}

// worker processes jobs from the queue
func (w *DispatchWorker) worker(id int) {
	defer w.wg.Done()

	for {
		job := w.queue.Pop() // blocks until a job is available or the queue closes
		if job == nil {
			return
		}
		metrics.DispatchQueueSize.Set(float64(w.queue.Len()))

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		result, err := w.submitter.SubmitEvent(ctx, job.Event)
		cancel()
		if err != nil {
			w.log.Error("Failed to dispatch queued event", "error", err, "job_id", job.ID, "event_type", job.Event.Type, "worker_id", id)
			continue
		}
		w.log.Debug("Queued event dispatched", "job_id", job.ID, "outcome", result.Outcome,
			"sent", result.Sent, "failed", result.Failed, "worker_id", id)
	}
}

// Enqueue accepts an event for asynchronous dispatch. Daily-summary events
// go to the digest buffer when one is configured.
func (w *DispatchWorker) Enqueue(event domain.NotificationEvent) (string, error) {
	if event.Type == "" {
		return "", apperrors.NewValidationError("event type is required", nil)
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	if event.Priority == domain.PriorityDailySummary && w.digest != nil && w.digest.Add(event) {
		return event.ID, nil
	}

	job := &queue.EventJob{
		ID:       event.ID,
		Priority: queue.FromEventPriority(event.Priority),
		Event:    event,
	}
	if !w.queue.Push(job) {
		return "", apperrors.NewUnavailableError("dispatch queue is shut down", nil)
	}
	metrics.DispatchQueueSize.Set(float64(w.queue.Len()))
	return event.ID, nil
}

// QueueSize returns the current queue size
func (w *DispatchWorker) QueueSize() int {
	return w.queue.Len()
}
