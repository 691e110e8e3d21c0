package queue

import (
	"container/heap"
	"sync"
	"time"

	"github.com/vhvplatform/go-hotel-notification-service/internal/domain"
)

// Priority represents the processing order of a job
type Priority int

const (
	// PriorityHigh for immediate events (payment failures, alerts)
	PriorityHigh Priority = iota
	// PriorityNormal for regular operational events
	PriorityNormal
	// PriorityLow for daily-summary events
	PriorityLow
)

// FromEventPriority maps an event priority to a queue priority
func FromEventPriority(p domain.Priority) Priority {
	switch p {
	case domain.PriorityImmediate:
		return PriorityHigh
	case domain.PriorityDailySummary:
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// EventJob represents an event waiting for dispatch
type EventJob struct {
	ID         string
	Priority   Priority
	Event      domain.NotificationEvent
	EnqueuedAt time.Time
	Index      int // Index in the heap
	seq        uint64
}

// eventJobHeap implements heap.Interface
type eventJobHeap []*EventJob

func (h eventJobHeap) Len() int { return len(h) }

func (h eventJobHeap) Less(i, j int) bool {
	// Lower priority value = higher priority (processed first), FIFO within a level
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h eventJobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].Index = i
	h[j].Index = j
}

func (h *eventJobHeap) Push(x interface{}) {
	n := len(*h)
	job := x.(*EventJob)
	job.Index = n
	*h = append(*h, job)
}

func (h *eventJobHeap) Pop() interface{} {
	old := *h
	n := len(old)
	job := old[n-1]
	old[n-1] = nil // Avoid memory leak
	job.Index = -1
	*h = old[0 : n-1]
	return job
}

// PriorityQueue is a thread-safe priority queue for event jobs
type PriorityQueue struct {
	jobs   eventJobHeap
	mu     sync.Mutex
	cond   *sync.Cond
	seq    uint64
	closed bool
}

// NewPriorityQueue creates a new priority queue
func NewPriorityQueue() *PriorityQueue {
	pq := &PriorityQueue{
		jobs: make(eventJobHeap, 0),
	}
	pq.cond = sync.NewCond(&pq.mu)
	heap.Init(&pq.jobs)
	return pq
}

// Push adds a job to the queue. It returns false once the queue is closed.
func (pq *PriorityQueue) Push(job *EventJob) bool {
	pq.mu.Lock()
	defer pq.mu.Unlock()

	if pq.closed {
		return false
	}
	pq.seq++
	job.seq = pq.seq
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}
	heap.Push(&pq.jobs, job)
	pq.cond.Signal() // Wake up a waiting worker
	return true
}

// Pop removes and returns the highest priority job.
// Blocks while the queue is empty; returns nil once closed and drained.
func (pq *PriorityQueue) Pop() *EventJob {
	pq.mu.Lock()
	defer pq.mu.Unlock()

	for pq.jobs.Len() == 0 && !pq.closed {
		pq.cond.Wait()
	}
	if pq.jobs.Len() == 0 {
		return nil
	}
	return heap.Pop(&pq.jobs).(*EventJob)
}

// TryPop tries to pop a job without blocking
// Returns nil if queue is empty
func (pq *PriorityQueue) TryPop() *EventJob {
	pq.mu.Lock()
	defer pq.mu.Unlock()

	if pq.jobs.Len() == 0 {
		return nil
	}
	return heap.Pop(&pq.jobs).(*EventJob)
}

// Close stops accepting jobs and wakes every blocked Pop
func (pq *PriorityQueue) Close() {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	pq.closed = true
	pq.cond.Broadcast()
}

// Len returns the number of jobs in the queue
func (pq *PriorityQueue) Len() int {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	return pq.jobs.Len()
}

// IsEmpty returns true if the queue is empty
func (pq *PriorityQueue) IsEmpty() bool {
	return pq.Len() == 0
}
