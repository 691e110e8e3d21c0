package rules

import (
	"context"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

// Throttler decides whether a send keyed by (rule, recipient) may proceed.
// Allow must check and record atomically.
type Throttler interface {
	Allow(ctx context.Context, key string, window time.Duration) (bool, error)
}

// ThrottleKey builds the throttle key of a rule and recipient
func ThrottleKey(ruleID, recipientID string) string {
	return ruleID + ":" + recipientID
}

// MemoryThrottler keeps throttle windows in process memory. Expired windows
// are dropped by Prune, which StartPruning runs on a cron schedule.
type MemoryThrottler struct {
	mu    sync.Mutex
	until map[string]time.Time
	now   func() time.Time

	cronMu sync.Mutex
	cron   *cron.Cron
}

// NewMemoryThrottler creates an in-memory throttler
func NewMemoryThrottler() *MemoryThrottler {
	return &MemoryThrottler{
		until: make(map[string]time.Time),
		now:   time.Now,
	}
}

// WithClock replaces the clock, used by tests
func (t *MemoryThrottler) WithClock(now func() time.Time) *MemoryThrottler {
	t.now = now
	return t
}

// Allow returns true and opens a new window when key has no open window
func (t *MemoryThrottler) Allow(ctx context.Context, key string, window time.Duration) (bool, error) {
	if window <= 0 {
		return true, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if until, ok := t.until[key]; ok && now.Before(until) {
		return false, nil
	}
	t.until[key] = now.Add(window)
	return true, nil
}

// Prune drops expired windows and returns how many were removed
func (t *MemoryThrottler) Prune() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	now := t.now()
	for key, until := range t.until {
		if !now.Before(until) {
			delete(t.until, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked windows
func (t *MemoryThrottler) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.until)
}

// StartPruning runs Prune on the cron schedule spec until StopPruning
func (t *MemoryThrottler) StartPruning(spec string) error {
	t.cronMu.Lock()
	defer t.cronMu.Unlock()
	if t.cron != nil {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(spec, func() { t.Prune() }); err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", spec, err)
	}
	c.Start()
	t.cron = c
	return nil
}

// StopPruning stops the prune schedule and waits for a running prune
func (t *MemoryThrottler) StopPruning() {
	t.cronMu.Lock()
	c := t.cron
	t.cron = nil
	t.cronMu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

type setNXer interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.BoolCmd
}

// RedisThrottler shares throttle state across instances with SET NX PX
type RedisThrottler struct {
	client setNXer
	prefix string
}

// NewRedisThrottler creates a Redis-backed throttler
func NewRedisThrottler(client *goredis.Client, prefix string) *RedisThrottler {
	return &RedisThrottler{client: client, prefix: prefix}
}

// Allow sets the key only when absent; the key expires after window
func (t *RedisThrottler) Allow(ctx context.Context, key string, window time.Duration) (bool, error) {
	if window <= 0 {
		return true, nil
	}
	ok, err := t.client.SetNX(ctx, t.prefix+key, time.Now().UnixMilli(), window).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check throttle: %w", err)
	}
	return ok, nil
}
