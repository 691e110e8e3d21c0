package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"

	"github.com/vhvplatform/go-hotel-notification-service/internal/domain"
	"github.com/vhvplatform/go-hotel-notification-service/internal/metrics"
	"github.com/vhvplatform/go-hotel-notification-service/internal/shared/logger"
)

// Pusher pushes a message to one live transport connection
type Pusher interface {
	Push(ctx context.Context, msg *domain.RealtimeMessage) error
}

// PusherFunc adapts a function to Pusher
type PusherFunc func(ctx context.Context, msg *domain.RealtimeMessage) error

// Push calls f
func (f PusherFunc) Push(ctx context.Context, msg *domain.RealtimeMessage) error {
	return f(ctx, msg)
}

// PendingStore is the durable queue of notifications for offline users
type PendingStore interface {
	Enqueue(ctx context.Context, p *domain.PendingNotification) error
	// FetchPending returns up to limit undelivered entries, oldest first
	FetchPending(ctx context.Context, userID string, limit int) ([]*domain.PendingNotification, error)
	MarkDelivered(ctx context.Context, id primitive.ObjectID) error
}

// Options configures the registry
type Options struct {
	StaleAfter     time.Duration
	SweepSpec      string
	ReplayLimit    int
	SendTimeout    time.Duration
	FanOutLimit    int
	PersistTimeout time.Duration
}

// DefaultOptions returns the standard registry settings
func DefaultOptions() Options {
	return Options{
		StaleAfter:     5 * time.Minute,
		SweepSpec:      "@every 1m",
		ReplayLimit:    50,
		SendTimeout:    5 * time.Second,
		FanOutLimit:    16,
		PersistTimeout: 3 * time.Second,
	}
}

type connection struct {
	id            string
	userID        string
	scope         domain.Scope
	pusher        Pusher
	connectedAt   time.Time
	lastHeartbeat time.Time
	cleanup       func()
}

// Registry tracks live connections per user. The by-id and by-user indices
// are only mutated under mu, through addLocked and removeLocked.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]*connection
	byUser map[string]map[string]*connection

	pending PendingStore
	opts    Options
	log     *logger.Logger
	now     func() time.Time

	lifecycleMu sync.Mutex
	cron        *cron.Cron
}

// New creates a registry backed by pending for offline delivery
func New(pending PendingStore, opts Options, log *logger.Logger) *Registry {
	def := DefaultOptions()
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = def.StaleAfter
	}
	if opts.SweepSpec == "" {
		opts.SweepSpec = def.SweepSpec
	}
	if opts.ReplayLimit <= 0 {
		opts.ReplayLimit = def.ReplayLimit
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = def.SendTimeout
	}
	if opts.FanOutLimit <= 0 {
		opts.FanOutLimit = def.FanOutLimit
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = def.PersistTimeout
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &Registry{
		byID:    make(map[string]*connection),
		byUser:  make(map[string]map[string]*connection),
		pending: pending,
		opts:    opts,
		log:     log,
		now:     time.Now,
	}
}

// SetClock replaces the time source
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// AddConnection registers a live connection and returns its id
func (r *Registry) AddConnection(userID string, scope domain.Scope, pusher Pusher) string {
	r.mu.Lock()
	now := r.now()
	c := &connection{
		id:            uuid.NewString(),
		userID:        userID,
		scope:         scope,
		pusher:        pusher,
		connectedAt:   now,
		lastHeartbeat: now,
	}
	r.addLocked(c)
	total := len(r.byID)
	r.mu.Unlock()

	metrics.LiveConnections.Set(float64(total))
	r.log.Debug("Connection added", "connection_id", c.id, "user_id", userID,
		"organization_id", scope.OrganizationID, "property_id", scope.PropertyID)
	return c.id
}

func (r *Registry) addLocked(c *connection) {
	r.byID[c.id] = c
	conns, ok := r.byUser[c.userID]
	if !ok {
		conns = make(map[string]*connection)
		r.byUser[c.userID] = conns
	}
	conns[c.id] = c
}

// removeLocked clears id from both indices and returns its cleanup, if any
func (r *Registry) removeLocked(id string) (func(), bool) {
	c, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	delete(r.byID, id)
	if conns, ok := r.byUser[c.userID]; ok {
		delete(conns, id)
		if len(conns) == 0 {
			delete(r.byUser, c.userID)
		}
	}
	cleanup := c.cleanup
	c.cleanup = nil
	return cleanup, true
}

// RemoveConnection removes a connection and runs its cleanup once.
// Unknown ids are ignored.
func (r *Registry) RemoveConnection(id string) bool {
	r.mu.Lock()
	cleanup, ok := r.removeLocked(id)
	total := len(r.byID)
	r.mu.Unlock()

	if !ok {
		return false
	}
	metrics.LiveConnections.Set(float64(total))
	if cleanup != nil {
		cleanup()
	}
	r.log.Debug("Connection removed", "connection_id", id)
	return true
}

// SetConnectionCleanup attaches fn to run when the connection is removed
func (r *Registry) SetConnectionCleanup(id string, fn func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return false
	}
	c.cleanup = fn
	return true
}

// Touch records a heartbeat for the connection
func (r *Registry) Touch(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return false
	}
	c.lastHeartbeat = r.now()
	return true
}

// OpenConnection registers a connection and replays the user's pending notifications
func (r *Registry) OpenConnection(ctx context.Context, userID string, scope domain.Scope, pusher Pusher) string {
	id := r.AddConnection(userID, scope, pusher)
	if n, err := r.ReplayPending(ctx, userID); err != nil {
		r.log.Warn("Failed to replay pending notifications", "user_id", userID, "error", err)
	} else if n > 0 {
		r.log.Info("Replayed pending notifications", "user_id", userID, "count", n)
	}
	return id
}

// CloseConnection removes a connection opened by OpenConnection
func (r *Registry) CloseConnection(id string) {
	r.RemoveConnection(id)
}

// userScopeMatches: an unset connection field matches anything, a set field
// must equal the message field.
func userScopeMatches(scope domain.Scope, msg *domain.RealtimeMessage) bool {
	if scope.OrganizationID != "" && scope.OrganizationID != msg.OrganizationID {
		return false
	}
	if scope.PropertyID != "" && scope.PropertyID != msg.PropertyID {
		return false
	}
	return true
}

// broadcastScopeMatches: the connection must belong to the organization and,
// when a property is given, must not be scoped to a different one.
func broadcastScopeMatches(scope domain.Scope, orgID, propertyID string) bool {
	if scope.OrganizationID != orgID {
		return false
	}
	if propertyID != "" && scope.PropertyID != "" && scope.PropertyID != propertyID {
		return false
	}
	return true
}

func (r *Registry) userTargets(userID string, msg *domain.RealtimeMessage) []*connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var targets []*connection
	for _, c := range r.byUser[userID] {
		if userScopeMatches(c.scope, msg) {
			targets = append(targets, c)
		}
	}
	return targets
}

// fanOut pushes msg to every target concurrently and evicts those that fail
func (r *Registry) fanOut(ctx context.Context, targets []*connection, msg *domain.RealtimeMessage) int {
	if len(targets) == 0 {
		return 0
	}

	ok := make([]bool, len(targets))
	g := new(errgroup.Group)
	g.SetLimit(r.opts.FanOutLimit)
	for i, c := range targets {
		g.Go(func() error {
			sendCtx, cancel := context.WithTimeout(ctx, r.opts.SendTimeout)
			defer cancel()
			if err := c.pusher.Push(sendCtx, msg); err != nil {
				r.log.Warn("Push failed, evicting connection", "connection_id", c.id, "user_id", c.userID, "error", err)
				return nil
			}
			ok[i] = true
			return nil
		})
	}
	_ = g.Wait()

	delivered := 0
	for i, c := range targets {
		if ok[i] {
			delivered++
			metrics.RealtimePushes.WithLabelValues("sent").Inc()
			continue
		}
		metrics.RealtimePushes.WithLabelValues("failed").Inc()
		r.RemoveConnection(c.id)
	}
	return delivered
}

// SendToUser pushes msg to the user's scope-compatible connections. When no
// connection received it the message is persisted as pending and false is returned.
func (r *Registry) SendToUser(ctx context.Context, userID string, msg *domain.RealtimeMessage) bool {
	if r.fanOut(ctx, r.userTargets(userID, msg), msg) > 0 {
		return true
	}
	r.persistPending(ctx, userID, msg)
	return false
}

func (r *Registry) persistPending(ctx context.Context, userID string, msg *domain.RealtimeMessage) {
	if r.pending == nil {
		return
	}
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.PersistTimeout)
	defer cancel()

	p := &domain.PendingNotification{
		UserID:         userID,
		OrganizationID: msg.OrganizationID,
		PropertyID:     msg.PropertyID,
		Payload:        *msg,
		CreatedAt:      r.clock(),
	}
	if err := r.pending.Enqueue(persistCtx, p); err != nil {
		r.log.Error("Failed to persist pending notification", "user_id", userID, "error", err)
		return
	}
	metrics.PendingEnqueued.Inc()
}

// SendToOrganization broadcasts msg to every connection of orgID matching
// msg.PropertyID and returns how many received it. Broadcasts are never persisted.
func (r *Registry) SendToOrganization(ctx context.Context, orgID string, msg *domain.RealtimeMessage) int {
	if orgID == "" {
		return 0
	}
	r.mu.RLock()
	var targets []*connection
	for _, c := range r.byID {
		if broadcastScopeMatches(c.scope, orgID, msg.PropertyID) {
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()

	return r.fanOut(ctx, targets, msg)
}

// ReplayPending delivers up to ReplayLimit pending notifications in FIFO order.
// Each entry is marked delivered only after a live connection received it.
// Entries no open connection's scope accepts stay pending for a later
// connection; replay stops when a push fails.
func (r *Registry) ReplayPending(ctx context.Context, userID string) (int, error) {
	if r.pending == nil {
		return 0, nil
	}
	items, err := r.pending.FetchPending(ctx, userID, r.opts.ReplayLimit)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch pending notifications: %w", err)
	}

	replayed := 0
	for _, item := range items {
		msg := item.Payload
		msg.Kind = "replay"
		targets := r.userTargets(userID, &msg)
		if len(targets) == 0 {
			continue
		}
		if r.fanOut(ctx, targets, &msg) == 0 {
			break
		}
		if err := r.pending.MarkDelivered(ctx, item.ID); err != nil {
			return replayed, fmt.Errorf("failed to mark pending notification delivered: %w", err)
		}
		replayed++
	}
	if replayed > 0 {
		metrics.PendingReplayed.Add(float64(replayed))
	}
	return replayed, nil
}

// CleanupStaleConnections removes connections without a heartbeat within StaleAfter
func (r *Registry) CleanupStaleConnections() int {
	r.mu.Lock()
	now := r.now()
	var cleanups []func()
	removed := 0
	for id, c := range r.byID {
		if now.Sub(c.lastHeartbeat) <= r.opts.StaleAfter {
			continue
		}
		cleanup, _ := r.removeLocked(id)
		if cleanup != nil {
			cleanups = append(cleanups, cleanup)
		}
		removed++
	}
	total := len(r.byID)
	r.mu.Unlock()

	for _, fn := range cleanups {
		fn()
	}
	if removed > 0 {
		metrics.LiveConnections.Set(float64(total))
		metrics.StaleConnectionsEvicted.Add(float64(removed))
		r.log.Info("Evicted stale connections", "count", removed)
	}
	return removed
}

// GetStats returns a snapshot of the registry
func (r *Registry) GetStats() domain.RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := domain.RegistryStats{
		TotalConnections: len(r.byID),
		ActiveUsers:      len(r.byUser),
		ConnectionsByOrg: make(map[string]int),
	}
	for _, c := range r.byID {
		stats.ConnectionsByOrg[c.scope.OrganizationID]++
	}
	return stats
}

// Start schedules the stale-connection sweep
func (r *Registry) Start() error {
	r.lifecycleMu.Lock()
	defer r.lifecycleMu.Unlock()
	if r.cron != nil {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(r.opts.SweepSpec, func() { r.CleanupStaleConnections() }); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", r.opts.SweepSpec, err)
	}
	c.Start()
	r.cron = c
	r.log.Info("Connection registry started", "sweep", r.opts.SweepSpec, "stale_after", r.opts.StaleAfter.String())
	return nil
}

// Stop halts the sweep and waits for a running sweep to finish
func (r *Registry) Stop() {
	r.lifecycleMu.Lock()
	c := r.cron
	r.cron = nil
	r.lifecycleMu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	r.log.Info("Connection registry stopped")
}

// Running reports whether the sweep is scheduled
func (r *Registry) Running() bool {
	r.lifecycleMu.Lock()
	defer r.lifecycleMu.Unlock()
	return r.cron != nil
}

// CloseAll removes every connection, running their cleanups
func (r *Registry) CloseAll() int {
	r.mu.Lock()
	var cleanups []func()
	n := 0
	for id := range r.byID {
		if cleanup, _ := r.removeLocked(id); cleanup != nil {
			cleanups = append(cleanups, cleanup)
		}
		n++
	}
	r.mu.Unlock()

	for _, fn := range cleanups {
		fn()
	}
	metrics.LiveConnections.Set(0)
	return n
}

func (r *Registry) clock() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.now()
}
