package registry

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vhvplatform/go-hotel-notification-service/internal/domain"
)

type memoryPending struct {
	mu    sync.Mutex
	items []*domain.PendingNotification
}

func (m *memoryPending) Enqueue(ctx context.Context, p *domain.PendingNotification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = primitive.NewObjectID()
	m.items = append(m.items, p)
	return nil
}

func (m *memoryPending) FetchPending(ctx context.Context, userID string, limit int) ([]*domain.PendingNotification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.PendingNotification
	for _, p := range m.items {
		if p.UserID == userID && !p.Delivered {
			out = append(out, p)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *memoryPending) MarkDelivered(ctx context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.items {
		if p.ID == id {
			p.Delivered = true
		}
	}
	return nil
}

func (m *memoryPending) forUser(userID string) []*domain.PendingNotification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.PendingNotification
	for _, p := range m.items {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out
}

type recordingPusher struct {
	mu       sync.Mutex
	received []*domain.RealtimeMessage
	err      error
}

func (p *recordingPusher) Push(ctx context.Context, msg *domain.RealtimeMessage) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.received = append(p.received, msg)
	return nil
}

func (p *recordingPusher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.received)
}

func (p *recordingPusher) subjects() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, m := range p.received {
		out = append(out, m.Subject)
	}
	return out
}

func newTestRegistry() (*Registry, *memoryPending) {
	pending := &memoryPending{}
	return New(pending, DefaultOptions(), nil), pending
}

func message(subject, org, property string) *domain.RealtimeMessage {
	return &domain.RealtimeMessage{
		ID:             subject,
		Kind:           "notification",
		Subject:        subject,
		OrganizationID: org,
		PropertyID:     property,
	}
}

func (r *Registry) indexed(id string) (inByID, inByUser bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, inByID = r.byID[id]
	for _, conns := range r.byUser {
		if _, ok := conns[id]; ok {
			inByUser = true
		}
	}
	return inByID, inByUser
}

func TestAddRemoveConnection(t *testing.T) {
	reg, _ := newTestRegistry()

	id := reg.AddConnection("user-1", domain.Scope{}, &recordingPusher{})
	byID, byUser := reg.indexed(id)
	assert.True(t, byID)
	assert.True(t, byUser)

	cleanups := 0
	require.True(t, reg.SetConnectionCleanup(id, func() { cleanups++ }))

	assert.True(t, reg.RemoveConnection(id))
	assert.False(t, reg.RemoveConnection(id), "second removal is a no-op")
	assert.False(t, reg.RemoveConnection("unknown"))

	byID, byUser = reg.indexed(id)
	assert.False(t, byID)
	assert.False(t, byUser)
	assert.Equal(t, 1, cleanups)

	stats := reg.GetStats()
	assert.Equal(t, 0, stats.TotalConnections)
	assert.Equal(t, 0, stats.ActiveUsers, "no empty user entries linger")
	assert.False(t, reg.SetConnectionCleanup(id, func() {}))
}

func TestSendToUserWithoutConnectionsPersistsPending(t *testing.T) {
	reg, pending := newTestRegistry()

	delivered := reg.SendToUser(context.Background(), "user-1", message("Payment failed", "org-1", ""))

	assert.False(t, delivered)
	items := pending.forUser("user-1")
	require.Len(t, items, 1)
	assert.Equal(t, "Payment failed", items[0].Payload.Subject)
	assert.Equal(t, "org-1", items[0].OrganizationID)
}

func TestSendToUserScopeFiltering(t *testing.T) {
	reg, pending := newTestRegistry()
	unscoped := &recordingPusher{}
	sameOrg := &recordingPusher{}
	sameProperty := &recordingPusher{}
	otherProperty := &recordingPusher{}
	otherOrg := &recordingPusher{}

	reg.AddConnection("user-1", domain.Scope{}, unscoped)
	reg.AddConnection("user-1", domain.Scope{OrganizationID: "org-1"}, sameOrg)
	reg.AddConnection("user-1", domain.Scope{OrganizationID: "org-1", PropertyID: "P1"}, sameProperty)
	reg.AddConnection("user-1", domain.Scope{OrganizationID: "org-1", PropertyID: "P2"}, otherProperty)
	reg.AddConnection("user-1", domain.Scope{OrganizationID: "org-2"}, otherOrg)

	delivered := reg.SendToUser(context.Background(), "user-1", message("hello", "org-1", "P1"))

	assert.True(t, delivered)
	assert.Equal(t, 1, unscoped.count())
	assert.Equal(t, 1, sameOrg.count())
	assert.Equal(t, 1, sameProperty.count())
	assert.Equal(t, 0, otherProperty.count())
	assert.Equal(t, 0, otherOrg.count())
	assert.Empty(t, pending.forUser("user-1"))
}

func TestSendToUserEvictsFailingConnection(t *testing.T) {
	reg, pending := newTestRegistry()
	good := &recordingPusher{}
	bad := &recordingPusher{err: errors.New("broken pipe")}

	reg.AddConnection("user-1", domain.Scope{}, good)
	badID := reg.AddConnection("user-1", domain.Scope{}, bad)
	cleaned := false
	reg.SetConnectionCleanup(badID, func() { cleaned = true })

	assert.True(t, reg.SendToUser(context.Background(), "user-1", message("m", "", "")))

	byID, byUser := reg.indexed(badID)
	assert.False(t, byID)
	assert.False(t, byUser)
	assert.True(t, cleaned)
	assert.Equal(t, 1, reg.GetStats().TotalConnections)
	assert.Empty(t, pending.forUser("user-1"))
}

func TestSendToUserAllFailingFallsBackToPending(t *testing.T) {
	reg, pending := newTestRegistry()
	reg.AddConnection("user-1", domain.Scope{}, &recordingPusher{err: errors.New("closed")})

	assert.False(t, reg.SendToUser(context.Background(), "user-1", message("m", "", "")))
	assert.Len(t, pending.forUser("user-1"), 1)
	assert.Equal(t, 0, reg.GetStats().TotalConnections)
}

func TestSlowConnectionDoesNotStallOthers(t *testing.T) {
	pending := &memoryPending{}
	opts := DefaultOptions()
	opts.SendTimeout = 50 * time.Millisecond
	reg := New(pending, opts, nil)

	fast := &recordingPusher{}
	slow := PusherFunc(func(ctx context.Context, msg *domain.RealtimeMessage) error {
		<-ctx.Done()
		return ctx.Err()
	})
	reg.AddConnection("user-1", domain.Scope{OrganizationID: "org-1"}, fast)
	reg.AddConnection("user-2", domain.Scope{OrganizationID: "org-1"}, slow)

	start := time.Now()
	count := reg.SendToOrganization(context.Background(), "org-1", message("b", "org-1", ""))

	assert.Equal(t, 1, count)
	assert.Equal(t, 1, fast.count())
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 1, reg.GetStats().TotalConnections)
}

func TestBroadcastScopedToOtherPropertyReachesNobody(t *testing.T) {
	reg, pending := newTestRegistry()
	unscoped := &recordingPusher{}
	property1 := &recordingPusher{}
	reg.AddConnection("user-1", domain.Scope{}, unscoped)
	reg.AddConnection("user-1", domain.Scope{OrganizationID: "org-1", PropertyID: "P1"}, property1)

	count := reg.SendToOrganization(context.Background(), "org-1", message("all staff", "org-1", "P2"))

	assert.Equal(t, 0, count)
	assert.Equal(t, 0, unscoped.count())
	assert.Equal(t, 0, property1.count())
	assert.Empty(t, pending.forUser("user-1"), "broadcasts are not persisted")
}

func TestBroadcastMatchesOrganization(t *testing.T) {
	reg, _ := newTestRegistry()
	orgWide := &recordingPusher{}
	property1 := &recordingPusher{}
	otherOrg := &recordingPusher{}
	reg.AddConnection("user-1", domain.Scope{OrganizationID: "org-1"}, orgWide)
	reg.AddConnection("user-2", domain.Scope{OrganizationID: "org-1", PropertyID: "P1"}, property1)
	reg.AddConnection("user-3", domain.Scope{OrganizationID: "org-2"}, otherOrg)

	assert.Equal(t, 2, reg.SendToOrganization(context.Background(), "org-1", message("a", "org-1", "")))
	assert.Equal(t, 2, reg.SendToOrganization(context.Background(), "org-1", message("b", "org-1", "P1")))
	assert.Equal(t, 0, otherOrg.count())
	assert.Equal(t, 0, reg.SendToOrganization(context.Background(), "", message("c", "", "")))
}

func TestReplayIsFIFO(t *testing.T) {
	reg, pending := newTestRegistry()
	ctx := context.Background()

	require.False(t, reg.SendToUser(ctx, "user-1", message("P1", "", "")))
	require.False(t, reg.SendToUser(ctx, "user-1", message("P2", "", "")))

	pusher := &recordingPusher{}
	reg.OpenConnection(ctx, "user-1", domain.Scope{}, pusher)

	assert.Equal(t, []string{"P1", "P2"}, pusher.subjects())
	for _, p := range pending.forUser("user-1") {
		assert.True(t, p.Delivered)
	}
	for _, m := range pusher.received {
		assert.Equal(t, "replay", m.Kind)
	}
}

func TestReplayRespectsLimit(t *testing.T) {
	pending := &memoryPending{}
	opts := DefaultOptions()
	opts.ReplayLimit = 2
	reg := New(pending, opts, nil)
	ctx := context.Background()

	for _, s := range []string{"1", "2", "3"} {
		reg.SendToUser(ctx, "user-1", message(s, "", ""))
	}
	pusher := &recordingPusher{}
	reg.AddConnection("user-1", domain.Scope{}, pusher)

	n, err := reg.ReplayPending(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"2", "3"}, pusher.subjects())
}

func TestReplayLeavesUndeliveredEntries(t *testing.T) {
	reg, pending := newTestRegistry()
	ctx := context.Background()
	reg.SendToUser(ctx, "user-1", message("P1", "org-1", ""))

	// connection scoped to another organization cannot receive the entry
	reg.OpenConnection(ctx, "user-1", domain.Scope{OrganizationID: "org-2"}, &recordingPusher{})

	items := pending.forUser("user-1")
	require.Len(t, items, 1)
	assert.False(t, items[0].Delivered)
}

func TestReplaySkipsEntriesForOtherScopes(t *testing.T) {
	reg, pending := newTestRegistry()
	ctx := context.Background()
	reg.SendToUser(ctx, "user-1", message("other-property", "org-1", "P2"))
	reg.SendToUser(ctx, "user-1", message("my-property", "org-1", "P1"))

	pusher := &recordingPusher{}
	reg.OpenConnection(ctx, "user-1", domain.Scope{OrganizationID: "org-1", PropertyID: "P1"}, pusher)

	assert.Equal(t, []string{"my-property"}, pusher.subjects())
	items := pending.forUser("user-1")
	require.Len(t, items, 2)
	assert.False(t, items[0].Delivered, "entry for P2 waits for a P2 connection")
	assert.True(t, items[1].Delivered)

	later := &recordingPusher{}
	reg.OpenConnection(ctx, "user-1", domain.Scope{OrganizationID: "org-1", PropertyID: "P2"}, later)
	assert.Equal(t, []string{"other-property"}, later.subjects())
	assert.True(t, pending.forUser("user-1")[0].Delivered)
}

func TestReplayStopsWhenPushFails(t *testing.T) {
	reg, pending := newTestRegistry()
	ctx := context.Background()
	reg.SendToUser(ctx, "user-1", message("P1", "", ""))
	reg.SendToUser(ctx, "user-1", message("P2", "", ""))

	reg.OpenConnection(ctx, "user-1", domain.Scope{}, &recordingPusher{err: errors.New("broken pipe")})

	for _, p := range pending.forUser("user-1") {
		assert.False(t, p.Delivered)
	}
	assert.Zero(t, reg.GetStats().TotalConnections, "failing connection is evicted")
}

func TestCleanupStaleConnections(t *testing.T) {
	reg, _ := newTestRegistry()
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	reg.SetClock(func() time.Time { return now })

	stale := reg.AddConnection("user-1", domain.Scope{}, &recordingPusher{})
	fresh := reg.AddConnection("user-2", domain.Scope{}, &recordingPusher{})
	cleaned := 0
	reg.SetConnectionCleanup(stale, func() { cleaned++ })

	now = now.Add(4 * time.Minute)
	assert.Equal(t, 0, reg.CleanupStaleConnections(), "within the window nothing is evicted")
	require.True(t, reg.Touch(fresh))

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, reg.CleanupStaleConnections())

	byID, byUser := reg.indexed(stale)
	assert.False(t, byID)
	assert.False(t, byUser)
	assert.Equal(t, 1, cleaned)
	freshByID, _ := reg.indexed(fresh)
	assert.True(t, freshByID)
	assert.False(t, reg.Touch(stale))
}

func TestGetStats(t *testing.T) {
	reg, _ := newTestRegistry()
	reg.AddConnection("user-1", domain.Scope{OrganizationID: "org-1"}, &recordingPusher{})
	reg.AddConnection("user-1", domain.Scope{OrganizationID: "org-1", PropertyID: "P1"}, &recordingPusher{})
	reg.AddConnection("user-2", domain.Scope{OrganizationID: "org-2"}, &recordingPusher{})

	stats := reg.GetStats()
	assert.Equal(t, 3, stats.TotalConnections)
	assert.Equal(t, 2, stats.ActiveUsers)
	assert.Equal(t, map[string]int{"org-1": 2, "org-2": 1}, stats.ConnectionsByOrg)
}

func TestConcurrentAddRemoveKeepsIndicesConsistent(t *testing.T) {
	reg, _ := newTestRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := []string{"a", "b", "c"}[i%3]
			for j := 0; j < 50; j++ {
				id := reg.AddConnection(user, domain.Scope{}, &recordingPusher{})
				reg.SendToUser(context.Background(), user, message("x", "", ""))
				reg.RemoveConnection(id)
			}
		}(i)
	}
	wg.Wait()

	reg.mu.RLock()
	defer reg.mu.RUnlock()
	assert.Empty(t, reg.byID)
	assert.Empty(t, reg.byUser)
}

func TestStartStop(t *testing.T) {
	reg, _ := newTestRegistry()

	require.NoError(t, reg.Start())
	assert.True(t, reg.Running())
	require.NoError(t, reg.Start(), "start is idempotent")

	reg.Stop()
	assert.False(t, reg.Running())
	reg.Stop()

	bad := New(nil, Options{SweepSpec: "not a schedule"}, nil)
	assert.Error(t, bad.Start())
}

func TestCloseAll(t *testing.T) {
	reg, _ := newTestRegistry()
	var closed []string
	var mu sync.Mutex
	for _, u := range []string{"u1", "u2"} {
		id := reg.AddConnection(u, domain.Scope{}, &recordingPusher{})
		user := u
		reg.SetConnectionCleanup(id, func() {
			mu.Lock()
			closed = append(closed, user)
			mu.Unlock()
		})
	}

	assert.Equal(t, 2, reg.CloseAll())
	sort.Strings(closed)
	assert.Equal(t, []string{"u1", "u2"}, closed)
	assert.Equal(t, 0, reg.GetStats().ActiveUsers)
}
