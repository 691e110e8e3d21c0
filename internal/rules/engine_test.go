package rules

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vhvplatform/go-hotel-notification-service/internal/domain"
)

func paymentFailureRule() *domain.NotificationRule {
	return &domain.NotificationRule{
		ID:          primitive.NewObjectID(),
		EventType:   domain.EventPaymentFailure,
		Priority:    domain.PriorityImmediate,
		TargetRoles: []domain.Role{domain.RoleFrontDesk, domain.RoleManager},
		Channels:    []domain.Channel{domain.ChannelInApp, domain.ChannelEmail},
		IsActive:    true,
	}
}

func TestPlanPaymentFailure(t *testing.T) {
	engine := NewEngine()
	rule := paymentFailureRule()

	plan := engine.Plan(domain.EventPaymentFailure, []*domain.NotificationRule{rule})

	require.Len(t, plan.Entries, 4)
	assert.Equal(t, []domain.Role{domain.RoleFrontDesk, domain.RoleManager}, plan.Roles())
	groups := make(map[domain.Role][]domain.Channel)
	for _, e := range plan.Entries {
		groups[e.Role] = append(groups[e.Role], e.Channel)
	}
	assert.Len(t, groups, 2)
	for _, channels := range groups {
		assert.ElementsMatch(t, []domain.Channel{domain.ChannelInApp, domain.ChannelEmail}, channels)
	}
	for _, e := range plan.Entries {
		assert.Equal(t, rule.ID.Hex(), e.RuleID)
		assert.Equal(t, domain.PriorityImmediate, e.Priority)
		assert.Equal(t, domain.EventPaymentFailure, e.TemplateKey)
	}
}

func TestPlanIsPure(t *testing.T) {
	engine := NewEngine()
	ruleSet := []*domain.NotificationRule{paymentFailureRule(), paymentFailureRule()}
	before := *ruleSet[0]

	first := engine.Plan(domain.EventPaymentFailure, ruleSet)
	second := engine.Plan(domain.EventPaymentFailure, ruleSet)

	assert.Equal(t, first, second)
	assert.Equal(t, before, *ruleSet[0])
}

func TestPlanExcludesInactiveAndOtherTypes(t *testing.T) {
	engine := NewEngine()
	inactive := paymentFailureRule()
	inactive.IsActive = false
	other := paymentFailureRule()
	other.EventType = domain.EventBookingCreated

	plan := engine.Plan(domain.EventPaymentFailure, []*domain.NotificationRule{inactive, other, nil})

	assert.True(t, plan.Empty())
}

func TestPlanIsAdditive(t *testing.T) {
	engine := NewEngine()
	email := &domain.NotificationRule{
		ID:          primitive.NewObjectID(),
		EventType:   domain.EventRoomServiceRequest,
		TargetRoles: []domain.Role{domain.RoleFrontDesk, domain.RoleManager},
		Channels:    []domain.Channel{domain.ChannelEmail},
		IsActive:    true,
		Throttle:    &domain.ThrottleSpec{MinInterval: time.Minute},
	}
	realtime := &domain.NotificationRule{
		ID:          primitive.NewObjectID(),
		EventType:   domain.EventRoomServiceRequest,
		TargetRoles: []domain.Role{domain.RoleHousekeeping},
		Channels:    []domain.Channel{domain.ChannelInApp},
		IsActive:    true,
		TemplateKey: domain.EventHousekeepingRequest,
	}

	plan := engine.Plan(domain.EventRoomServiceRequest, []*domain.NotificationRule{email, realtime})

	require.Len(t, plan.Entries, 3)
	assert.NotNil(t, plan.Entries[0].Throttle)
	assert.Equal(t, domain.EventHousekeepingRequest, plan.Entries[2].TemplateKey)
	assert.Equal(t, realtime.ID.Hex(), plan.Entries[2].RuleID)
}

func TestValidateRule(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *domain.NotificationRule)
		wantErr bool
	}{
		{name: "valid", mutate: func(r *domain.NotificationRule) {}},
		{name: "missing event type", mutate: func(r *domain.NotificationRule) { r.EventType = "" }, wantErr: true},
		{name: "no roles", mutate: func(r *domain.NotificationRule) { r.TargetRoles = nil }, wantErr: true},
		{name: "no channels", mutate: func(r *domain.NotificationRule) { r.Channels = nil }, wantErr: true},
		{name: "bad channel", mutate: func(r *domain.NotificationRule) { r.Channels = []domain.Channel{"fax"} }, wantErr: true},
		{name: "bad priority", mutate: func(r *domain.NotificationRule) { r.Priority = "later" }, wantErr: true},
		{name: "negative throttle", mutate: func(r *domain.NotificationRule) {
			r.Throttle = &domain.ThrottleSpec{MinInterval: -time.Second}
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := paymentFailureRule()
			tt.mutate(rule)
			err := ValidateRule(rule)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultRulesAreValid(t *testing.T) {
	defaults := DefaultRules("org-1")
	require.NotEmpty(t, defaults)

	seen := make(map[domain.EventType]bool)
	for _, r := range defaults {
		assert.NoError(t, ValidateRule(r), r.Name)
		assert.Equal(t, "org-1", r.OrganizationID)
		assert.True(t, r.IsActive)
		assert.False(t, seen[r.EventType], "duplicate default for %s", r.EventType)
		seen[r.EventType] = true
	}
	assert.True(t, seen[domain.EventPaymentFailure])
}

func TestMemoryThrottler(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	throttler := NewMemoryThrottler().WithClock(func() time.Time { return now })
	ctx := context.Background()
	key := ThrottleKey("rule-1", "user-1")

	ok, err := throttler.Allow(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = throttler.Allow(ctx, key, time.Minute)
	assert.False(t, ok, "second send within the window is throttled")

	ok, _ = throttler.Allow(ctx, ThrottleKey("rule-1", "user-2"), time.Minute)
	assert.True(t, ok, "other recipients are unaffected")

	now = now.Add(61 * time.Second)
	ok, _ = throttler.Allow(ctx, key, time.Minute)
	assert.True(t, ok)

	ok, _ = throttler.Allow(ctx, key, 0)
	assert.True(t, ok, "zero window never throttles")

	now = now.Add(time.Hour)
	assert.Equal(t, 2, throttler.Prune())
	assert.Zero(t, throttler.Len())
}

func TestMemoryThrottlerPruneKeepsOpenWindows(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	throttler := NewMemoryThrottler().WithClock(func() time.Time { return now })
	ctx := context.Background()

	_, _ = throttler.Allow(ctx, "short", time.Minute)
	_, _ = throttler.Allow(ctx, "long", time.Hour)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, throttler.Prune())
	ok, _ := throttler.Allow(ctx, "long", time.Hour)
	assert.False(t, ok, "pruning must not reopen a live window")
}

func TestMemoryThrottlerScheduledPruning(t *testing.T) {
	throttler := NewMemoryThrottler()
	require.Error(t, throttler.StartPruning("not a schedule"))

	_, _ = throttler.Allow(context.Background(), "rule:user", 10*time.Millisecond)
	require.Equal(t, 1, throttler.Len())

	require.NoError(t, throttler.StartPruning("@every 1s"))
	require.NoError(t, throttler.StartPruning("@every 1s"), "second start is a no-op")
	defer throttler.StopPruning()

	assert.Eventually(t, func() bool { return throttler.Len() == 0 }, 3*time.Second, 50*time.Millisecond)
}

func TestMemoryThrottlerConcurrentCheckAndSet(t *testing.T) {
	throttler := NewMemoryThrottler()
	var allowed int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := throttler.Allow(context.Background(), "rule:user", time.Hour); ok {
				atomic.AddInt32(&allowed, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), allowed)
}

type fakeRedis struct {
	keys map[string]bool
	err  error
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.BoolCmd {
	if f.err != nil {
		return goredis.NewBoolResult(false, f.err)
	}
	if f.keys[key] {
		return goredis.NewBoolResult(false, nil)
	}
	f.keys[key] = true
	return goredis.NewBoolResult(true, nil)
}

func TestRedisThrottler(t *testing.T) {
	fake := &fakeRedis{keys: make(map[string]bool)}
	throttler := &RedisThrottler{client: fake, prefix: "hotel:"}
	ctx := context.Background()

	ok, err := throttler.Allow(ctx, "r:u", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, fake.keys["hotel:r:u"])

	ok, err = throttler.Allow(ctx, "r:u", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	fake.err = errors.New("connection refused")
	_, err = throttler.Allow(ctx, "r:v", time.Minute)
	assert.Error(t, err)
}
