package templates

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vhvplatform/go-hotel-notification-service/internal/domain"
)

func TestSubstitute(t *testing.T) {
	tests := []struct {
		name     string
		template string
		data     map[string]any
		escape   bool
		expected string
	}{
		{
			name:     "single variable",
			template: "Hello {{name}}!",
			data:     map[string]any{"name": "John"},
			expected: "Hello John!",
		},
		{
			name:     "multiple variables",
			template: "Hello {{name}}, welcome to {{hotel}}!",
			data:     map[string]any{"name": "John", "hotel": "Seaside"},
			expected: "Hello John, welcome to Seaside!",
		},
		{
			name:     "repeated variable",
			template: "{{room}} / {{room}}",
			data:     map[string]any{"room": 101},
			expected: "101 / 101",
		},
		{
			name:     "missing variable renders empty",
			template: "Guest: {{guestName}}.",
			data:     map[string]any{},
			expected: "Guest: .",
		},
		{
			name:     "nil data",
			template: "Amount {{amount}}",
			data:     nil,
			expected: "Amount ",
		},
		{
			name:     "non string scalars",
			template: "{{amount}} {{paid}}",
			data:     map[string]any{"amount": 12.5, "paid": false},
			expected: "12.5 false",
		},
		{
			name:     "no variables",
			template: "Hello World!",
			data:     map[string]any{"name": "unused"},
			expected: "Hello World!",
		},
		{
			name:     "XSS protection",
			template: "Hello {{name}}!",
			data:     map[string]any{"name": "<script>alert('xss')</script>"},
			escape:   true,
			expected: "Hello &lt;script&gt;alert(&#39;xss&#39;)&lt;/script&gt;!",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Substitute(tt.template, tt.data, tt.escape))
		})
	}
}

func TestRenderFallsBackToDefault(t *testing.T) {
	store := NewStore()

	out := store.Render("unknown-event", map[string]any{"subject": "Lift broken", "message": "Floor 3"})

	assert.Equal(t, "Lift broken", out.Subject)
	assert.Equal(t, "<p>Floor 3</p>", out.HTML)
	assert.Equal(t, "Floor 3", out.Text)
	assert.False(t, store.Has("unknown-event"))
}

func TestRenderIsIdempotent(t *testing.T) {
	store := NewStore()
	data := map[string]any{"bookingReference": "BK-1", "amount": 120}

	first := store.Render(domain.EventPaymentFailure, data)
	second := store.Render(domain.EventPaymentFailure, data)

	assert.Equal(t, first, second)
	assert.Equal(t, "Payment failed for booking BK-1", first.Subject)
	assert.Contains(t, first.Text, "120")
	assert.NotContains(t, first.Text, "{{")
}

func TestRegisterReplacesTemplate(t *testing.T) {
	store := NewStore()
	store.Register(domain.Template{EventType: domain.EventGuestMessage, Subject: "Message from {{guestName}}"})

	out := store.Render(domain.EventGuestMessage, map[string]any{"guestName": "Ana"})
	assert.Equal(t, "Message from Ana", out.Subject)
	assert.True(t, store.Has(domain.EventGuestMessage))
}

type fakeSource struct {
	list []*domain.Template
	err  error
}

func (f *fakeSource) List(ctx context.Context) ([]*domain.Template, error) {
	return f.list, f.err
}

func TestLoad(t *testing.T) {
	store := NewStore()
	n, err := store.Load(context.Background(), &fakeSource{list: []*domain.Template{
		{EventType: domain.EventPaymentFailure, Subject: "Custom {{amount}}"},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "Custom 5", store.Render(domain.EventPaymentFailure, map[string]any{"amount": 5}).Subject)

	_, err = store.Load(context.Background(), &fakeSource{err: errors.New("boom")})
	assert.Error(t, err)
}

func TestDecorateSubject(t *testing.T) {
	assert.Equal(t, "[URGENT] Payment failed", DecorateSubject(domain.PriorityImmediate, "Payment failed"))
	assert.Equal(t, "[SUMMARY] Today", DecorateSubject(domain.PriorityDailySummary, "Today"))
	assert.Equal(t, "Booking", DecorateSubject(domain.PriorityNormal, "Booking"))
	assert.Equal(t, "Booking", DecorateSubject("", "Booking"))
}

func TestWrapHTML(t *testing.T) {
	out := WrapHTML(domain.PriorityImmediate, "Payment <failed>", "<p>body</p>")

	assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"))
	assert.Contains(t, out, "<p>body</p>")
	assert.Contains(t, out, "#dc2626")
	assert.Contains(t, out, "Payment &lt;failed&gt;")
}

func BenchmarkSubstitute(b *testing.B) {
	tmpl := "Hello {{name}}, welcome to {{hotel}}! Your booking {{booking}} is confirmed. Visit {{url}} to manage it."
	data := map[string]any{
		"name":    "John Doe",
		"hotel":   "Seaside",
		"booking": "BK-12345",
		"url":     "https://example.com/bookings",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Substitute(tmpl, data, true)
	}
}
