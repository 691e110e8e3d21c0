package dispatcher

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/vhvplatform/go-hotel-notification-service/internal/domain"
)

type fakeRegistry struct {
	live      bool
	userMsgs  []*domain.RealtimeMessage
	orgMsgs   []*domain.RealtimeMessage
	orgResult int
}

func (f *fakeRegistry) SendToUser(ctx context.Context, userID string, msg *domain.RealtimeMessage) bool {
	f.userMsgs = append(f.userMsgs, msg)
	return f.live
}

func (f *fakeRegistry) SendToOrganization(ctx context.Context, orgID string, msg *domain.RealtimeMessage) int {
	f.orgMsgs = append(f.orgMsgs, msg)
	return f.orgResult
}

type fakeEmailTransport struct {
	sent    []*OutboundEmail
	failFor map[string]error
}

func (f *fakeEmailTransport) Send(ctx context.Context, email *OutboundEmail) (string, error) {
	if err := f.failFor[email.To]; err != nil {
		return "", err
	}
	f.sent = append(f.sent, email)
	return "msg-" + email.To, nil
}

type fakeBounces map[string]bool

func (f fakeBounces) IsBounced(ctx context.Context, email string) (bool, error) {
	return f[email], nil
}

func rendered(priority domain.Priority) *domain.RenderedMessage {
	return &domain.RenderedMessage{
		EventID:        "evt-1",
		EventType:      domain.EventPaymentFailure,
		Priority:       priority,
		Subject:        "Payment failed",
		HTML:           "<p>Card declined</p>",
		Text:           "Card declined",
		OrganizationID: "org-1",
	}
}

func TestRealtimeDispatcher(t *testing.T) {
	reg := &fakeRegistry{live: true}
	d := NewRealtimeDispatcher(reg)
	assert.Equal(t, domain.ChannelInApp, d.Channel())

	res := d.Deliver(context.Background(), "user-1", rendered(domain.PriorityImmediate))
	assert.True(t, res.Success)
	assert.False(t, res.Queued)
	require.Len(t, reg.userMsgs, 1)
	assert.Equal(t, "Payment failed", reg.userMsgs[0].Subject, "in-app keeps the undecorated subject")
	assert.Equal(t, res.MessageID, reg.userMsgs[0].ID)

	reg.live = false
	res = d.Deliver(context.Background(), "user-1", rendered(domain.PriorityNormal))
	assert.True(t, res.Success)
	assert.True(t, res.Queued)

	res = d.Deliver(context.Background(), "", rendered(domain.PriorityNormal))
	assert.False(t, res.Success)
}

func TestRealtimeBroadcast(t *testing.T) {
	reg := &fakeRegistry{orgResult: 3}
	d := NewRealtimeDispatcher(reg)

	n := d.Broadcast(context.Background(), "org-1", &domain.RealtimeMessage{Subject: "Fire drill"})
	assert.Equal(t, 3, n)
	require.Len(t, reg.orgMsgs, 1)
	assert.Equal(t, "broadcast", reg.orgMsgs[0].Kind)
	assert.Equal(t, "org-1", reg.orgMsgs[0].OrganizationID)
	assert.NotEmpty(t, reg.orgMsgs[0].ID)
}

func TestEmailDispatcherDecoratesAndWraps(t *testing.T) {
	transport := &fakeEmailTransport{}
	d := NewEmailDispatcher(transport, nil, EmailConfig{ReplyTo: "frontdesk@hotel.example"}, nil)

	res := d.Deliver(context.Background(), "manager@hotel.example", rendered(domain.PriorityImmediate))

	require.True(t, res.Success)
	assert.Equal(t, "msg-manager@hotel.example", res.MessageID)
	require.Len(t, transport.sent, 1)
	email := transport.sent[0]
	assert.Equal(t, "[URGENT] Payment failed", email.Subject)
	assert.Contains(t, email.HTML, "<p>Card declined</p>")
	assert.Contains(t, email.HTML, "<!DOCTYPE html>")
	assert.Equal(t, "Card declined", email.Text)
	assert.Equal(t, "frontdesk@hotel.example", email.ReplyTo)
	assert.Equal(t, "evt-1", email.Headers["X-Event-ID"])
	assert.Equal(t, "1", email.Headers["X-Priority"])
}

func TestEmailDispatcherFailures(t *testing.T) {
	ctx := context.Background()

	notConfigured := NewEmailDispatcher(nil, nil, EmailConfig{}, nil)
	res := notConfigured.Deliver(ctx, "a@example.com", rendered(domain.PriorityNormal))
	assert.False(t, res.Success)
	assert.Equal(t, "email transport not configured", res.Error)

	transport := &fakeEmailTransport{failFor: map[string]error{"b@example.com": errors.New("mailbox full")}}
	d := NewEmailDispatcher(transport, fakeBounces{"c@example.com": true}, EmailConfig{}, nil)

	res = d.Deliver(ctx, "b@example.com", rendered(domain.PriorityNormal))
	assert.False(t, res.Success)
	assert.Equal(t, "mailbox full", res.Error)

	res = d.Deliver(ctx, "c@example.com", rendered(domain.PriorityNormal))
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "bounce")

	res = d.Deliver(ctx, "  ", rendered(domain.PriorityNormal))
	assert.False(t, res.Success)
	assert.Empty(t, transport.sent)
}

func TestEmailSendBulk(t *testing.T) {
	transport := &fakeEmailTransport{failFor: map[string]error{"b@example.com": errors.New("rejected")}}
	d := NewEmailDispatcher(transport, nil, EmailConfig{BulkInterval: time.Millisecond}, nil)

	result := d.SendBulk(context.Background(), []string{"a@example.com", "b@example.com", "c@example.com"}, rendered(domain.PriorityDailySummary))

	assert.Equal(t, 2, result.Sent)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Results, 3)
	assert.False(t, result.Results[1].Success)
	assert.Equal(t, "[SUMMARY] Payment failed", transport.sent[0].Subject)
}

func TestEmailSendBulkCancelled(t *testing.T) {
	transport := &fakeEmailTransport{}
	d := NewEmailDispatcher(transport, nil, EmailConfig{BulkInterval: time.Hour}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := d.SendBulk(ctx, []string{"a@example.com", "b@example.com"}, rendered(domain.PriorityNormal))
	assert.Equal(t, 2, result.Failed)
	assert.Empty(t, transport.sent)
}

type captureSender struct {
	msgs []*gomail.Message
	err  error
}

func (c *captureSender) Send(msg *gomail.Message) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, msg)
	return nil
}

func TestSMTPTransport(t *testing.T) {
	sender := &captureSender{}
	transport := NewSMTPTransport(sender, "noreply@hotel.example", "Seaside Hotel")

	id, err := transport.Send(context.Background(), &OutboundEmail{
		To:      "manager@hotel.example",
		Subject: "[URGENT] Payment failed",
		HTML:    "<p>x</p>",
		Text:    "x",
		ReplyTo: "frontdesk@hotel.example",
		Headers: map[string]string{"X-Event-ID": "evt-1"},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(id, "@hotel.example>"))
	require.Len(t, sender.msgs, 1)

	msg := sender.msgs[0]
	assert.Equal(t, []string{"manager@hotel.example"}, msg.GetHeader("To"))
	assert.Equal(t, []string{"frontdesk@hotel.example"}, msg.GetHeader("Reply-To"))
	assert.Equal(t, []string{"evt-1"}, msg.GetHeader("X-Event-ID"))
	assert.Equal(t, []string{id}, msg.GetHeader("Message-ID"))

	var buf bytes.Buffer
	_, err = msg.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "text/html")
	assert.Contains(t, buf.String(), "text/plain")

	sender.err = errors.New("451 try later")
	_, err = transport.Send(context.Background(), &OutboundEmail{To: "a@example.com", Text: "x"})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = transport.Send(ctx, &OutboundEmail{To: "a@example.com"})
	assert.ErrorIs(t, err, context.Canceled)
}

type fakeSMS struct {
	bodies []string
	err    error
}

func (f *fakeSMS) Send(ctx context.Context, to, body string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.bodies = append(f.bodies, body)
	return "sms-1", nil
}

func TestSMSDispatcher(t *testing.T) {
	ctx := context.Background()

	res := NewSMSDispatcher(nil, nil).Deliver(ctx, "+15550001", rendered(domain.PriorityImmediate))
	assert.False(t, res.Success)
	assert.Equal(t, "sms transport not configured", res.Error)

	transport := &fakeSMS{}
	d := NewSMSDispatcher(transport, nil)
	res = d.Deliver(ctx, "+15550001", rendered(domain.PriorityImmediate))
	require.True(t, res.Success)
	assert.Equal(t, "sms-1", res.MessageID)
	assert.Equal(t, []string{"[URGENT] Payment failed: Card declined"}, transport.bodies)

	res = d.Deliver(ctx, "", rendered(domain.PriorityNormal))
	assert.False(t, res.Success)

	transport.err = errors.New("invalid number")
	res = d.Deliver(ctx, "+1", rendered(domain.PriorityNormal))
	assert.False(t, res.Success)
	assert.Equal(t, "invalid number", res.Error)
}

func TestSMSBodyTruncated(t *testing.T) {
	msg := rendered(domain.PriorityNormal)
	msg.Text = strings.Repeat("a", 1000)
	body := smsBody(msg)
	assert.Len(t, []rune(body), maxSMSLength)
	assert.True(t, strings.HasSuffix(body, "..."))
}

func TestNewSet(t *testing.T) {
	set := NewSet(NewRealtimeDispatcher(&fakeRegistry{}), NewSMSDispatcher(nil, nil), nil)
	_, ok := set.Get(domain.ChannelInApp)
	assert.True(t, ok)
	_, ok = set.Get(domain.ChannelEmail)
	assert.False(t, ok)
}

func TestWSPusher(t *testing.T) {
	upgrader := websocket.Upgrader{}
	pushed := make(chan error, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			pushed <- err
			return
		}
		pusher := NewWSPusher(conn)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		pushed <- pusher.Push(ctx, &domain.RealtimeMessage{ID: "m1", Subject: "hello"})
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer client.Close()

	var got domain.RealtimeMessage
	require.NoError(t, client.ReadJSON(&got))
	assert.Equal(t, "m1", got.ID)
	assert.Equal(t, "hello", got.Subject)
	assert.NoError(t, <-pushed)
}
