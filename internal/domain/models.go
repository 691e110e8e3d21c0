package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EventType identifies a category of business occurrence
type EventType string

const (
	EventBookingCreated       EventType = "booking-created"
	EventBookingCancelled     EventType = "booking-cancelled"
	EventBookingModified      EventType = "booking-modified"
	EventGuestCheckIn         EventType = "guest-check-in"
	EventGuestCheckOut        EventType = "guest-check-out"
	EventPaymentReceived      EventType = "payment-received"
	EventPaymentFailure       EventType = "payment-failure"
	EventRoomServiceRequest   EventType = "room-service-request"
	EventHousekeepingRequest  EventType = "housekeeping-request"
	EventMaintenanceRequest   EventType = "maintenance-request"
	EventGuestMessage         EventType = "guest-message"
	EventDocumentVerification EventType = "document-verification"
	EventSystemAlert          EventType = "system-alert"
	EventDailySummary         EventType = "daily-summary"
)

// Priority of a notification
type Priority string

const (
	PriorityImmediate    Priority = "immediate"
	PriorityNormal       Priority = "normal"
	PriorityDailySummary Priority = "daily-summary"
)

// Valid reports whether p is a known priority
func (p Priority) Valid() bool {
	switch p {
	case PriorityImmediate, PriorityNormal, PriorityDailySummary:
		return true
	}
	return false
}

// Channel is a delivery medium
type Channel string

const (
	ChannelInApp Channel = "in-app"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Valid reports whether c is a known channel
func (c Channel) Valid() bool {
	switch c {
	case ChannelInApp, ChannelEmail, ChannelSMS:
		return true
	}
	return false
}

// Role is a staff role a rule can target
type Role string

const (
	RoleFrontDesk    Role = "front-desk"
	RoleHousekeeping Role = "housekeeping"
	RoleManager      Role = "manager"
	RoleMaintenance  Role = "maintenance"
	RoleAdmin        Role = "admin"
)

// NotificationEvent is a business event handed to the orchestrator. It is not
// modified once submitted.
type NotificationEvent struct {
	ID             string         `json:"id" bson:"id"`
	Type           EventType      `json:"type" bson:"type" binding:"required"`
	Priority       Priority       `json:"priority" bson:"priority"`
	Subject        string         `json:"subject" bson:"subject"`
	Message        string         `json:"message" bson:"message"`
	Data           map[string]any `json:"data,omitempty" bson:"data,omitempty"`
	OrganizationID string         `json:"organization_id,omitempty" bson:"organizationId,omitempty"`
	PropertyID     string         `json:"property_id,omitempty" bson:"propertyId,omitempty"`
	CreatedAt      time.Time      `json:"created_at" bson:"createdAt"`
}

// RuleCondition is an optional predicate attached to a rule. Conditions are
// stored and carried through planning but not evaluated.
type RuleCondition struct {
	Field    string `json:"field" bson:"field"`
	Operator string `json:"operator" bson:"operator"`
	Value    any    `json:"value" bson:"value"`
}

// ThrottleSpec is the minimum interval between repeated sends of one rule to one recipient
type ThrottleSpec struct {
	MinInterval time.Duration `json:"min_interval" bson:"minInterval"`
}

// NotificationRule maps an event type to roles, channels, priority and a template
type NotificationRule struct {
	ID             primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	OrganizationID string             `json:"organization_id" bson:"organizationId"`
	Name           string             `json:"name" bson:"name"`
	EventType      EventType          `json:"event_type" bson:"eventType" binding:"required"`
	Priority       Priority           `json:"priority" bson:"priority"`
	TargetRoles    []Role             `json:"target_roles" bson:"targetRoles" binding:"required,min=1"`
	Channels       []Channel          `json:"channels" bson:"channels" binding:"required,min=1"`
	IsActive       bool               `json:"is_active" bson:"isActive"`
	Conditions     []RuleCondition    `json:"conditions,omitempty" bson:"conditions,omitempty"`
	Throttle       *ThrottleSpec      `json:"throttle,omitempty" bson:"throttle,omitempty"`
	TemplateKey    EventType          `json:"template_key,omitempty" bson:"templateKey,omitempty"`
	CreatedAt      time.Time          `json:"created_at" bson:"createdAt"`
	UpdatedAt      time.Time          `json:"updated_at" bson:"updatedAt"`
}

// Template holds subject, html and text with {{variable}} placeholders
type Template struct {
	EventType EventType `json:"event_type" bson:"eventType"`
	Subject   string    `json:"subject" bson:"subject"`
	HTML      string    `json:"html" bson:"html"`
	Text      string    `json:"text" bson:"text"`
	Variables []string  `json:"variables,omitempty" bson:"variables,omitempty"`
	UpdatedAt time.Time `json:"updated_at" bson:"updatedAt"`
}

// Recipient is a staff member resolved from a role
type Recipient struct {
	UserID         string `json:"user_id" bson:"userId"`
	Name           string `json:"name" bson:"name"`
	Email          string `json:"email,omitempty" bson:"email,omitempty"`
	Phone          string `json:"phone,omitempty" bson:"phone,omitempty"`
	Role           Role   `json:"role" bson:"role"`
	OrganizationID string `json:"organization_id" bson:"organizationId"`
	PropertyID     string `json:"property_id,omitempty" bson:"propertyId,omitempty"`
	Active         bool   `json:"active" bson:"active"`
}

// AddressFor returns the recipient address used on channel
func (r Recipient) AddressFor(ch Channel) string {
	switch ch {
	case ChannelInApp:
		return r.UserID
	case ChannelEmail:
		return r.Email
	case ChannelSMS:
		return r.Phone
	}
	return ""
}

// PendingNotification is a real-time message queued for a user with no live connection
type PendingNotification struct {
	ID             primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserID         string             `json:"user_id" bson:"userId"`
	OrganizationID string             `json:"organization_id,omitempty" bson:"organizationId,omitempty"`
	PropertyID     string             `json:"property_id,omitempty" bson:"propertyId,omitempty"`
	Payload        RealtimeMessage    `json:"payload" bson:"payload"`
	Delivered      bool               `json:"delivered" bson:"delivered"`
	DeliveredAt    *time.Time         `json:"delivered_at,omitempty" bson:"deliveredAt,omitempty"`
	CreatedAt      time.Time          `json:"created_at" bson:"createdAt"`
}

// DeliveryResult is the outcome of one (recipient, channel) attempt
type DeliveryResult struct {
	RecipientID string  `json:"recipient_id"`
	Channel     Channel `json:"channel"`
	Address     string  `json:"address,omitempty"`
	RuleID      string  `json:"rule_id,omitempty"`
	Success     bool    `json:"success"`
	Queued      bool    `json:"queued,omitempty"`
	MessageID   string  `json:"message_id,omitempty"`
	Error       string  `json:"error,omitempty"`
}

// SubmitOutcome describes what happened to an event as a whole
type SubmitOutcome string

const (
	OutcomeDispatched       SubmitOutcome = "dispatched"
	OutcomeNoRuleConfigured SubmitOutcome = "no_rule_configured"
)

// SubmitResult is the best-effort summary returned to event producers
type SubmitResult struct {
	EventID         string           `json:"event_id"`
	Outcome         SubmitOutcome    `json:"outcome"`
	Sent            int              `json:"sent"`
	Failed          int              `json:"failed"`
	Throttled       int              `json:"throttled"`
	DeliveryResults []DeliveryResult `json:"delivery_results"`
}

// DeliveryLog is the audit record of one delivery attempt
type DeliveryLog struct {
	ID             primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	EventID        string             `json:"event_id" bson:"eventId"`
	EventType      EventType          `json:"event_type" bson:"eventType"`
	OrganizationID string             `json:"organization_id" bson:"organizationId"`
	PropertyID     string             `json:"property_id,omitempty" bson:"propertyId,omitempty"`
	RuleID         string             `json:"rule_id,omitempty" bson:"ruleId,omitempty"`
	RecipientID    string             `json:"recipient_id" bson:"recipientId"`
	Channel        Channel            `json:"channel" bson:"channel"`
	Address        string             `json:"address,omitempty" bson:"address,omitempty"`
	Priority       Priority           `json:"priority" bson:"priority"`
	Subject        string             `json:"subject" bson:"subject"`
	Success        bool               `json:"success" bson:"success"`
	Queued         bool               `json:"queued" bson:"queued"`
	MessageID      string             `json:"message_id,omitempty" bson:"messageId,omitempty"`
	Error          string             `json:"error,omitempty" bson:"error,omitempty"`
	CreatedAt      time.Time          `json:"created_at" bson:"createdAt"`
}

// FailedDelivery is a failed email or sms attempt kept for manual retry
type FailedDelivery struct {
	ID             primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	EventID        string             `json:"event_id" bson:"eventId"`
	OrganizationID string             `json:"organization_id" bson:"organizationId"`
	RecipientID    string             `json:"recipient_id" bson:"recipientId"`
	Channel        Channel            `json:"channel" bson:"channel"`
	Address        string             `json:"address" bson:"address"`
	Message        RenderedMessage    `json:"message" bson:"message"`
	Error          string             `json:"error" bson:"error"`
	RetryCount     int                `json:"retry_count" bson:"retryCount"`
	FailedAt       time.Time          `json:"failed_at" bson:"failedAt"`
}

// EmailBounce represents an email bounce record
type EmailBounce struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Email     string             `json:"email" bson:"email"`
	Type      string             `json:"type" bson:"type"` // hard, soft, complaint
	Reason    string             `json:"reason" bson:"reason"`
	Timestamp time.Time          `json:"timestamp" bson:"timestamp"`
	CreatedAt time.Time          `json:"created_at" bson:"createdAt"`
}
