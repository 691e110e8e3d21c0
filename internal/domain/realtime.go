package domain

import "time"

// Scope is the (organization, property) pair used to filter connections.
// Empty fields are unset.
type Scope struct {
	OrganizationID string `json:"organization_id,omitempty" bson:"organizationId,omitempty"`
	PropertyID     string `json:"property_id,omitempty" bson:"propertyId,omitempty"`
}

// RealtimeMessage is the structured payload pushed to in-app clients
type RealtimeMessage struct {
	ID             string         `json:"id" bson:"id"`
	Kind           string         `json:"kind" bson:"kind"` // notification, broadcast, replay
	EventType      EventType      `json:"event_type" bson:"eventType"`
	Priority       Priority       `json:"priority" bson:"priority"`
	Subject        string         `json:"subject" bson:"subject"`
	Text           string         `json:"text" bson:"text"`
	Data           map[string]any `json:"data,omitempty" bson:"data,omitempty"`
	OrganizationID string         `json:"organization_id,omitempty" bson:"organizationId,omitempty"`
	PropertyID     string         `json:"property_id,omitempty" bson:"propertyId,omitempty"`
	CreatedAt      time.Time      `json:"created_at" bson:"createdAt"`
}

// RenderedMessage is the output of the template store for one recipient
type RenderedMessage struct {
	EventID        string         `json:"event_id" bson:"eventId"`
	EventType      EventType      `json:"event_type" bson:"eventType"`
	Priority       Priority       `json:"priority" bson:"priority"`
	Subject        string         `json:"subject" bson:"subject"`
	HTML           string         `json:"html" bson:"html"`
	Text           string         `json:"text" bson:"text"`
	Data           map[string]any `json:"data,omitempty" bson:"data,omitempty"`
	OrganizationID string         `json:"organization_id,omitempty" bson:"organizationId,omitempty"`
	PropertyID     string         `json:"property_id,omitempty" bson:"propertyId,omitempty"`
	CreatedAt      time.Time      `json:"created_at" bson:"createdAt"`
}

// ToRealtime converts the rendered fields into the in-app payload
func (m *RenderedMessage) ToRealtime(id string) *RealtimeMessage {
	return &RealtimeMessage{
		ID:             id,
		Kind:           "notification",
		EventType:      m.EventType,
		Priority:       m.Priority,
		Subject:        m.Subject,
		Text:           m.Text,
		Data:           m.Data,
		OrganizationID: m.OrganizationID,
		PropertyID:     m.PropertyID,
		CreatedAt:      m.CreatedAt,
	}
}

// RegistryStats is a read-only snapshot of the connection registry
type RegistryStats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveUsers      int            `json:"active_users"`
	ConnectionsByOrg map[string]int `json:"connections_by_org"`
}
