package domain

// SubmitEventRequest is the HTTP body for submitting a business event
type SubmitEventRequest struct {
	Type       EventType      `json:"type" binding:"required"`
	Priority   Priority       `json:"priority"`
	Subject    string         `json:"subject"`
	Message    string         `json:"message"`
	Data       map[string]any `json:"data,omitempty"`
	PropertyID string         `json:"property_id,omitempty"`
}

// BroadcastRequest pushes a message to every matching live connection of an organization
type BroadcastRequest struct {
	PropertyID string         `json:"property_id,omitempty"`
	Subject    string         `json:"subject" binding:"required"`
	Text       string         `json:"text"`
	Priority   Priority       `json:"priority"`
	Data       map[string]any `json:"data,omitempty"`
}

// UpsertTemplateRequest replaces the template of an event type
type UpsertTemplateRequest struct {
	Subject   string   `json:"subject" binding:"required"`
	HTML      string   `json:"html"`
	Text      string   `json:"text"`
	Variables []string `json:"variables,omitempty"`
}

// ListDeliveriesRequest pages the delivery history of an organization
type ListDeliveriesRequest struct {
	EventType EventType `form:"event_type"`
	Channel   Channel   `form:"channel"`
	Page      int       `form:"page"`
	PageSize  int       `form:"page_size"`
}
