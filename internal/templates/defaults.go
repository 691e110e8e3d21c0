package templates

import "github.com/vhvplatform/go-hotel-notification-service/internal/domain"

// DefaultTemplate is used for event types with no registered template.
// It renders the event's own subject and message.
func DefaultTemplate() domain.Template {
	return domain.Template{
		EventType: "default",
		Subject:   "{{subject}}",
		HTML:      "<p>{{message}}</p>",
		Text:      "{{message}}",
		Variables: []string{"subject", "message"},
	}
}

func builtinTemplates() []domain.Template {
	return []domain.Template{
		{
			EventType: domain.EventPaymentFailure,
			Subject:   "Payment failed for booking {{bookingReference}}",
			HTML:      "<p>A payment of <strong>{{amount}} {{currency}}</strong> for guest {{guestName}} failed.</p><p>{{message}}</p>",
			Text:      "A payment of {{amount}} {{currency}} for guest {{guestName}} failed. {{message}}",
			Variables: []string{"bookingReference", "amount", "currency", "guestName", "message"},
		},
		{
			EventType: domain.EventBookingCreated,
			Subject:   "New booking {{bookingReference}}",
			HTML:      "<p>{{guestName}} booked room {{roomNumber}} from {{checkIn}} to {{checkOut}}.</p>",
			Text:      "{{guestName}} booked room {{roomNumber}} from {{checkIn}} to {{checkOut}}.",
			Variables: []string{"bookingReference", "guestName", "roomNumber", "checkIn", "checkOut"},
		},
		{
			EventType: domain.EventRoomServiceRequest,
			Subject:   "Room service request for room {{roomNumber}}",
			HTML:      "<p>Room {{roomNumber}} requested: {{request}}</p>",
			Text:      "Room {{roomNumber}} requested: {{request}}",
			Variables: []string{"roomNumber", "request"},
		},
		{
			EventType: domain.EventMaintenanceRequest,
			Subject:   "Maintenance needed in {{location}}",
			HTML:      "<p>{{description}}</p><p>Reported by {{reportedBy}}</p>",
			Text:      "{{description}} (reported by {{reportedBy}})",
			Variables: []string{"location", "description", "reportedBy"},
		},
		{
			EventType: domain.EventDailySummary,
			Subject:   "{{summaryCount}} notifications today",
			HTML:      "<p>You have {{summaryCount}} notifications.</p><pre>{{summaryItems}}</pre>",
			Text:      "You have {{summaryCount}} notifications.\n{{summaryItems}}",
			Variables: []string{"summaryCount", "summaryItems"},
		},
	}
}
