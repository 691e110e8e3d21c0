package rules

import (
	"time"

	"github.com/vhvplatform/go-hotel-notification-service/internal/domain"
)

// DefaultRules returns the rule set seeded for a new organization
func DefaultRules(organizationID string) []*domain.NotificationRule {
	now := time.Now()
	newRule := func(name string, eventType domain.EventType, priority domain.Priority, roles []domain.Role, channels []domain.Channel) *domain.NotificationRule {
		return &domain.NotificationRule{
			OrganizationID: organizationID,
			Name:           name,
			EventType:      eventType,
			Priority:       priority,
			TargetRoles:    roles,
			Channels:       channels,
			IsActive:       true,
			TemplateKey:    eventType,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
	}

	systemAlert := newRule("System alerts", domain.EventSystemAlert, domain.PriorityImmediate,
		[]domain.Role{domain.RoleAdmin, domain.RoleManager},
		[]domain.Channel{domain.ChannelInApp, domain.ChannelEmail})
	systemAlert.Throttle = &domain.ThrottleSpec{MinInterval: 15 * time.Minute}

	return []*domain.NotificationRule{
		newRule("Payment failures", domain.EventPaymentFailure, domain.PriorityImmediate,
			[]domain.Role{domain.RoleFrontDesk, domain.RoleManager},
			[]domain.Channel{domain.ChannelInApp, domain.ChannelEmail}),
		newRule("New bookings", domain.EventBookingCreated, domain.PriorityNormal,
			[]domain.Role{domain.RoleFrontDesk},
			[]domain.Channel{domain.ChannelInApp}),
		newRule("Cancelled bookings", domain.EventBookingCancelled, domain.PriorityNormal,
			[]domain.Role{domain.RoleFrontDesk, domain.RoleHousekeeping},
			[]domain.Channel{domain.ChannelInApp}),
		newRule("Check-ins", domain.EventGuestCheckIn, domain.PriorityNormal,
			[]domain.Role{domain.RoleFrontDesk, domain.RoleHousekeeping},
			[]domain.Channel{domain.ChannelInApp}),
		newRule("Check-outs", domain.EventGuestCheckOut, domain.PriorityNormal,
			[]domain.Role{domain.RoleHousekeeping},
			[]domain.Channel{domain.ChannelInApp}),
		newRule("Room service", domain.EventRoomServiceRequest, domain.PriorityImmediate,
			[]domain.Role{domain.RoleFrontDesk, domain.RoleHousekeeping},
			[]domain.Channel{domain.ChannelInApp}),
		newRule("Housekeeping requests", domain.EventHousekeepingRequest, domain.PriorityNormal,
			[]domain.Role{domain.RoleHousekeeping},
			[]domain.Channel{domain.ChannelInApp}),
		newRule("Maintenance requests", domain.EventMaintenanceRequest, domain.PriorityImmediate,
			[]domain.Role{domain.RoleMaintenance},
			[]domain.Channel{domain.ChannelInApp, domain.ChannelSMS}),
		newRule("Guest messages", domain.EventGuestMessage, domain.PriorityNormal,
			[]domain.Role{domain.RoleFrontDesk},
			[]domain.Channel{domain.ChannelInApp}),
		newRule("Document verification", domain.EventDocumentVerification, domain.PriorityNormal,
			[]domain.Role{domain.RoleFrontDesk, domain.RoleManager},
			[]domain.Channel{domain.ChannelInApp}),
		systemAlert,
		newRule("Daily summary", domain.EventDailySummary, domain.PriorityDailySummary,
			[]domain.Role{domain.RoleManager},
			[]domain.Channel{domain.ChannelEmail}),
	}
}
