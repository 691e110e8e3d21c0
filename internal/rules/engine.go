package rules

import (
	"fmt"

	"github.com/vhvplatform/go-hotel-notification-service/internal/domain"
)

// PlanEntry is one (role, channel) target contributed by a rule
type PlanEntry struct {
	RuleID      string
	Role        domain.Role
	Channel     domain.Channel
	Priority    domain.Priority
	TemplateKey domain.EventType
	Throttle    *domain.ThrottleSpec
	Conditions  []domain.RuleCondition
}

// Plan is the delivery plan for a single event type
type Plan struct {
	EventType domain.EventType
	Entries   []PlanEntry
}

// Empty reports whether no rule matched
func (p Plan) Empty() bool {
	return len(p.Entries) == 0
}

// Roles returns the distinct roles in plan order
func (p Plan) Roles() []domain.Role {
	seen := make(map[domain.Role]bool)
	var roles []domain.Role
	for _, e := range p.Entries {
		if !seen[e.Role] {
			seen[e.Role] = true
			roles = append(roles, e.Role)
		}
	}
	return roles
}

// Engine turns an event type and a rule set into a delivery plan.
// It holds no state and performs no I/O.
type Engine struct{}

// NewEngine creates a rule engine
func NewEngine() *Engine {
	return &Engine{}
}

// Plan evaluates rules against eventType. Every active matching rule
// contributes one entry per (role, channel) pair. Rules are never modified.
func (e *Engine) Plan(eventType domain.EventType, rules []*domain.NotificationRule) Plan {
	plan := Plan{EventType: eventType}
	for _, rule := range rules {
		if rule == nil || !rule.IsActive || rule.EventType != eventType {
			continue
		}

		templateKey := rule.TemplateKey
		if templateKey == "" {
			templateKey = rule.EventType
		}
		ruleID := ""
		if !rule.ID.IsZero() {
			ruleID = rule.ID.Hex()
		}

		for _, role := range rule.TargetRoles {
			for _, ch := range rule.Channels {
				plan.Entries = append(plan.Entries, PlanEntry{
					RuleID:      ruleID,
					Role:        role,
					Channel:     ch,
					Priority:    rule.Priority,
					TemplateKey: templateKey,
					Throttle:    rule.Throttle,
					Conditions:  rule.Conditions,
				})
			}
		}
	}
	return plan
}

// ValidateRule checks a rule before it is stored
func ValidateRule(rule *domain.NotificationRule) error {
	if rule.EventType == "" {
		return fmt.Errorf("event type is required")
	}
	if len(rule.TargetRoles) == 0 {
		return fmt.Errorf("at least one target role is required")
	}
	if len(rule.Channels) == 0 {
		return fmt.Errorf("at least one channel is required")
	}
	for _, ch := range rule.Channels {
		if !ch.Valid() {
			return fmt.Errorf("unknown channel %q", ch)
		}
	}
	if rule.Priority != "" && !rule.Priority.Valid() {
		return fmt.Errorf("unknown priority %q", rule.Priority)
	}
	if rule.Throttle != nil && rule.Throttle.MinInterval < 0 {
		return fmt.Errorf("throttle interval must not be negative")
	}
	return nil
}
