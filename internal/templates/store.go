package templates

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"sync"

	"github.com/vhvplatform/go-hotel-notification-service/internal/domain"
)

// placeholderPattern matches {{key}} with optional inner whitespace
var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// Rendered is the substituted subject, html and text of a template
type Rendered struct {
	Subject string
	HTML    string
	Text    string
}

// Source lists persisted templates, used to warm the store at startup
type Source interface {
	List(ctx context.Context) ([]*domain.Template, error)
}

// Store maps event types to templates. Lookups never fail: unknown types
// resolve to the default template.
type Store struct {
	mu        sync.RWMutex
	templates map[domain.EventType]domain.Template
	fallback  domain.Template
}

// NewStore creates a store seeded with the built-in templates
func NewStore() *Store {
	s := &Store{
		templates: make(map[domain.EventType]domain.Template),
		fallback:  DefaultTemplate(),
	}
	for _, t := range builtinTemplates() {
		s.templates[t.EventType] = t
	}
	return s
}

// Load registers every template returned by src, replacing built-ins of the same type
func (s *Store) Load(ctx context.Context, src Source) (int, error) {
	list, err := src.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list templates: %w", err)
	}
	for _, t := range list {
		if t != nil {
			s.Register(*t)
		}
	}
	return len(list), nil
}

// Register adds or replaces the template for t.EventType
func (s *Store) Register(t domain.Template) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.EventType] = t
}

// Get returns the template for eventType, or the default template
func (s *Store) Get(eventType domain.EventType) domain.Template {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.templates[eventType]; ok {
		return t
	}
	return s.fallback
}

// Has reports whether a template other than the default is registered for eventType
func (s *Store) Has(eventType domain.EventType) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.templates[eventType]
	return ok
}

// Render substitutes data into the template of eventType. Missing keys
// render as empty strings. Values placed into the html body are escaped.
func (s *Store) Render(eventType domain.EventType, data map[string]any) Rendered {
	t := s.Get(eventType)
	return Rendered{
		Subject: Substitute(t.Subject, data, false),
		HTML:    Substitute(t.HTML, data, true),
		Text:    Substitute(t.Text, data, false),
	}
}

// Substitute replaces every {{key}} in tmpl with the string form of data[key]
func Substitute(tmpl string, data map[string]any, escapeHTML bool) string {
	if tmpl == "" {
		return ""
	}
	return placeholderPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		value := stringify(data[key])
		if escapeHTML {
			return html.EscapeString(value)
		}
		return value
	})
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// DecorateSubject prefixes subject according to priority
func DecorateSubject(priority domain.Priority, subject string) string {
	switch priority {
	case domain.PriorityImmediate:
		return "[URGENT] " + subject
	case domain.PriorityDailySummary:
		return "[SUMMARY] " + subject
	default:
		return subject
	}
}
