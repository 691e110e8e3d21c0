package templates

import (
	"bytes"
	"html/template"

	"github.com/vhvplatform/go-hotel-notification-service/internal/domain"
)

var emailLayout = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>{{.Subject}}</title></head>
<body style="margin:0;padding:24px;background:#f4f4f5;font-family:Arial,sans-serif;">
<div style="max-width:600px;margin:0 auto;background:#ffffff;border-left:6px solid {{.Color}};">
<div style="padding:16px 24px;border-bottom:1px solid #e4e4e7;">
<span style="color:{{.Color}};font-weight:bold;">{{.Label}}</span>
<h2 style="margin:8px 0 0 0;">{{.Subject}}</h2>
</div>
<div style="padding:24px;">{{.Body}}</div>
<div style="padding:12px 24px;font-size:12px;color:#71717a;border-top:1px solid #e4e4e7;">
This is an automated notification from your property management system.
</div>
</div>
</body>
</html>`))

type layoutData struct {
	Subject string
	Body    template.HTML
	Color   string
	Label   string
}

func priorityStyle(p domain.Priority) (color, label string) {
	switch p {
	case domain.PriorityImmediate:
		return "#dc2626", "Urgent"
	case domain.PriorityDailySummary:
		return "#2563eb", "Summary"
	default:
		return "#6b7280", "Notification"
	}
}

// WrapHTML places an already-substituted html body into the email layout.
// body is trusted: values were escaped during substitution.
func WrapHTML(priority domain.Priority, subject, body string) string {
	color, label := priorityStyle(priority)
	var buf bytes.Buffer
	err := emailLayout.Execute(&buf, layoutData{
		Subject: subject,
		Body:    template.HTML(body),
		Color:   color,
		Label:   label,
	})
	if err != nil {
		return body
	}
	return buf.String()
}
