package dispatcher

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

// Sender sends a prepared gomail message
type Sender interface {
	Send(msg *gomail.Message) error
}

// SMTPTransport sends email through an SMTP session pool
type SMTPTransport struct {
	sender    Sender
	fromEmail string
	fromName  string
}

// NewSMTPTransport creates an EmailTransport over SMTP
func NewSMTPTransport(sender Sender, fromEmail, fromName string) *SMTPTransport {
	return &SMTPTransport{sender: sender, fromEmail: fromEmail, fromName: fromName}
}

// Send implements EmailTransport
func (t *SMTPTransport) Send(ctx context.Context, email *OutboundEmail) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	msg, id := t.buildMessage(email)
	if err := t.sender.Send(msg); err != nil {
		return "", err
	}
	return id, nil
}

func (t *SMTPTransport) buildMessage(email *OutboundEmail) (*gomail.Message, string) {
	domainPart := "localhost"
	if at := strings.LastIndex(t.fromEmail, "@"); at >= 0 && at < len(t.fromEmail)-1 {
		domainPart = t.fromEmail[at+1:]
	}
	id := fmt.Sprintf("<%s@%s>", uuid.NewString(), domainPart)

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", t.fromEmail, t.fromName)
	msg.SetHeader("To", email.To)
	msg.SetHeader("Subject", email.Subject)
	msg.SetHeader("Message-ID", id)
	if email.ReplyTo != "" {
		msg.SetHeader("Reply-To", email.ReplyTo)
	}

	keys := make([]string, 0, len(email.Headers))
	for k := range email.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		msg.SetHeader(k, email.Headers[k])
	}

	switch {
	case email.Text != "" && email.HTML != "":
		msg.SetBody("text/plain", email.Text)
		msg.AddAlternative("text/html", email.HTML)
	case email.HTML != "":
		msg.SetBody("text/html", email.HTML)
	default:
		msg.SetBody("text/plain", email.Text)
	}
	return msg, id
}
