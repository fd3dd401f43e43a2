package mailer

import (
	"context"
	"fmt"
	"time"

	"github.com/jmehdipour/email-gateway/internal/model"
	"github.com/wneessen/go-mail"
)

// SMTPTransport submits mail over SMTP with STARTTLS and PLAIN auth.
type SMTPTransport struct {
	timeout     time.Duration
	defaultPort int
}

func NewSMTPTransport(timeout time.Duration, defaultPort int) *SMTPTransport {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if defaultPort <= 0 {
		defaultPort = 587
	}
	return &SMTPTransport{timeout: timeout, defaultPort: defaultPort}
}

var _ Transport = (*SMTPTransport)(nil)

func (t *SMTPTransport) Send(ctx context.Context, p model.SMTPProfile, m model.Mail) error {
	msg := mail.NewMsg()

	from := m.From
	if from == "" {
		from = p.Username
	}
	if err := msg.From(from); err != nil {
		return fmt.Errorf("from %q: %w", from, err)
	}
	if err := msg.To(m.To); err != nil {
		return fmt.Errorf("to %q: %w", m.To, err)
	}
	msg.Subject(m.Subject)

	ct := mail.TypeTextPlain
	if m.IsHTML {
		ct = mail.TypeTextHTML
	}
	msg.SetBodyString(ct, m.Body)

	port := p.Port
	if port <= 0 {
		port = t.defaultPort
	}

	client, err := mail.NewClient(p.Server,
		mail.WithPort(port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(p.Username),
		mail.WithPassword(p.Password),
		mail.WithTLSPortPolicy(mail.TLSMandatory),
		mail.WithTimeout(t.timeout),
	)
	if err != nil {
		return fmt.Errorf("smtp client %s:%d: %w", p.Server, port, err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send %s:%d: %w", p.Server, port, err)
	}
	return nil
}
