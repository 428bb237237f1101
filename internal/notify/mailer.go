package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Message struct {
	From    string
	To      []string
	Subject string
	Body    string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// AddressBook maps user ids to email addresses. Unknown ids are skipped.
type AddressBook interface {
	Addresses(ctx context.Context, userIDs []uuid.UUID) ([]string, error)
}

// LogMailer writes messages to the log instead of sending them.
type LogMailer struct {
	Logger *zap.Logger
}

func (m LogMailer) Send(ctx context.Context, msg Message) error {
	m.Logger.Info("email",
		zap.String("from", msg.From),
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject))
	return nil
}

// SMTPMailer delivers plain-text mail through one SMTP relay.
type SMTPMailer struct {
	Addr     string
	Username string
	Password string
}

func (m SMTPMailer) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return nil
	}
	var auth smtp.Auth
	if m.Username != "" {
		host, _, err := net.SplitHostPort(m.Addr)
		if err != nil {
			return fmt.Errorf("smtp address %q: %w", m.Addr, err)
		}
		auth = smtp.PlainAuth("", m.Username, m.Password, host)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", msg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(msg.Body)

	done := make(chan error, 1)
	go func() { done <- smtp.SendMail(m.Addr, auth, msg.From, msg.To, []byte(b.String())) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
