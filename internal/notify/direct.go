package notify

import (
	"context"
	"fmt"

	"go-approvals/internal/core/ports"
	"go-approvals/internal/domain"
)

// Emailer renders an event and mails it to the event's recipients.
type Emailer struct {
	renderer  *Renderer
	addresses AddressBook
	mailer    Mailer
	from      string
}

func NewEmailer(renderer *Renderer, addresses AddressBook, mailer Mailer, from string) *Emailer {
	return &Emailer{renderer: renderer, addresses: addresses, mailer: mailer, from: from}
}

var _ ports.Notifier = (*Emailer)(nil)

// Notify sends the email inline. Used directly in memory mode and by the
// queue worker otherwise.
func (e *Emailer) Notify(ctx context.Context, ev domain.Event) error {
	to, err := e.addresses.Addresses(ctx, ev.Recipients)
	if err != nil {
		return fmt.Errorf("resolve addresses: %w", err)
	}
	if len(to) == 0 {
		return nil
	}
	subject, body, err := e.renderer.Render(ev)
	if err != nil {
		return err
	}
	return e.mailer.Send(ctx, Message{From: e.from, To: to, Subject: subject, Body: body})
}
