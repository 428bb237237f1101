package notify

import (
	"context"
	"errors"

	"go-approvals/internal/core/ports"
	"go-approvals/internal/domain"
)

// Fanout delivers each event to every sink and joins their errors. One
// failing sink does not stop the others.
type Fanout []ports.Notifier

func (f Fanout) Notify(ctx context.Context, ev domain.Event) error {
	var errs []error
	for _, n := range f {
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
