package notifications

import (
	"context"

	"go.uber.org/multierr"

	"github.com/autocare/autocare-backend/internal/assignments"
)

// Fanout delivers each assignment event to every wrapped notifier. All
// notifiers are attempted; their failures are combined.
type Fanout []assignments.Notifier

func NewFanout(notifiers ...assignments.Notifier) Fanout {
	out := make(Fanout, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

func (f Fanout) Notify(ctx context.Context, event assignments.Event) error {
	var err error
	for _, n := range f {
		err = multierr.Append(err, n.Notify(ctx, event))
	}
	return err
}
