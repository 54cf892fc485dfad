package assignments

import (
	"context"

	"github.com/autocare/autocare-backend/pkg/enums"
	"github.com/autocare/autocare-backend/pkg/outbox/payloads"
)

// Event is the tagged lifecycle notification. Kind is one of the Event*
// constants below.
type Event = payloads.AssignmentEvent

// Event kinds delivered to a Notifier.
const (
	EventAssignmentCreated   = enums.EventAssignmentCreated
	EventAssignmentAccepted  = enums.EventAssignmentAccepted
	EventAssignmentRejected  = enums.EventAssignmentRejected
	EventProviderEnRoute     = enums.EventProviderEnRoute
	EventServiceStarted      = enums.EventServiceStarted
	EventServiceCompleted    = enums.EventServiceCompleted
	EventAssignmentCancelled = enums.EventAssignmentCancelled
)

// Notifier delivers lifecycle events after the owning transaction commits.
// Delivery is best effort; a failure never undoes the transition.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, event Event) error

func (f NotifierFunc) Notify(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Event) error { return nil }
