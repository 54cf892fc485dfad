package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/autocare/autocare-backend/pkg/db/models"
	"github.com/autocare/autocare-backend/pkg/enums"
	pkgerrors "github.com/autocare/autocare-backend/pkg/errors"
	"github.com/autocare/autocare-backend/pkg/logger"
	"github.com/autocare/autocare-backend/pkg/outbox"
	"github.com/autocare/autocare-backend/pkg/outbox/payloads"
	"github.com/autocare/autocare-backend/pkg/outbox/registry"
)

const notificationsConsumer = "notifications-worker"

type subscriber interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

type idempotencyGuard interface {
	Once(ctx context.Context, consumer string, eventID uuid.UUID, fn func(context.Context) error) (bool, error)
}

type notificationWriter interface {
	Create(ctx context.Context, notifications ...*models.Notification) error
}

// Consumer turns booking, assignment and provider events into in-app notifications.
type Consumer struct {
	repo         notificationWriter
	subscription subscriber
	idempotency  idempotencyGuard
	decoders     *registry.DecoderRegistry
	logg         *logger.Logger
}

// NewConsumer builds a notification consumer for one subscription.
func NewConsumer(repo notificationWriter, subscription subscriber, manager idempotencyGuard, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		repo:         repo,
		subscription: subscription,
		idempotency:  manager,
		decoders:     NewEventDecoders(),
		logg:         logg,
	}, nil
}

// NewEventDecoders registers the version 1 payload decoders for every event
// the consumer understands.
func NewEventDecoders() *registry.DecoderRegistry {
	reg := registry.NewDecoderRegistry()
	for _, eventType := range []enums.OutboxEventType{
		enums.EventAssignmentCreated,
		enums.EventAssignmentAccepted,
		enums.EventAssignmentRejected,
		enums.EventProviderEnRoute,
		enums.EventServiceStarted,
		enums.EventServiceCompleted,
		enums.EventAssignmentCancelled,
	} {
		reg.Register(eventType, 1, registry.JSON[payloads.AssignmentEvent]())
	}
	for _, eventType := range []enums.OutboxEventType{
		enums.EventBookingCreated,
		enums.EventBookingCancelled,
		enums.EventBookingUnassignable,
	} {
		reg.Register(eventType, 1, registry.JSON[payloads.BookingEvent]())
	}
	reg.Register(enums.EventProviderVerified, 1, registry.JSON[payloads.ProviderVerifiedEvent]())
	reg.Register(enums.EventNotificationRequested, 1, registry.JSON[payloads.NotificationRequestedEvent]())
	return reg
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}
	version := envelope.Version
	if version == 0 {
		version = 1
	}

	decoded, err := c.decoders.Decode(eventType, version, envelope.Data)
	if err != nil {
		c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "skipping undecodable event")
		return processResult{ack: true}
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}
	logCtx = c.logg.WithField(logCtx, "event_id", eventID.String())

	rows := notificationsFor(decoded)
	if len(rows) == 0 {
		c.logg.Debug(logCtx, "event produces no notifications")
		return processResult{ack: true}
	}

	ran, err := c.idempotency.Once(ctx, notificationsConsumer, eventID, func(ctx context.Context) error {
		return c.repo.Create(ctx, rows...)
	})
	if err != nil {
		c.logg.Error(logCtx, "notification insert failed", err)
		retry := pkgerrors.Retryable(err)
		return processResult{ack: !retry, nack: retry}
	}
	if !ran {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	c.logg.Info(c.logg.WithField(logCtx, "notifications", len(rows)), "notifications stored")
	return processResult{ack: true}
}

func notificationsFor(decoded any) []*models.Notification {
	switch event := decoded.(type) {
	case *payloads.AssignmentEvent:
		return fromAssignmentEvent(event)
	case *payloads.BookingEvent:
		return fromBookingEvent(event)
	case *payloads.ProviderVerifiedEvent:
		return fromProviderVerified(event)
	case *payloads.NotificationRequestedEvent:
		return fromNotificationRequested(event)
	default:
		return nil
	}
}
