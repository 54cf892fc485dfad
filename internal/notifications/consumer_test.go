package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/autocare/autocare-backend/internal/assignments"
	"github.com/autocare/autocare-backend/pkg/enums"
	pkgerrors "github.com/autocare/autocare-backend/pkg/errors"
	"github.com/autocare/autocare-backend/pkg/logger"
	"github.com/autocare/autocare-backend/pkg/outbox"
	"github.com/autocare/autocare-backend/pkg/outbox/payloads"
)

type fakeGuard struct {
	seen    map[uuid.UUID]bool
	deleted []uuid.UUID
	err     error
}

func (f *fakeGuard) Once(ctx context.Context, consumer string, eventID uuid.UUID, fn func(context.Context) error) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.seen == nil {
		f.seen = map[uuid.UUID]bool{}
	}
	if f.seen[eventID] {
		return false, nil
	}
	f.seen[eventID] = true
	if err := fn(ctx); err != nil {
		delete(f.seen, eventID)
		f.deleted = append(f.deleted, eventID)
		return true, err
	}
	return true, nil
}

type noopSubscriber struct{}

func (noopSubscriber) Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error {
	return nil
}

func newTestConsumer(t *testing.T, repo *fakeRepository, guard *fakeGuard) *Consumer {
	t.Helper()
	c, err := NewConsumer(repo, noopSubscriber{}, guard, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}
	return c
}

func message(t *testing.T, eventType enums.OutboxEventType, eventID uuid.UUID, data any) *pubsub.Message {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	envelope, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID.String(),
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return &pubsub.Message{
		ID:         "msg-1",
		Data:       envelope,
		Attributes: map[string]string{"event_type": string(eventType)},
	}
}

func TestConsumerStoresNotificationsForBothParties(t *testing.T) {
	repo := &fakeRepository{}
	guard := &fakeGuard{}
	c := newTestConsumer(t, repo, guard)

	distance := 3.2
	event := payloads.AssignmentEvent{
		Kind:           enums.EventAssignmentCreated,
		AssignmentID:   uuid.New(),
		BookingID:      uuid.New(),
		CustomerUserID: uuid.New(),
		ProviderUserID: uuid.New(),
		ProviderName:   "Ravi Kumar",
		DistanceKm:     &distance,
	}
	eventID := uuid.New()
	result := c.process(context.Background(), message(t, enums.EventAssignmentCreated, eventID, event))
	if !result.ack {
		t.Fatalf("expected ack, got %+v", result)
	}
	if len(repo.created) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(repo.created))
	}
	provider, customer := repo.created[0], repo.created[1]
	if provider.UserID != event.ProviderUserID || provider.Type != enums.NotificationTypeNewJob {
		t.Fatalf("unexpected provider notification %+v", provider)
	}
	if provider.Message != "You have a new service request 3.2 km away." {
		t.Fatalf("unexpected provider message %q", provider.Message)
	}
	if customer.UserID != event.CustomerUserID || customer.Message != "Ravi Kumar has been assigned to your booking." {
		t.Fatalf("unexpected customer notification %+v", customer)
	}

	// redelivery is ignored
	result = c.process(context.Background(), message(t, enums.EventAssignmentCreated, eventID, event))
	if !result.ack || len(repo.created) != 2 {
		t.Fatalf("expected duplicate to be acked without insert, created=%d", len(repo.created))
	}
}

func TestConsumerBookingUnassignable(t *testing.T) {
	repo := &fakeRepository{}
	c := newTestConsumer(t, repo, &fakeGuard{})

	event := payloads.BookingEvent{
		Kind:        enums.EventBookingUnassignable,
		BookingID:   uuid.New(),
		UserID:      uuid.New(),
		BookingDate: "2026-03-04",
		TimeSlot:    "10:00 AM",
	}
	c.process(context.Background(), message(t, enums.EventBookingUnassignable, uuid.New(), event))
	if len(repo.created) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(repo.created))
	}
	n := repo.created[0]
	if n.Title != "No provider available" || n.UserID != event.UserID {
		t.Fatalf("unexpected notification %+v", n)
	}
	if n.Link == nil || *n.Link != "/bookings/"+event.BookingID.String() {
		t.Fatalf("unexpected link %v", n.Link)
	}
}

func TestConsumerNacksAndReleasesOnInsertFailure(t *testing.T) {
	repo := &fakeRepository{createErr: errors.New("db down")}
	guard := &fakeGuard{}
	c := newTestConsumer(t, repo, guard)

	eventID := uuid.New()
	event := payloads.ProviderVerifiedEvent{ProviderID: uuid.New(), UserID: uuid.New(), Status: enums.VerificationStatusVerified}
	result := c.process(context.Background(), message(t, enums.EventProviderVerified, eventID, event))
	if !result.nack {
		t.Fatalf("expected nack, got %+v", result)
	}
	if len(guard.deleted) != 1 || guard.deleted[0] != eventID {
		t.Fatalf("expected idempotency key released, got %v", guard.deleted)
	}
}

func TestConsumerAcksPermanentInsertFailure(t *testing.T) {
	repo := &fakeRepository{createErr: pkgerrors.New(pkgerrors.CodeValidation, "title required")}
	c := newTestConsumer(t, repo, &fakeGuard{})

	event := payloads.ProviderVerifiedEvent{ProviderID: uuid.New(), UserID: uuid.New(), Status: enums.VerificationStatusVerified}
	result := c.process(context.Background(), message(t, enums.EventProviderVerified, uuid.New(), event))
	if !result.ack || result.nack {
		t.Fatalf("expected ack for a non-retryable failure, got %+v", result)
	}
}

func TestConsumerSkipsUnknownEvents(t *testing.T) {
	repo := &fakeRepository{}
	guard := &fakeGuard{}
	c := newTestConsumer(t, repo, guard)

	result := c.process(context.Background(), message(t, "order_created", uuid.New(), map[string]string{"a": "b"}))
	if !result.ack {
		t.Fatal("unknown events must be acked")
	}
	if len(repo.created) != 0 || len(guard.seen) != 0 {
		t.Fatal("unknown events must not be stored or marked")
	}

	bad := &pubsub.Message{ID: "bad", Data: []byte("{"), Attributes: map[string]string{"event_type": "booking_created"}}
	if result := c.process(context.Background(), bad); !result.ack {
		t.Fatal("malformed envelopes must be acked")
	}
}

func TestConsumerNacksWhenIdempotencyStoreFails(t *testing.T) {
	c := newTestConsumer(t, &fakeRepository{}, &fakeGuard{err: errors.New("redis down")})
	event := payloads.BookingEvent{Kind: enums.EventBookingCreated, BookingID: uuid.New(), UserID: uuid.New()}
	if result := c.process(context.Background(), message(t, enums.EventBookingCreated, uuid.New(), event)); !result.nack {
		t.Fatal("expected nack")
	}
}

func TestFanoutAttemptsEveryNotifier(t *testing.T) {
	var calls []string
	failing := assignments.NotifierFunc(func(ctx context.Context, event assignments.Event) error {
		calls = append(calls, "failing")
		return errors.New("socket closed")
	})
	ok := assignments.NotifierFunc(func(ctx context.Context, event assignments.Event) error {
		calls = append(calls, "ok")
		return nil
	})

	fanout := NewFanout(failing, nil, ok)
	err := fanout.Notify(context.Background(), assignments.Event{Kind: assignments.EventAssignmentAccepted})
	if err == nil || err.Error() != "socket closed" {
		t.Fatalf("expected combined error, got %v", err)
	}
	if len(calls) != 2 || calls[1] != "ok" {
		t.Fatalf("expected both notifiers to run, got %v", calls)
	}
}
