package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/autocare/autocare-backend/pkg/config"
	"github.com/autocare/autocare-backend/pkg/db/models"
	"github.com/autocare/autocare-backend/pkg/enums"
	"github.com/autocare/autocare-backend/pkg/outbox"
	"github.com/autocare/autocare-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
)

func TestEventRegistryResolveSuccess(t *testing.T) {
	reg := newTestEventRegistry(t)

	assignmentID := uuid.New()
	reason := "too far"
	payloadBytes := mustMarshal(t, payloads.AssignmentEvent{
		Kind:         enums.EventAssignmentRejected,
		AssignmentID: assignmentID,
		BookingID:    uuid.New(),
		Status:       enums.AssignmentStatusRejected,
		Reason:       &reason,
	})

	event := models.OutboxEvent{
		EventType:     enums.EventAssignmentRejected,
		AggregateType: enums.AggregateAssignment,
		AggregateID:   assignmentID,
		Payload:       mustEnvelope(t, payloadBytes),
	}

	resolved, err := reg.Resolve(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Descriptor.Topic != "assignments-topic" {
		t.Fatalf("unexpected topic %q", resolved.Descriptor.Topic)
	}
	payload, ok := resolved.Payload.(*payloads.AssignmentEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}
	if payload.AssignmentID != assignmentID || payload.Reason == nil || *payload.Reason != reason {
		t.Fatalf("payload mismatch %+v", payload)
	}
	if resolved.Envelope.EventID == "" {
		t.Fatalf("envelope missing event id")
	}
	if resolved.Envelope.OccurredAt.IsZero() {
		t.Fatalf("envelope missing occurred_at")
	}
}

func TestEventRegistryRoutesTopics(t *testing.T) {
	reg := newTestEventRegistry(t)

	cases := map[enums.OutboxEventType]string{
		enums.EventAssignmentCreated:     "assignments-topic",
		enums.EventServiceCompleted:      "assignments-topic",
		enums.EventBookingUnassignable:   "assignments-topic",
		enums.EventProviderVerified:      "notification-topic",
		enums.EventNotificationRequested: "notification-topic",
	}
	for eventType, topic := range cases {
		desc, ok := reg.entries[eventType]
		if !ok {
			t.Fatalf("missing descriptor for %s", eventType)
		}
		if desc.Topic != topic {
			t.Fatalf("%s routed to %q want %q", eventType, desc.Topic, topic)
		}
	}
}

func TestEventRegistryResolveUnknownEvent(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.OutboxEventType("booking_rescheduled"),
		AggregateType: enums.AggregateBooking,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, []byte(`{"reason":"none"}`)),
	}

	_, err := reg.Resolve(event)
	if err == nil {
		t.Fatalf("expected error")
	}
	var nonRetry NonRetryableError
	if !errors.As(err, &nonRetry) {
		t.Fatalf("expected non-retryable error, got %T", err)
	}
}

func TestEventRegistryResolveAggregateMismatch(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.EventBookingCreated,
		AggregateType: enums.AggregateAssignment,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, []byte(`{"booking_id":"00000000-0000-0000-0000-000000000000"}`)),
	}

	_, err := reg.Resolve(event)
	if err == nil {
		t.Fatalf("expected error")
	}
	var nonRetry NonRetryableError
	if !errors.As(err, &nonRetry) {
		t.Fatalf("expected non-retryable error")
	}
	if nonRetry.Reason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("expected non_retryable reason, got %s", nonRetry.Reason)
	}
}

func TestEventRegistryResolveMissingAggregateID(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.EventBookingCreated,
		AggregateType: enums.AggregateBooking,
		AggregateID:   uuid.Nil,
		Payload:       mustEnvelope(t, []byte(`{}`)),
	}

	_, err := reg.Resolve(event)
	if err == nil {
		t.Fatalf("expected error")
	}
	var nonRetry NonRetryableError
	if !errors.As(err, &nonRetry) {
		t.Fatalf("expected non-retryable error")
	}
}

func TestEventRegistryResolveNullPayload(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.EventBookingCreated,
		AggregateType: enums.AggregateBooking,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, []byte("null")),
	}

	_, err := reg.Resolve(event)
	if err == nil {
		t.Fatalf("expected error")
	}
	var nonRetry NonRetryableError
	if !errors.As(err, &nonRetry) {
		t.Fatalf("expected non-retryable error")
	}
	if nonRetry.Reason != enums.OutboxDLQReasonDecodeFailed {
		t.Fatalf("expected decode_failed reason, got %s", nonRetry.Reason)
	}
}

func TestNewEventRegistryRequiresTopics(t *testing.T) {
	if _, err := NewEventRegistry(config.PubSubConfig{NotificationTopic: "n"}); err == nil {
		t.Fatal("expected missing assignments topic error")
	}
	if _, err := NewEventRegistry(config.PubSubConfig{AssignmentsTopic: "a"}); err == nil {
		t.Fatal("expected missing notification topic error")
	}
}

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	cfg := config.PubSubConfig{
		AssignmentsTopic:  "assignments-topic",
		NotificationTopic: "notification-topic",
	}
	reg, err := NewEventRegistry(cfg)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func mustMarshal(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func mustEnvelope(t *testing.T, payload []byte) json.RawMessage {
	t.Helper()
	envelope := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       payload,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return data
}
