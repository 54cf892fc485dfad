package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateBooking         OutboxAggregateType = "booking"
	AggregateAssignment      OutboxAggregateType = "assignment"
	AggregateServiceProvider OutboxAggregateType = "service_provider"
	AggregateNotification    OutboxAggregateType = "notification"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateBooking,
	AggregateAssignment,
	AggregateServiceProvider,
	AggregateNotification,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventBookingCreated        OutboxEventType = "booking_created"
	EventBookingCancelled      OutboxEventType = "booking_cancelled"
	EventBookingUnassignable   OutboxEventType = "booking_unassignable"
	EventAssignmentCreated     OutboxEventType = "assignment_created"
	EventAssignmentAccepted    OutboxEventType = "assignment_accepted"
	EventAssignmentRejected    OutboxEventType = "assignment_rejected"
	EventProviderEnRoute       OutboxEventType = "provider_en_route"
	EventServiceStarted        OutboxEventType = "service_started"
	EventServiceCompleted      OutboxEventType = "service_completed"
	EventAssignmentCancelled   OutboxEventType = "assignment_cancelled"
	EventProviderVerified      OutboxEventType = "provider_verified"
	EventNotificationRequested OutboxEventType = "notification_requested"
)

var validOutboxEventTypes = []OutboxEventType{
	EventBookingCreated,
	EventBookingCancelled,
	EventBookingUnassignable,
	EventAssignmentCreated,
	EventAssignmentAccepted,
	EventAssignmentRejected,
	EventProviderEnRoute,
	EventServiceStarted,
	EventServiceCompleted,
	EventAssignmentCancelled,
	EventProviderVerified,
	EventNotificationRequested,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
