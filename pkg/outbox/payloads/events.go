package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/autocare/autocare-backend/pkg/enums"
)

// AssignmentEvent is the tagged lifecycle event for a service assignment.
// Kind selects the variant; the optional fields are set only where they apply.
type AssignmentEvent struct {
	Kind             enums.OutboxEventType  `json:"kind"`
	AssignmentID     uuid.UUID              `json:"assignment_id"`
	BookingID        uuid.UUID              `json:"booking_id"`
	CustomerUserID   uuid.UUID              `json:"customer_user_id"`
	ProviderID       uuid.UUID              `json:"provider_id"`
	ProviderUserID   uuid.UUID              `json:"provider_user_id"`
	ProviderName     string                 `json:"provider_name,omitempty"`
	Status           enums.AssignmentStatus `json:"status"`
	DistanceKm       *float64               `json:"distance_km,omitempty"`
	EstimatedArrival *time.Time             `json:"estimated_arrival,omitempty"`
	Reason           *string                `json:"reason,omitempty"`
	OccurredAt       time.Time              `json:"occurred_at"`
}

// BookingEvent describes booking-level changes that are not tied to a
// single assignment.
type BookingEvent struct {
	Kind          enums.OutboxEventType `json:"kind"`
	BookingID     uuid.UUID             `json:"booking_id"`
	UserID        uuid.UUID             `json:"user_id"`
	Status        enums.BookingStatus   `json:"status"`
	BookingDate   string                `json:"booking_date"`
	TimeSlot      string                `json:"time_slot"`
	MatchAttempts int                   `json:"match_attempts"`
	Reason        string                `json:"reason,omitempty"`
	OccurredAt    time.Time             `json:"occurred_at"`
}

// ProviderVerifiedEvent is emitted when an admin changes a provider's
// verification status.
type ProviderVerifiedEvent struct {
	ProviderID uuid.UUID                `json:"provider_id"`
	UserID     uuid.UUID                `json:"user_id"`
	Status     enums.VerificationStatus `json:"status"`
	OccurredAt time.Time                `json:"occurred_at"`
}

// NotificationRequestedEvent asks the notification worker to store an
// arbitrary in-app notification.
type NotificationRequestedEvent struct {
	UserID  uuid.UUID              `json:"user_id"`
	Type    enums.NotificationType `json:"type"`
	Title   string                 `json:"title"`
	Message string                 `json:"message"`
	Link    *string                `json:"link,omitempty"`
}
