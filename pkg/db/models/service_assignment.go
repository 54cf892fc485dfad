package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/autocare/autocare-backend/pkg/enums"
)

// ServiceAssignment pairs a booking with the provider chosen to fulfil it.
// Rejected rows stay as history; a reassignment inserts a new row.
type ServiceAssignment struct {
	ID               uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BookingID        uuid.UUID              `gorm:"column:booking_id;type:uuid;not null"`
	ProviderID       uuid.UUID              `gorm:"column:provider_id;type:uuid;not null"`
	Status           enums.AssignmentStatus `gorm:"column:status;type:assignment_status;not null"`
	DistanceKm       *float64               `gorm:"column:distance_km"`
	AssignedAt       *time.Time             `gorm:"column:assigned_at"`
	AcceptedAt       *time.Time             `gorm:"column:accepted_at"`
	RejectedAt       *time.Time             `gorm:"column:rejected_at"`
	StartedAt        *time.Time             `gorm:"column:started_at"`
	CompletedAt      *time.Time             `gorm:"column:completed_at"`
	CancelledAt      *time.Time             `gorm:"column:cancelled_at"`
	EstimatedArrival *time.Time             `gorm:"column:estimated_arrival"`
	ActualArrival    *time.Time             `gorm:"column:actual_arrival"`
	ProviderNotes    *string                `gorm:"column:provider_notes"`
	RejectionReason  *string                `gorm:"column:rejection_reason"`
	CreatedAt        time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
