package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/autocare/autocare-backend/pkg/enums"
)

// Booking is a requested service job. Rows are never deleted.
type Booking struct {
	ID                 uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID             uuid.UUID           `gorm:"column:user_id;type:uuid;not null"`
	VehicleType        enums.VehicleType   `gorm:"column:vehicle_type;type:vehicle_type;not null"`
	BookingDate        time.Time           `gorm:"column:booking_date;type:date;not null"`
	TimeSlot           string              `gorm:"column:time_slot;not null"`
	Status             enums.BookingStatus `gorm:"column:status;type:booking_status;not null"`
	Notes              *string             `gorm:"column:notes"`
	Latitude           *float64            `gorm:"column:latitude"`
	Longitude          *float64            `gorm:"column:longitude"`
	ServiceAddress     string              `gorm:"column:service_address;not null"`
	AddressID          *uuid.UUID          `gorm:"column:address_id;type:uuid"`
	MatchAttempts      int                 `gorm:"column:match_attempts;not null"`
	LastMatchAttemptAt *time.Time          `gorm:"column:last_match_attempt_at"`
	CancelledAt        *time.Time          `gorm:"column:cancelled_at"`
	CreatedAt          time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// HasCoordinates reports whether the booking carries a GPS position.
func (b Booking) HasCoordinates() bool {
	return b.Latitude != nil && b.Longitude != nil
}
