package bookings

import (
	"github.com/google/uuid"

	"github.com/autocare/autocare-backend/pkg/db/models"
	"github.com/autocare/autocare-backend/pkg/pagination"
)

// CreateInput is a customer's booking request.
type CreateInput struct {
	UserID         uuid.UUID
	VehicleType    string
	Date           string
	TimeSlot       string
	Latitude       *float64
	Longitude      *float64
	ServiceAddress string
	AddressID      *uuid.UUID
	Notes          *string
}

// CreateResult carries the stored booking and, when auto-assignment found a
// provider, the new assignment.
type CreateResult struct {
	Booking    *models.Booking
	Assignment *models.ServiceAssignment
}

type ListParams struct {
	UserID     uuid.UUID
	Status     string
	Pagination pagination.Params
}

type ListResult struct {
	Bookings   []models.Booking
	NextCursor string
}

type Detail struct {
	Booking    models.Booking
	Assignment *models.ServiceAssignment
}

type CancelInput struct {
	UserID    uuid.UUID
	BookingID uuid.UUID
	Reason    string
}

type TimeSlotAvailability struct {
	Date           string   `json:"date"`
	AvailableSlots []string `json:"available_slots"`
	BookedSlots    []string `json:"booked_slots"`
	TotalAvailable int      `json:"total_available"`
}

type AddressUsage struct {
	AddressID   uuid.UUID `json:"address_id"`
	Label       string    `json:"label"`
	FullAddress string    `json:"full_address"`
	UsageCount  int64     `json:"usage_count"`
}

type Stats struct {
	Total             int64          `json:"total_bookings"`
	Pending           int64          `json:"pending_bookings"`
	Confirmed         int64          `json:"confirmed_bookings"`
	Completed         int64          `json:"completed_bookings"`
	Cancelled         int64          `json:"cancelled_bookings"`
	Unassignable      int64          `json:"unassignable_bookings"`
	UniqueLocations   int64          `json:"unique_locations"`
	MostUsedAddresses []AddressUsage `json:"most_used_addresses"`
}
