package enums

import "fmt"

// BookingStatus maps to the booking_status enum in Postgres.
type BookingStatus string

const (
	BookingStatusPending      BookingStatus = "pending"
	BookingStatusConfirmed    BookingStatus = "confirmed"
	BookingStatusCompleted    BookingStatus = "completed"
	BookingStatusCancelled    BookingStatus = "cancelled"
	BookingStatusUnassignable BookingStatus = "unassignable"
)

var validBookingStatuses = []BookingStatus{
	BookingStatusPending,
	BookingStatusConfirmed,
	BookingStatusCompleted,
	BookingStatusCancelled,
	BookingStatusUnassignable,
}

// OpenBookingStatuses hold a time slot and count toward duplicate checks.
var OpenBookingStatuses = []BookingStatus{
	BookingStatusPending,
	BookingStatusConfirmed,
}

func (b BookingStatus) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BookingStatus.
func (b BookingStatus) IsValid() bool {
	for _, candidate := range validBookingStatuses {
		if candidate == b {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further lifecycle change is possible.
func (b BookingStatus) IsTerminal() bool {
	switch b {
	case BookingStatusCompleted, BookingStatusCancelled, BookingStatusUnassignable:
		return true
	}
	return false
}

// ParseBookingStatus converts raw input into a BookingStatus.
func ParseBookingStatus(value string) (BookingStatus, error) {
	for _, candidate := range validBookingStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid booking status %q", value)
}
