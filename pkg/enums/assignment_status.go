package enums

import "fmt"

// AssignmentStatus maps to the assignment_status enum in Postgres.
type AssignmentStatus string

const (
	AssignmentStatusPending    AssignmentStatus = "pending"
	AssignmentStatusAssigned   AssignmentStatus = "assigned"
	AssignmentStatusAccepted   AssignmentStatus = "accepted"
	AssignmentStatusRejected   AssignmentStatus = "rejected"
	AssignmentStatusEnRoute    AssignmentStatus = "en_route"
	AssignmentStatusInProgress AssignmentStatus = "in_progress"
	AssignmentStatusCompleted  AssignmentStatus = "completed"
	AssignmentStatusCancelled  AssignmentStatus = "cancelled"
)

var validAssignmentStatuses = []AssignmentStatus{
	AssignmentStatusPending,
	AssignmentStatusAssigned,
	AssignmentStatusAccepted,
	AssignmentStatusRejected,
	AssignmentStatusEnRoute,
	AssignmentStatusInProgress,
	AssignmentStatusCompleted,
	AssignmentStatusCancelled,
}

// ActiveAssignmentStatuses are the non-terminal states; a booking holds at
// most one assignment in any of them.
var ActiveAssignmentStatuses = []AssignmentStatus{
	AssignmentStatusAssigned,
	AssignmentStatusAccepted,
	AssignmentStatusEnRoute,
	AssignmentStatusInProgress,
}

// WorkloadAssignmentStatuses are counted as a provider's current jobs when scoring.
var WorkloadAssignmentStatuses = []AssignmentStatus{
	AssignmentStatusAssigned,
	AssignmentStatusAccepted,
	AssignmentStatusInProgress,
}

// HistoryAssignmentStatuses are listed in a provider's history view.
var HistoryAssignmentStatuses = []AssignmentStatus{
	AssignmentStatusCompleted,
	AssignmentStatusRejected,
	AssignmentStatusCancelled,
}

func (a AssignmentStatus) String() string {
	return string(a)
}

// IsValid reports whether the value is a known AssignmentStatus.
func (a AssignmentStatus) IsValid() bool {
	for _, candidate := range validAssignmentStatuses {
		if candidate == a {
			return true
		}
	}
	return false
}

// IsActive reports whether the assignment still occupies its booking.
func (a AssignmentStatus) IsActive() bool {
	for _, candidate := range ActiveAssignmentStatuses {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAssignmentStatus converts raw input into an AssignmentStatus.
func ParseAssignmentStatus(value string) (AssignmentStatus, error) {
	for _, candidate := range validAssignmentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid assignment status %q", value)
}
