package enums

import "testing"

func TestParseRoundTrips(t *testing.T) {
	if got, err := ParseAssignmentStatus("en_route"); err != nil || got != AssignmentStatusEnRoute {
		t.Fatalf("unexpected parse result %v %v", got, err)
	}
	if _, err := ParseAssignmentStatus("teleported"); err == nil {
		t.Fatal("expected invalid status error")
	}
	if got, err := ParseMatchingPolicy("weighted_score"); err != nil || got != MatchingPolicyWeightedScore {
		t.Fatalf("unexpected policy %v %v", got, err)
	}
	if _, err := ParseUserType("superuser"); err == nil {
		t.Fatal("expected invalid user type")
	}
	if got, err := ParseOutboxDLQErrorReason("decode_failed"); err != nil || got != OutboxDLQReasonDecodeFailed {
		t.Fatalf("unexpected reason %v %v", got, err)
	}
	if _, err := ParseOutboxDLQErrorReason("timeout"); err == nil {
		t.Fatal("expected invalid reason")
	}
}

func TestAssignmentStatusGroups(t *testing.T) {
	for _, s := range []AssignmentStatus{AssignmentStatusAssigned, AssignmentStatusAccepted, AssignmentStatusEnRoute, AssignmentStatusInProgress} {
		if !s.IsActive() {
			t.Fatalf("expected %s active", s)
		}
	}
	for _, s := range []AssignmentStatus{AssignmentStatusRejected, AssignmentStatusCompleted, AssignmentStatusCancelled, AssignmentStatusPending} {
		if s.IsActive() {
			t.Fatalf("expected %s inactive", s)
		}
	}
	for _, s := range WorkloadAssignmentStatuses {
		if s == AssignmentStatusEnRoute {
			t.Fatal("en_route is not part of the workload count")
		}
	}
}

func TestBookingStatusTerminal(t *testing.T) {
	if BookingStatusPending.IsTerminal() || BookingStatusConfirmed.IsTerminal() {
		t.Fatal("open bookings are not terminal")
	}
	if !BookingStatusUnassignable.IsTerminal() {
		t.Fatal("unassignable is terminal")
	}
}
