package notifications

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/autocare/autocare-backend/pkg/db/models"
	"github.com/autocare/autocare-backend/pkg/enums"
	"github.com/autocare/autocare-backend/pkg/outbox/payloads"
)

// fromAssignmentEvent maps an assignment lifecycle event to the rows shown
// to the customer and the provider.
func fromAssignmentEvent(event *payloads.AssignmentEvent) []*models.Notification {
	bookingLink := fmt.Sprintf("/bookings/%s", event.BookingID)
	jobLink := fmt.Sprintf("/provider/jobs/%s", event.AssignmentID)
	provider := strings.TrimSpace(event.ProviderName)
	if provider == "" {
		provider = "Your service provider"
	}

	var out []*models.Notification
	toCustomer := func(title, message string) {
		out = append(out, build(event.CustomerUserID, enums.NotificationTypeAssignmentUpdate, title, message, bookingLink))
	}
	toProvider := func(kind enums.NotificationType, title, message string) {
		out = append(out, build(event.ProviderUserID, kind, title, message, jobLink))
	}

	switch event.Kind {
	case enums.EventAssignmentCreated:
		msg := "You have a new service request."
		if event.DistanceKm != nil {
			msg = fmt.Sprintf("You have a new service request %.1f km away.", *event.DistanceKm)
		}
		toProvider(enums.NotificationTypeNewJob, "New job assigned", msg)
		toCustomer("Provider assigned", fmt.Sprintf("%s has been assigned to your booking.", provider))
	case enums.EventAssignmentAccepted:
		toCustomer("Booking accepted", fmt.Sprintf("%s accepted your booking.", provider))
	case enums.EventAssignmentRejected:
		toCustomer("Finding another provider", "We are finding another service provider for your booking.")
	case enums.EventProviderEnRoute:
		msg := fmt.Sprintf("%s is on the way.", provider)
		if event.EstimatedArrival != nil {
			msg = fmt.Sprintf("%s is on the way and should arrive by %s UTC.", provider, event.EstimatedArrival.UTC().Format("15:04"))
		}
		toCustomer("Provider on the way", msg)
	case enums.EventServiceStarted:
		toCustomer("Service started", fmt.Sprintf("%s has started working on your vehicle.", provider))
	case enums.EventServiceCompleted:
		toCustomer("Service completed", "Your service has been completed. Thank you for choosing us.")
		toProvider(enums.NotificationTypeAssignmentUpdate, "Job completed", "The job has been marked as completed.")
	case enums.EventAssignmentCancelled:
		msg := "The job assigned to you has been cancelled."
		if event.Reason != nil && strings.TrimSpace(*event.Reason) != "" {
			msg = fmt.Sprintf("The job assigned to you has been cancelled. Reason: %s", strings.TrimSpace(*event.Reason))
		}
		toProvider(enums.NotificationTypeAssignmentUpdate, "Job cancelled", msg)
	}
	return compact(out)
}

func fromBookingEvent(event *payloads.BookingEvent) []*models.Notification {
	link := fmt.Sprintf("/bookings/%s", event.BookingID)
	var n *models.Notification
	switch event.Kind {
	case enums.EventBookingCreated:
		n = build(event.UserID, enums.NotificationTypeBookingUpdate, "Booking received",
			fmt.Sprintf("Your booking for %s at %s has been received.", event.BookingDate, event.TimeSlot), link)
	case enums.EventBookingCancelled:
		n = build(event.UserID, enums.NotificationTypeBookingUpdate, "Booking cancelled",
			fmt.Sprintf("Your booking for %s at %s has been cancelled.", event.BookingDate, event.TimeSlot), link)
	case enums.EventBookingUnassignable:
		n = build(event.UserID, enums.NotificationTypeBookingUpdate, "No provider available",
			fmt.Sprintf("We could not find a service provider for %s at %s. Please try another slot.", event.BookingDate, event.TimeSlot), link)
	}
	return compact([]*models.Notification{n})
}

func fromProviderVerified(event *payloads.ProviderVerifiedEvent) []*models.Notification {
	title := "Verification update"
	message := fmt.Sprintf("Your provider account status is now %s.", event.Status)
	switch event.Status {
	case enums.VerificationStatusVerified:
		title = "Account verified"
		message = "Your provider account has been verified. Go online to start receiving jobs."
	case enums.VerificationStatusRejected:
		message = "Your provider verification was not approved. Contact support for details."
	case enums.VerificationStatusSuspended:
		title = "Account suspended"
		message = "Your provider account has been suspended. Contact support for details."
	}
	return compact([]*models.Notification{
		build(event.UserID, enums.NotificationTypeAccountAlert, title, message, "/provider/profile"),
	})
}

func fromNotificationRequested(event *payloads.NotificationRequestedEvent) []*models.Notification {
	kind := event.Type
	if !kind.IsValid() {
		kind = enums.NotificationTypeSystemAnnouncement
	}
	n := build(event.UserID, kind, event.Title, event.Message, "")
	if n != nil {
		n.Link = event.Link
	}
	return compact([]*models.Notification{n})
}

func build(userID uuid.UUID, kind enums.NotificationType, title, message, link string) *models.Notification {
	if userID == uuid.Nil || strings.TrimSpace(title) == "" {
		return nil
	}
	n := &models.Notification{
		UserID:  userID,
		Type:    kind,
		Title:   title,
		Message: strings.TrimSpace(message),
	}
	if link != "" {
		n.Link = &link
	}
	return n
}

func compact(in []*models.Notification) []*models.Notification {
	out := in[:0]
	for _, n := range in {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}
