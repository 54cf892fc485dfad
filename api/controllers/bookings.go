package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/autocare/autocare-backend/api/responses"
	"github.com/autocare/autocare-backend/api/validators"
	"github.com/autocare/autocare-backend/internal/bookings"
	pkgerrors "github.com/autocare/autocare-backend/pkg/errors"
	"github.com/autocare/autocare-backend/pkg/logger"
)

type createBookingRequest struct {
	VehicleType    string     `json:"vehicle_type" validate:"required,vehicle_type"`
	Date           string     `json:"date" validate:"required"`
	TimeSlot       string     `json:"time_slot" validate:"required"`
	Latitude       *float64   `json:"latitude" validate:"required,latitude"`
	Longitude      *float64   `json:"longitude" validate:"required,longitude"`
	ServiceAddress string     `json:"service_address" validate:"max=500"`
	AddressID      *uuid.UUID `json:"address_id,omitempty"`
	Notes          *string    `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// BookingCreate stores a booking and attempts an immediate provider match.
// The match result does not affect the response status.
func BookingCreate(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "booking service unavailable"))
			return
		}
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createBookingRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if strings.TrimSpace(req.ServiceAddress) == "" && req.AddressID == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "service_address or address_id is required"))
			return
		}

		result, err := svc.Create(r.Context(), bookings.CreateInput{
			UserID:         userID,
			VehicleType:    req.VehicleType,
			Date:           req.Date,
			TimeSlot:       req.TimeSlot,
			Latitude:       req.Latitude,
			Longitude:      req.Longitude,
			ServiceAddress: req.ServiceAddress,
			AddressID:      req.AddressID,
			Notes:          req.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, bookingDetailView{
			bookingView: newBookingView(*result.Booking),
			Assignment:  newAssignmentView(result.Assignment),
		})
	}
}

func BookingList(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "booking service unavailable"))
			return
		}
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), bookings.ListParams{
			UserID:     userID,
			Status:     strings.TrimSpace(r.URL.Query().Get("status")),
			Pagination: page,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]bookingView, 0, len(result.Bookings))
		for _, b := range result.Bookings {
			items = append(items, newBookingView(b))
		}
		responses.WriteSuccess(w, map[string]any{
			"bookings":    items,
			"next_cursor": result.NextCursor,
		})
	}
}

func BookingDetail(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "booking service unavailable"))
			return
		}
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		bookingID, err := pathUUID(r, "bookingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		detail, err := svc.Get(r.Context(), userID, bookingID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, bookingDetailView{
			bookingView: newBookingView(detail.Booking),
			Assignment:  newAssignmentView(detail.Assignment),
		})
	}
}

func BookingCancel(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "booking service unavailable"))
			return
		}
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		bookingID, err := pathUUID(r, "bookingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req cancelRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		booking, err := svc.Cancel(r.Context(), bookings.CancelInput{
			UserID:    userID,
			BookingID: bookingID,
			Reason:    validators.SanitizeString(req.Reason, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newBookingView(*booking))
	}
}

// BookingTimeSlots answers GET /bookings/time-slots?date=YYYY-MM-DD.
func BookingTimeSlots(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "booking service unavailable"))
			return
		}
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		date := strings.TrimSpace(r.URL.Query().Get("date"))
		if date == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "date is required"))
			return
		}

		slots, err := svc.AvailableTimeSlots(r.Context(), userID, date)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, slots)
	}
}

func BookingStats(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "booking service unavailable"))
			return
		}
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		stats, err := svc.Stats(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}
