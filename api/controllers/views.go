package controllers

import (
	"time"

	"github.com/google/uuid"

	"github.com/autocare/autocare-backend/internal/assignments"
	"github.com/autocare/autocare-backend/internal/serviceareas"
	"github.com/autocare/autocare-backend/pkg/db/models"
	"github.com/autocare/autocare-backend/pkg/enums"
)

const dateLayout = "2006-01-02"

type serviceAreaView struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Description     *string   `json:"description,omitempty"`
	CenterLatitude  float64   `json:"center_latitude"`
	CenterLongitude float64   `json:"center_longitude"`
	RadiusKm        float64   `json:"radius_km"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func newServiceAreaView(a models.ServiceArea) serviceAreaView {
	return serviceAreaView{
		ID:              a.ID,
		Name:            a.Name,
		Description:     a.Description,
		CenterLatitude:  a.CenterLatitude,
		CenterLongitude: a.CenterLongitude,
		RadiusKm:        a.RadiusKm,
		IsActive:        a.IsActive,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func newServiceAreaViews(areas []models.ServiceArea) []serviceAreaView {
	out := make([]serviceAreaView, 0, len(areas))
	for _, a := range areas {
		out = append(out, newServiceAreaView(a))
	}
	return out
}

type areaDistanceView struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	RadiusKm   float64   `json:"radius_km"`
	DistanceKm float64   `json:"distance_km"`
}

type coverageView struct {
	Available bool               `json:"available"`
	CoveredBy []areaDistanceView `json:"covered_by"`
	Nearest   []areaDistanceView `json:"nearest_areas,omitempty"`
	Message   string             `json:"message"`
}

func newCoverageView(c serviceareas.Coverage) coverageView {
	view := coverageView{
		Available: c.Available,
		CoveredBy: areaDistances(c.CoveredBy),
		Message:   "service is available at this location",
	}
	if !c.Available {
		view.Nearest = areaDistances(c.Nearest)
		view.Message = "service is not available at this location"
	}
	return view
}

func areaDistances(in []serviceareas.AreaDistance) []areaDistanceView {
	out := make([]areaDistanceView, 0, len(in))
	for _, d := range in {
		out = append(out, areaDistanceView{
			ID:         d.Area.ID,
			Name:       d.Area.Name,
			RadiusKm:   d.Area.RadiusKm,
			DistanceKm: d.DistanceKm,
		})
	}
	return out
}

type bookingView struct {
	ID             uuid.UUID           `json:"id"`
	UserID         uuid.UUID           `json:"user_id"`
	VehicleType    enums.VehicleType   `json:"vehicle_type"`
	BookingDate    string              `json:"booking_date"`
	TimeSlot       string              `json:"time_slot"`
	Status         enums.BookingStatus `json:"status"`
	Notes          *string             `json:"notes,omitempty"`
	Latitude       *float64            `json:"latitude,omitempty"`
	Longitude      *float64            `json:"longitude,omitempty"`
	ServiceAddress string              `json:"service_address"`
	AddressID      *uuid.UUID          `json:"address_id,omitempty"`
	MatchAttempts  int                 `json:"match_attempts"`
	CancelledAt    *time.Time          `json:"cancelled_at,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

func newBookingView(b models.Booking) bookingView {
	return bookingView{
		ID:             b.ID,
		UserID:         b.UserID,
		VehicleType:    b.VehicleType,
		BookingDate:    b.BookingDate.UTC().Format(dateLayout),
		TimeSlot:       b.TimeSlot,
		Status:         b.Status,
		Notes:          b.Notes,
		Latitude:       b.Latitude,
		Longitude:      b.Longitude,
		ServiceAddress: b.ServiceAddress,
		AddressID:      b.AddressID,
		MatchAttempts:  b.MatchAttempts,
		CancelledAt:    b.CancelledAt,
		CreatedAt:      b.CreatedAt,
		UpdatedAt:      b.UpdatedAt,
	}
}

type assignmentView struct {
	ID               uuid.UUID              `json:"id"`
	BookingID        uuid.UUID              `json:"booking_id"`
	ProviderID       uuid.UUID              `json:"provider_id"`
	Status           enums.AssignmentStatus `json:"status"`
	DistanceKm       *float64               `json:"distance_km,omitempty"`
	AssignedAt       *time.Time             `json:"assigned_at,omitempty"`
	AcceptedAt       *time.Time             `json:"accepted_at,omitempty"`
	RejectedAt       *time.Time             `json:"rejected_at,omitempty"`
	StartedAt        *time.Time             `json:"started_at,omitempty"`
	CompletedAt      *time.Time             `json:"completed_at,omitempty"`
	CancelledAt      *time.Time             `json:"cancelled_at,omitempty"`
	EstimatedArrival *time.Time             `json:"estimated_arrival,omitempty"`
	ActualArrival    *time.Time             `json:"actual_arrival,omitempty"`
	ProviderNotes    *string                `json:"provider_notes,omitempty"`
	RejectionReason  *string                `json:"rejection_reason,omitempty"`
}

func newAssignmentView(a *models.ServiceAssignment) *assignmentView {
	if a == nil {
		return nil
	}
	return &assignmentView{
		ID:               a.ID,
		BookingID:        a.BookingID,
		ProviderID:       a.ProviderID,
		Status:           a.Status,
		DistanceKm:       a.DistanceKm,
		AssignedAt:       a.AssignedAt,
		AcceptedAt:       a.AcceptedAt,
		RejectedAt:       a.RejectedAt,
		StartedAt:        a.StartedAt,
		CompletedAt:      a.CompletedAt,
		CancelledAt:      a.CancelledAt,
		EstimatedArrival: a.EstimatedArrival,
		ActualArrival:    a.ActualArrival,
		ProviderNotes:    a.ProviderNotes,
		RejectionReason:  a.RejectionReason,
	}
}

type bookingDetailView struct {
	bookingView
	Assignment *assignmentView `json:"assignment,omitempty"`
}

type jobView struct {
	assignmentView
	Booking *bookingView `json:"booking,omitempty"`
}

func newJobViews(jobs []assignments.Job) []jobView {
	out := make([]jobView, 0, len(jobs))
	for i := range jobs {
		view := jobView{assignmentView: *newAssignmentView(&jobs[i].Assignment)}
		if jobs[i].Booking != nil {
			b := newBookingView(*jobs[i].Booking)
			view.Booking = &b
		}
		out = append(out, view)
	}
	return out
}
