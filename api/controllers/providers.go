package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/autocare/autocare-backend/api/responses"
	"github.com/autocare/autocare-backend/api/validators"
	"github.com/autocare/autocare-backend/internal/assignments"
	"github.com/autocare/autocare-backend/internal/providers"
	"github.com/autocare/autocare-backend/pkg/db/models"
	pkgerrors "github.com/autocare/autocare-backend/pkg/errors"
	"github.com/autocare/autocare-backend/pkg/logger"
)

type providerProfileRequest struct {
	Name            *string      `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Email           *string      `json:"email,omitempty" validate:"omitempty,email"`
	Specialization  *string      `json:"specialization,omitempty" validate:"omitempty,max=50"`
	ExperienceYears *int         `json:"experience_years,omitempty" validate:"omitempty,gte=0,lte=60"`
	ServiceAreaIDs  *[]uuid.UUID `json:"service_area_ids,omitempty"`
}

type providerLocationRequest struct {
	Latitude       *float64 `json:"latitude" validate:"required,latitude"`
	Longitude      *float64 `json:"longitude" validate:"required,longitude"`
	AccuracyMeters *float64 `json:"accuracy_meters,omitempty" validate:"omitempty,gte=0"`
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type decisionRequest struct {
	Action string `json:"action" validate:"required,oneof=accept reject"`
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

type completeRequest struct {
	Notes *string `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

func ProviderProfile(svc providers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "provider service unavailable"))
			return
		}
		providerID, err := currentProviderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		profile, err := svc.Profile(r.Context(), providerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, profile)
	}
}

func ProviderUpdateProfile(svc providers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "provider service unavailable"))
			return
		}
		providerID, err := currentProviderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req providerProfileRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		profile, err := svc.UpdateProfile(r.Context(), providerID, providers.ProfileInput{
			Name:            req.Name,
			Email:           req.Email,
			Specialization:  req.Specialization,
			ExperienceYears: req.ExperienceYears,
			ServiceAreaIDs:  req.ServiceAreaIDs,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, profile)
	}
}

// ProviderUpdateLocation records a timestamped position fix.
func ProviderUpdateLocation(svc providers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "provider service unavailable"))
			return
		}
		providerID, err := currentProviderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req providerLocationRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		location, err := svc.UpdateLocation(r.Context(), providerID, providers.LocationInput{
			Latitude:       *req.Latitude,
			Longitude:      *req.Longitude,
			AccuracyMeters: req.AccuracyMeters,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, location)
	}
}

func ProviderToggleAvailability(svc providers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "provider service unavailable"))
			return
		}
		providerID, err := currentProviderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		profile, err := svc.ToggleAvailability(r.Context(), providerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"is_available": profile.IsAvailable})
	}
}

// ProviderAssignments lists jobs in the pending, active or history bucket.
func ProviderAssignments(svc providers.Service, logg *logger.Logger) http.HandlerFunc {
	return providerJobs(svc, "", logg)
}

// ProviderAvailableJobs lists offers still waiting for the provider's answer.
func ProviderAvailableJobs(svc providers.Service, logg *logger.Logger) http.HandlerFunc {
	return providerJobs(svc, "pending", logg)
}

func providerJobs(svc providers.Service, bucket string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "provider service unavailable"))
			return
		}
		providerID, err := currentProviderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := bucket
		if status == "" {
			status = r.URL.Query().Get("status")
		}

		result, err := svc.Assignments(r.Context(), providerID, status, page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"assignments": newJobViews(result.Jobs),
			"next_cursor": result.NextCursor,
		})
	}
}

func ProviderAssignmentDetail(svc assignments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "assignment service unavailable"))
			return
		}
		input, err := actionInput(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		assignment, err := svc.Get(r.Context(), input.AssignmentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if assignment.ProviderID != input.ProviderID {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "assignment not found"))
			return
		}
		responses.WriteSuccess(w, newAssignmentView(assignment))
	}
}

// ProviderAssignmentAction adapts one of the single-step lifecycle
// transitions (accept, en-route, start) to a handler.
func ProviderAssignmentAction(action func(context.Context, assignments.ActionInput) (*models.ServiceAssignment, error), logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if action == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "assignment service unavailable"))
			return
		}
		input, err := actionInput(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		assignment, err := action(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newAssignmentView(assignment))
	}
}

func ProviderAssignmentReject(svc assignments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "assignment service unavailable"))
			return
		}
		input, err := actionInput(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req rejectRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeRejection(w, r, svc, input, req.Reason, logg)
	}
}

// ProviderAssignmentDecision answers an offer with {action: accept|reject}.
// A reject needs a reason.
func ProviderAssignmentDecision(svc assignments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "assignment service unavailable"))
			return
		}
		input, err := actionInput(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req decisionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if req.Action == "accept" {
			assignment, err := svc.Accept(r.Context(), input)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccess(w, newAssignmentView(assignment))
			return
		}
		if validators.SanitizeString(req.Reason, 0) == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "reason is required to reject").WithDetails(map[string]any{"field": "reason"}))
			return
		}
		writeRejection(w, r, svc, input, req.Reason, logg)
	}
}

func writeRejection(w http.ResponseWriter, r *http.Request, svc assignments.Service, input assignments.ActionInput, reason string, logg *logger.Logger) {
	result, err := svc.Reject(r.Context(), assignments.RejectInput{
		ActionInput: input,
		Reason:      validators.SanitizeString(reason, 500),
	})
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccess(w, map[string]any{
		"assignment":     newAssignmentView(result.Rejected),
		"booking_status": result.BookingStatus,
		"reassigned":     result.Replacement != nil,
	})
}

func ProviderAssignmentComplete(svc assignments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "assignment service unavailable"))
			return
		}
		input, err := actionInput(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req completeRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		if req.Notes != nil {
			trimmed := strings.TrimSpace(*req.Notes)
			req.Notes = &trimmed
		}

		assignment, err := svc.Complete(r.Context(), assignments.CompleteInput{ActionInput: input, Notes: req.Notes})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newAssignmentView(assignment))
	}
}

func actionInput(r *http.Request) (assignments.ActionInput, error) {
	userID, err := currentUserID(r)
	if err != nil {
		return assignments.ActionInput{}, err
	}
	providerID, err := currentProviderID(r)
	if err != nil {
		return assignments.ActionInput{}, err
	}
	assignmentID, err := pathUUID(r, "assignmentId")
	if err != nil {
		return assignments.ActionInput{}, err
	}
	return assignments.ActionInput{
		AssignmentID: assignmentID,
		ProviderID:   providerID,
		ActorUserID:  userID,
	}, nil
}
