package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/autocare/autocare-backend/api/responses"
	"github.com/autocare/autocare-backend/api/validators"
	"github.com/autocare/autocare-backend/internal/assignments"
	"github.com/autocare/autocare-backend/internal/providers"
	pkgerrors "github.com/autocare/autocare-backend/pkg/errors"
	"github.com/autocare/autocare-backend/pkg/logger"
)

const (
	defaultNearbyRadiusKm = 10
	maxNearbyRadiusKm     = 100
	defaultNearbyLimit    = 20
	maxNearbyLimit        = 100
)

type verifyProviderRequest struct {
	Status string `json:"status" validate:"required,verification_status"`
}

type manualAssignRequest struct {
	BookingID  uuid.UUID `json:"booking_id" validate:"required"`
	ProviderID uuid.UUID `json:"provider_id" validate:"required"`
}

func AdminVerifyProvider(svc providers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "provider service unavailable"))
			return
		}
		adminID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		providerID, err := pathUUID(r, "providerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req verifyProviderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		profile, err := svc.SetVerification(r.Context(), providers.VerificationInput{
			ProviderID: providerID,
			Status:     req.Status,
			AdminID:    adminID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, profile)
	}
}

// AdminNearbyProviders answers GET /admin/providers/nearby?latitude=&longitude=&radius_km=&limit=.
func AdminNearbyProviders(svc providers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "provider service unavailable"))
			return
		}
		lat, err := validators.ParseQueryFloat(r, "latitude", -90, 90)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		lng, err := validators.ParseQueryFloat(r, "longitude", -180, 180)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		radius := float64(defaultNearbyRadiusKm)
		if r.URL.Query().Get("radius_km") != "" {
			if radius, err = validators.ParseQueryFloat(r, "radius_km", 0.1, maxNearbyRadiusKm); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		limit, err := validators.ParseQueryInt(r, "limit", defaultNearbyLimit, 1, maxNearbyLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		nearby, err := svc.Nearby(r.Context(), providers.NearbyQuery{
			Latitude:  lat,
			Longitude: lng,
			RadiusKm:  radius,
			Limit:     limit,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"providers": nearby, "count": len(nearby)})
	}
}

func AdminAssignProvider(svc assignments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "assignment service unavailable"))
			return
		}
		var req manualAssignRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if req.BookingID == uuid.Nil || req.ProviderID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "booking_id and provider_id are required"))
			return
		}

		assignment, err := svc.CreateAssignment(r.Context(), req.BookingID, req.ProviderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newAssignmentView(assignment))
	}
}

func AdminCancelAssignment(svc assignments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "assignment service unavailable"))
			return
		}
		adminID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		assignmentID, err := pathUUID(r, "assignmentId")
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

		assignment, err := svc.Cancel(r.Context(), assignments.CancelInput{
			AssignmentID: assignmentID,
			ActorUserID:  adminID,
			Reason:       validators.SanitizeString(req.Reason, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newAssignmentView(assignment))
	}
}

// AdminRematch runs one rematch pass on demand, outside the cron schedule.
func AdminRematch(svc assignments.Service, batchSize int, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "assignment service unavailable"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", batchSize, 1, 1000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		summary, err := svc.Rematch(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int{
			"scanned":      summary.Scanned,
			"assigned":     summary.Assigned,
			"pending":      summary.Pending,
			"unassignable": summary.Unassignable,
			"skipped":      summary.Skipped,
		})
	}
}
