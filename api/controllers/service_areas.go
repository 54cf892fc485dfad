package controllers

import (
	"net/http"

	"github.com/autocare/autocare-backend/api/responses"
	"github.com/autocare/autocare-backend/api/validators"
	"github.com/autocare/autocare-backend/internal/geo"
	"github.com/autocare/autocare-backend/internal/serviceareas"
	pkgerrors "github.com/autocare/autocare-backend/pkg/errors"
	"github.com/autocare/autocare-backend/pkg/logger"
)

type serviceAreaRequest struct {
	Name            *string  `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Description     *string  `json:"description,omitempty" validate:"omitempty,max=500"`
	CenterLatitude  *float64 `json:"center_latitude,omitempty" validate:"omitempty,latitude"`
	CenterLongitude *float64 `json:"center_longitude,omitempty" validate:"omitempty,longitude"`
	RadiusKm        *float64 `json:"radius_km,omitempty" validate:"omitempty,gt=0,lte=500"`
	IsActive        *bool    `json:"is_active,omitempty"`
}

func (r serviceAreaRequest) input() serviceareas.AreaInput {
	return serviceareas.AreaInput{
		Name:            r.Name,
		Description:     r.Description,
		CenterLatitude:  r.CenterLatitude,
		CenterLongitude: r.CenterLongitude,
		RadiusKm:        r.RadiusKm,
		IsActive:        r.IsActive,
	}
}

// ServiceAreaList serves the public list of active areas; the admin variant
// passes activeOnly=false.
func ServiceAreaList(svc serviceareas.Service, activeOnly bool, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "service area service unavailable"))
			return
		}
		areas, err := svc.List(r.Context(), activeOnly)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"service_areas": newServiceAreaViews(areas),
			"count":         len(areas),
		})
	}
}

// ServiceAreaCheck answers GET /service-areas/check?latitude=&longitude=.
func ServiceAreaCheck(svc serviceareas.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "service area service unavailable"))
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

		coverage, err := svc.CheckCoverage(r.Context(), geo.Point{Lat: lat, Lng: lng})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCoverageView(*coverage))
	}
}

func AdminServiceAreaCreate(svc serviceareas.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "service area service unavailable"))
			return
		}
		var req serviceAreaRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		area, err := svc.Create(r.Context(), req.input())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newServiceAreaView(*area))
	}
}

func AdminServiceAreaUpdate(svc serviceareas.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "service area service unavailable"))
			return
		}
		areaID, err := pathUUID(r, "areaId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req serviceAreaRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		area, err := svc.Update(r.Context(), areaID, req.input())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newServiceAreaView(*area))
	}
}

func AdminServiceAreaDelete(svc serviceareas.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "service area service unavailable"))
			return
		}
		areaID, err := pathUUID(r, "areaId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), areaID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}
