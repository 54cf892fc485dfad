package controllers

import (
	"net/http"

	"github.com/autocare/autocare-backend/api/responses"
	"github.com/autocare/autocare-backend/api/validators"
	"github.com/autocare/autocare-backend/internal/auth"
	"github.com/autocare/autocare-backend/pkg/enums"
	pkgerrors "github.com/autocare/autocare-backend/pkg/errors"
	"github.com/autocare/autocare-backend/pkg/logger"
)

// AuthSendOTP issues a login code to a mobile number.
func AuthSendOTP(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return sendOTP(svc, "", logg)
}

// ProviderSendOTP is the provider app's login: the account type is fixed.
func ProviderSendOTP(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return sendOTP(svc, enums.UserTypeProvider, logg)
}

func sendOTP(svc auth.Service, as enums.UserType, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		var req auth.SendOTPRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if as != "" {
			req.UserType = as
		}

		resp, err := svc.SendOTP(r.Context(), req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, resp)
	}
}

// AuthVerifyOTP exchanges a valid code for an access and refresh token pair.
func AuthVerifyOTP(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return verifyOTP(svc, "", logg)
}

// ProviderVerifyOTP issues provider tokens carrying the provider id.
func ProviderVerifyOTP(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return verifyOTP(svc, enums.UserTypeProvider, logg)
}

func verifyOTP(svc auth.Service, as enums.UserType, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		var req auth.VerifyOTPRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if as != "" {
			req.UserType = as
		}

		resp, err := svc.VerifyOTP(r.Context(), req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusOK
		if resp.IsNewUser {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, resp)
	}
}

// AuthRegisterProvider creates a provider account and sends its first login code.
func AuthRegisterProvider(svc auth.RegisterService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "registration service unavailable"))
			return
		}

		var req auth.ProviderRegisterRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp, err := svc.RegisterProvider(r.Context(), req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, resp)
	}
}
