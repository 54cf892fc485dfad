package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/autocare/autocare-backend/api/middleware"
	"github.com/autocare/autocare-backend/internal/assignments"
	"github.com/autocare/autocare-backend/internal/auth"
	"github.com/autocare/autocare-backend/internal/providers"
	"github.com/autocare/autocare-backend/pkg/db/models"
	"github.com/autocare/autocare-backend/pkg/enums"
	pkgerrors "github.com/autocare/autocare-backend/pkg/errors"
	"github.com/autocare/autocare-backend/pkg/pagination"
)

// fakeLifecycle implements only the transitions the decision endpoint uses.
type fakeLifecycle struct {
	assignments.Service
	accepted *assignments.ActionInput
	rejected *assignments.RejectInput
}

func (f *fakeLifecycle) Accept(_ context.Context, input assignments.ActionInput) (*models.ServiceAssignment, error) {
	f.accepted = &input
	return &models.ServiceAssignment{ID: input.AssignmentID, ProviderID: input.ProviderID, Status: enums.AssignmentStatusAccepted}, nil
}

func (f *fakeLifecycle) Reject(_ context.Context, input assignments.RejectInput) (*assignments.RejectResult, error) {
	f.rejected = &input
	return &assignments.RejectResult{
		Rejected:      &models.ServiceAssignment{ID: input.AssignmentID, Status: enums.AssignmentStatusRejected},
		BookingStatus: enums.BookingStatusPending,
	}, nil
}

func providerRequest(method, target, body string, providerID uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	ctx := middleware.WithUserID(req.Context(), uuid.NewString())
	ctx = middleware.WithRole(ctx, string(enums.UserTypeProvider))
	ctx = middleware.WithProviderID(ctx, providerID.String())
	return req.WithContext(ctx)
}

func TestProviderAssignmentDecision(t *testing.T) {
	providerID, assignmentID := uuid.New(), uuid.New()
	target := "/api/v1/provider/assignments/" + assignmentID.String() + "/action"

	t.Run("accept", func(t *testing.T) {
		svc := &fakeLifecycle{}
		req := addRouteParam(providerRequest(http.MethodPost, target, `{"action":"accept"}`, providerID), "assignmentId", assignmentID.String())
		rec := httptest.NewRecorder()
		ProviderAssignmentDecision(svc, quietLogger()).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.NotNil(t, svc.accepted)
		require.Equal(t, assignmentID, svc.accepted.AssignmentID)
		require.Equal(t, providerID, svc.accepted.ProviderID)
		require.Nil(t, svc.rejected)
	})

	t.Run("reject with reason", func(t *testing.T) {
		svc := &fakeLifecycle{}
		req := addRouteParam(providerRequest(http.MethodPost, target, `{"action":"reject","reason":"  too   far "}`, providerID), "assignmentId", assignmentID.String())
		rec := httptest.NewRecorder()
		ProviderAssignmentDecision(svc, quietLogger()).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.NotNil(t, svc.rejected)
		require.Equal(t, "too far", svc.rejected.Reason)
		require.Contains(t, rec.Body.String(), `"reassigned":false`)
	})

	for name, body := range map[string]string{
		"reject without reason": `{"action":"reject","reason":"   "}`,
		"unknown action":        `{"action":"ignore"}`,
		"missing action":        `{}`,
	} {
		t.Run(name, func(t *testing.T) {
			svc := &fakeLifecycle{}
			req := addRouteParam(providerRequest(http.MethodPost, target, body, providerID), "assignmentId", assignmentID.String())
			rec := httptest.NewRecorder()
			ProviderAssignmentDecision(svc, quietLogger()).ServeHTTP(rec, req)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Nil(t, svc.accepted)
			require.Nil(t, svc.rejected)
		})
	}
}

// fakeProviderJobs records the bucket the job listing asked for.
type fakeProviderJobs struct {
	providers.Service
	bucket string
}

func (f *fakeProviderJobs) Assignments(_ context.Context, _ uuid.UUID, bucket string, _ pagination.Params) (*assignments.ListResult, error) {
	f.bucket = bucket
	if bucket == "bogus" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "status must be pending, active or history")
	}
	return &assignments.ListResult{}, nil
}

func TestProviderJobListings(t *testing.T) {
	providerID := uuid.New()

	svc := &fakeProviderJobs{}
	rec := httptest.NewRecorder()
	ProviderAvailableJobs(svc, quietLogger()).ServeHTTP(rec, providerRequest(http.MethodGet, "/api/v1/provider/jobs/available?status=history", "", providerID))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "pending", svc.bucket, "the available-jobs listing ignores the status filter")

	handler := ProviderAssignments(svc, quietLogger())
	for _, status := range []string{"active", "history"} {
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, providerRequest(http.MethodGet, "/api/v1/provider/assignments?status="+status, "", providerID))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, status, svc.bucket)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, providerRequest(http.MethodGet, "/api/v1/provider/assignments?status=bogus", "", providerID))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

// recordingAuth captures the account type each request was issued for.
type recordingAuth struct {
	sent     enums.UserType
	verified enums.UserType
}

func (r *recordingAuth) SendOTP(_ context.Context, req auth.SendOTPRequest) (*auth.SendOTPResponse, error) {
	r.sent = req.UserType
	return &auth.SendOTPResponse{MobileNumber: req.Mobile}, nil
}

func (r *recordingAuth) VerifyOTP(_ context.Context, req auth.VerifyOTPRequest) (*auth.AuthResponse, error) {
	r.verified = req.UserType
	return &auth.AuthResponse{}, nil
}

func TestProviderAuthForcesProviderAccountType(t *testing.T) {
	svc := &recordingAuth{}
	post := func(handler http.HandlerFunc, body string) int {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, post(ProviderSendOTP(svc, quietLogger()), `{"mobile_number":"9876543210","user_type":"customer"}`))
	require.Equal(t, enums.UserTypeProvider, svc.sent)
	require.Equal(t, http.StatusOK, post(ProviderVerifyOTP(svc, quietLogger()), `{"mobile_number":"9876543210","otp":"123456"}`))
	require.Equal(t, enums.UserTypeProvider, svc.verified)

	require.Equal(t, http.StatusOK, post(AuthSendOTP(svc, quietLogger()), `{"mobile_number":"9876543210","user_type":"customer"}`))
	require.Equal(t, enums.UserTypeCustomer, svc.sent)
}
