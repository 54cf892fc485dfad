package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/autocare/autocare-backend/api/middleware"
	"github.com/autocare/autocare-backend/internal/notifications"
	pkgerrors "github.com/autocare/autocare-backend/pkg/errors"
	"github.com/autocare/autocare-backend/pkg/logger"
)

// fakeInbox records what the handlers pass to the notifications service.
type fakeInbox struct {
	listed   notifications.ListParams
	markedBy uuid.UUID
	marked   uuid.UUID
	allFor   uuid.UUID
	updated  int64
	err      error
}

func (f *fakeInbox) List(_ context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
	f.listed = params
	if f.err != nil {
		return nil, f.err
	}
	return &notifications.ListResult{Items: []notifications.NotificationDTO{}, UnreadCount: 2}, nil
}

func (f *fakeInbox) MarkRead(_ context.Context, userID, notificationID uuid.UUID) error {
	f.markedBy, f.marked = userID, notificationID
	return f.err
}

func (f *fakeInbox) MarkAllRead(_ context.Context, userID uuid.UUID) (int64, error) {
	f.allFor = userID
	return f.updated, f.err
}

func quietLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func addRouteParam(req *http.Request, key, value string) *http.Request {
	routeCtx := chi.RouteContext(req.Context())
	if routeCtx == nil {
		routeCtx = chi.NewRouteContext()
	}
	routeCtx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func asUser(req *http.Request, userID string) *http.Request {
	return req.WithContext(middleware.WithUserID(req.Context(), userID))
}

func TestListNotificationsPassesPagingAndFilter(t *testing.T) {
	inbox := &fakeInbox{}
	userID := uuid.New()
	req := asUser(httptest.NewRequest(http.MethodGet, "/api/v1/notifications?limit=10&cursor=abc&unread_only=true", nil), userID.String())

	rec := httptest.NewRecorder()
	ListNotifications(inbox, quietLogger()).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, notifications.ListParams{UserID: userID, Limit: 10, Cursor: "abc", UnreadOnly: true}, inbox.listed)

	var envelope struct {
		Data notifications.ListResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.EqualValues(t, 2, envelope.Data.UnreadCount)
}

func TestListNotificationsRejectsBadQuery(t *testing.T) {
	for _, query := range []string{"limit=0", "limit=1000", "limit=ten", "unread_only=maybe"} {
		t.Run(query, func(t *testing.T) {
			inbox := &fakeInbox{}
			req := asUser(httptest.NewRequest(http.MethodGet, "/api/v1/notifications?"+query, nil), uuid.NewString())
			rec := httptest.NewRecorder()
			ListNotifications(inbox, quietLogger()).ServeHTTP(rec, req)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Equal(t, uuid.Nil, inbox.listed.UserID, "service must not be called")
		})
	}
}

func TestMarkNotificationRead(t *testing.T) {
	userID, notificationID := uuid.New(), uuid.New()

	cases := []struct {
		name    string
		user    string
		param   string
		svcErr  error
		status  int
		reaches bool
	}{
		{name: "marks", user: userID.String(), param: notificationID.String(), status: http.StatusOK, reaches: true},
		{name: "no user", param: notificationID.String(), status: http.StatusUnauthorized},
		{name: "malformed user", user: "bad", param: notificationID.String(), status: http.StatusUnauthorized},
		{name: "malformed id", user: userID.String(), param: "invalid", status: http.StatusBadRequest},
		{name: "someone else's", user: userID.String(), param: notificationID.String(), svcErr: pkgerrors.New(pkgerrors.CodeNotFound, "notification not found"), status: http.StatusNotFound, reaches: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inbox := &fakeInbox{err: tc.svcErr}
			req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications/"+tc.param+"/read", nil)
			if tc.user != "" {
				req = asUser(req, tc.user)
			}
			req = addRouteParam(req, "notificationId", tc.param)

			rec := httptest.NewRecorder()
			MarkNotificationRead(inbox, quietLogger()).ServeHTTP(rec, req)

			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			if !tc.reaches {
				require.Equal(t, uuid.Nil, inbox.marked)
				return
			}
			require.Equal(t, userID, inbox.markedBy)
			require.Equal(t, notificationID, inbox.marked)
		})
	}
}

func TestMarkAllNotificationsReadReportsCount(t *testing.T) {
	inbox := &fakeInbox{updated: 5}
	userID := uuid.New()
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/notifications/read-all", nil), userID.String())

	rec := httptest.NewRecorder()
	MarkAllNotificationsRead(inbox, quietLogger()).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, userID, inbox.allFor)
	require.JSONEq(t, `{"data":{"updated":5}}`, rec.Body.String())
}

func TestNotificationHandlersWithoutService(t *testing.T) {
	rec := httptest.NewRecorder()
	ListNotifications(nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
