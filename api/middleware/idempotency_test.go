package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/autocare/autocare-backend/pkg/errors"
)

type fakeStore struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	f.ttls[key] = ttl
	return true, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func postWithKey(path, body, key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	return req
}

func TestIdempotencyTTLMatchesConcretePaths(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		want   time.Duration
		ok     bool
	}{
		{"booking create", http.MethodPost, "/api/v1/bookings", criticalIdempotencyTTL, true},
		{"booking create trailing slash", http.MethodPost, "/api/v1/bookings/", criticalIdempotencyTTL, true},
		{"booking cancel", http.MethodPost, "/api/v1/bookings/8d0c/cancel", criticalIdempotencyTTL, true},
		{"provider complete", http.MethodPost, "/api/v1/provider/assignments/42/complete", criticalIdempotencyTTL, true},
		{"provider accept", http.MethodPost, "/api/v1/provider/assignments/42/accept", defaultIdempotencyTTL, true},
		{"admin manual assign", http.MethodPost, "/api/v1/admin/assignments", defaultIdempotencyTTL, true},
		{"admin cancel", http.MethodPost, "/api/v1/admin/assignments/42/cancel", defaultIdempotencyTTL, true},
		{"dead letter replay", http.MethodPost, "/api/v1/admin/outbox/dead-letters/42/replay", defaultIdempotencyTTL, true},
		{"booking list", http.MethodGet, "/api/v1/bookings", 0, false},
		{"extra segment", http.MethodPost, "/api/v1/bookings/1/2/cancel", 0, false},
		{"otp verify", http.MethodPost, "/api/v1/auth/verify-otp", 0, false},
	}
	for _, tt := range tests {
		ttl, ok := idempotencyTTL(tt.method, tt.path)
		require.Equal(t, tt.ok, ok, tt.name)
		require.Equal(t, tt.want, ttl, tt.name)
	}
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	called := false
	handler := Idempotency(newFakeStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, postWithKey("/api/v1/bookings", `{}`, ""))
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.False(t, called)

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, postWithKey("/api/v1/bookings", `{}`, strings.Repeat("k", maxIdempotencyKeyLen+1)))
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.False(t, called)
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	var calls int
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"booking_number":"BK-1"}`))
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, postWithKey("/api/v1/bookings", `{"slot":"09:00"}`, "abc"))
	require.Equal(t, http.StatusCreated, first.Code)
	require.Empty(t, first.Header().Get(replayedHeader))

	replay := httptest.NewRecorder()
	handler.ServeHTTP(replay, postWithKey("/api/v1/bookings", `{"slot":"09:00"}`, "abc"))
	require.Equal(t, http.StatusCreated, replay.Code)
	require.Equal(t, "application/json", replay.Header().Get("Content-Type"))
	require.Equal(t, "true", replay.Header().Get(replayedHeader))
	require.JSONEq(t, `{"booking_number":"BK-1"}`, replay.Body.String())
	require.Equal(t, 1, calls)

	for _, ttl := range store.ttls {
		require.Equal(t, criticalIdempotencyTTL, ttl)
	}
}

func TestIdempotencyRejectsChangedBody(t *testing.T) {
	handler := Idempotency(newFakeStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), postWithKey("/api/v1/bookings/7/cancel", `{"reason":"a"}`, "xyz"))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, postWithKey("/api/v1/bookings/7/cancel", `{"reason":"b"}`, "xyz"))
	require.Equal(t, http.StatusConflict, resp.Code)

	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	require.Equal(t, string(pkgerrors.CodeIdempotency), payload.Error.Code)
}

func TestIdempotencyDoesNotStoreServerErrors(t *testing.T) {
	store := newFakeStore()
	var calls int
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, postWithKey("/api/v1/addresses", `{}`, "retry-me"))
	require.Equal(t, http.StatusServiceUnavailable, first.Code)
	require.Empty(t, store.data)

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, postWithKey("/api/v1/addresses", `{}`, "retry-me"))
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, 2, calls)
}

func TestIdempotencyScopeSeparatesUsers(t *testing.T) {
	var calls int
	handler := Idempotency(newFakeStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	for _, userID := range []string{"user-a", "user-b"} {
		req := postWithKey("/api/v1/bookings", `{}`, "shared")
		req = req.WithContext(WithUserID(req.Context(), userID))
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	require.Equal(t, 2, calls)
}

func TestIdempotencyIgnoresUnlistedRoutes(t *testing.T) {
	store := newFakeStore()
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/bookings", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	require.Empty(t, store.data)
}
