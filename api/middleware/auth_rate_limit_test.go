package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/autocare/autocare-backend/pkg/errors"
)

func rateLimited(policy AuthRateLimitPolicy, store RateLimiterStore) http.Handler {
	return AuthRateLimit(policy, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func otpRequest(path, body, remote string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.RemoteAddr = remote
	return req
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload.Error.Code
}

func TestAuthRateLimitPreservesBodyForHandler(t *testing.T) {
	const body = `{"mobile_number":"9876543210","user_type":"customer"}`
	handler := AuthRateLimit(NewAuthRateLimitPolicy("otp_send", time.Minute, 2, 2), newFakeRateStore(), nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			require.JSONEq(t, body, string(got))
			w.WriteHeader(http.StatusOK)
		}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, otpRequest("/api/v1/auth/send-otp", body, "1.2.3.4:5678"))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRateLimitCountsMobileAcrossFormats(t *testing.T) {
	handler := rateLimited(NewAuthRateLimitPolicy("otp_verify", time.Minute, 0, 2), newFakeRateStore())

	for i, mobile := range []string{"+91 98765 43210", "09876543210", "9876543210"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, otpRequest("/api/v1/auth/verify-otp", `{"mobile_number":"`+mobile+`","otp":"123456"}`, "1.2.3.4:5678"))
		if i < 2 {
			require.Equal(t, http.StatusOK, rec.Code, "attempt %d", i)
			continue
		}
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.Equal(t, string(pkgerrors.CodeRateLimit), errorCode(t, rec))
		require.Equal(t, "60", rec.Header().Get("Retry-After"))
	}
}

func TestAuthRateLimitIPLimit(t *testing.T) {
	store := newFakeRateStore()
	handler := rateLimited(NewAuthRateLimitPolicy("otp_send", time.Minute, 1, 0), store)

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, otpRequest("/api/v1/auth/send-otp", `{"mobile_number":"9123456780"}`, "5.6.7.8:1234"))
	require.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, otpRequest("/api/v1/auth/send-otp", `{"mobile_number":"9000000001"}`, "5.6.7.8:1234"))
	require.Equal(t, http.StatusTooManyRequests, second.Code)

	other := httptest.NewRecorder()
	handler.ServeHTTP(other, otpRequest("/api/v1/auth/send-otp", `{"mobile_number":"9123456780"}`, "9.9.9.9:1234"))
	require.Equal(t, http.StatusOK, other.Code)
}

func TestAuthRateLimitStoresHashedMobiles(t *testing.T) {
	store := newFakeRateStore()
	handler := rateLimited(NewAuthRateLimitPolicy("otp_send", time.Minute, 0, 5), store)

	handler.ServeHTTP(httptest.NewRecorder(), otpRequest("/api/v1/auth/send-otp", `{"mobile_number":"9876543210"}`, "1.2.3.4:1"))
	require.Len(t, store.counts, 1)
	for key := range store.counts {
		require.NotContains(t, key, "9876543210")
		require.True(t, strings.HasPrefix(key, "rl:mobile:otp_send:"))
	}
}

func TestAuthRateLimitStoreFailure(t *testing.T) {
	handler := rateLimited(NewAuthRateLimitPolicy("otp_send", time.Minute, 1, 0), &fakeRateStore{err: errors.New("redis down")})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, otpRequest("/api/v1/auth/send-otp", `{}`, "1.2.3.4:1"))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, string(pkgerrors.CodeDependency), errorCode(t, rec))
}

func TestAuthRateLimitDisabledPolicyPassesThrough(t *testing.T) {
	store := newFakeRateStore()
	handler := rateLimited(NewAuthRateLimitPolicy("otp_send", 0, 1, 1), store)

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, otpRequest("/api/v1/auth/send-otp", `{"mobile_number":"9876543210"}`, "1.2.3.4:1"))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	require.Empty(t, store.counts)
}

func TestClientIPPrefersForwardedHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:443"
	require.Equal(t, "10.0.0.1", clientIP(req))

	req.Header.Set("X-Real-IP", "203.0.113.9")
	require.Equal(t, "203.0.113.9", clientIP(req))

	req.Header.Set("X-Forwarded-For", " 198.51.100.7 , 10.0.0.1")
	require.Equal(t, "198.51.100.7", clientIP(req))
}

type fakeRateStore struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newFakeRateStore() *fakeRateStore {
	return &fakeRateStore{counts: map[string]int64{}}
}

func (f *fakeRateStore) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[key]++
	return f.counts[key], nil
}
