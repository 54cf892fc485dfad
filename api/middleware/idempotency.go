package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/autocare/autocare-backend/api/responses"
	pkgerrors "github.com/autocare/autocare-backend/pkg/errors"
	"github.com/autocare/autocare-backend/pkg/logger"
	pkgredis "github.com/autocare/autocare-backend/pkg/redis"
)

const (
	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
	maxIdempotencyKeyLen   = 128
	replayedHeader         = "Idempotent-Replayed"
)

// idempotentRoute is a path template where "{}" matches one path segment.
type idempotentRoute struct {
	method   string
	segments []string
	ttl      time.Duration
}

func route(method, template string, ttl time.Duration) idempotentRoute {
	return idempotentRoute{method: method, segments: splitPath(template), ttl: ttl}
}

func (rt idempotentRoute) matches(method string, segments []string) bool {
	if rt.method != method || len(rt.segments) != len(segments) {
		return false
	}
	for i, want := range rt.segments {
		if want != "{}" && want != segments[i] {
			return false
		}
	}
	return true
}

// Booking creation and cancellation, and job completion, keep their keys for
// a week since clients retry those after long offline gaps.
var idempotentRoutes = []idempotentRoute{
	route(http.MethodPost, "/api/v1/bookings", criticalIdempotencyTTL),
	route(http.MethodPost, "/api/v1/bookings/{}/cancel", criticalIdempotencyTTL),
	route(http.MethodPost, "/api/v1/provider/assignments/{}/complete", criticalIdempotencyTTL),

	route(http.MethodPost, "/api/v1/addresses", defaultIdempotencyTTL),
	route(http.MethodPost, "/api/v1/notifications/{}/read", defaultIdempotencyTTL),
	route(http.MethodPost, "/api/v1/notifications/read-all", defaultIdempotencyTTL),
	route(http.MethodPost, "/api/v1/provider/assignments/{}/accept", defaultIdempotencyTTL),
	route(http.MethodPost, "/api/v1/provider/assignments/{}/reject", defaultIdempotencyTTL),
	route(http.MethodPost, "/api/v1/provider/assignments/{}/action", defaultIdempotencyTTL),
	route(http.MethodPost, "/api/v1/provider/assignments/{}/en-route", defaultIdempotencyTTL),
	route(http.MethodPost, "/api/v1/provider/assignments/{}/start", defaultIdempotencyTTL),
	route(http.MethodPost, "/api/v1/admin/assignments", defaultIdempotencyTTL),
	route(http.MethodPost, "/api/v1/admin/assignments/{}/cancel", defaultIdempotencyTTL),
	route(http.MethodPost, "/api/v1/admin/outbox/dead-letters/{}/replay", defaultIdempotencyTTL),
}

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        string `json:"body"`
	RequestHash string `json:"request_hash"`
}

// Idempotency replays the first response for a repeated Idempotency-Key on
// the mutating routes above. Keys are scoped to the caller and the path.
// Server errors are not stored so the client can retry them.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := idempotencyTTL(r.Method, r.URL.Path)
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
			switch {
			case clientKey == "":
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			case len(clientKey) > maxIdempotencyKeyLen:
				responses.WriteError(ctx, logg, w, pkgerrors.Newf(pkgerrors.CodeValidation, "Idempotency-Key longer than %d characters", maxIdempotencyKeyLen))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			requestHash := fingerprint(body)
			key := store.IdempotencyKey(callerScope(r), clientKey)

			prior, err := lookupResponse(ctx, store, key)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
				return
			}
			if prior != nil {
				if prior.RequestHash != requestHash {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
					return
				}
				prior.replay(w)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			status := capture.statusCode()
			if status >= http.StatusInternalServerError {
				return
			}
			record, err := json.Marshal(storedResponse{
				Status:      status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        base64.StdEncoding.EncodeToString(capture.body.Bytes()),
				RequestHash: requestHash,
			})
			if err == nil {
				_, err = store.SetNX(ctx, key, string(record), ttl)
			}
			if err != nil && logg != nil {
				logg.Error(ctx, "persist idempotency record", err)
			}
		})
	}
}

func idempotencyTTL(method, path string) (time.Duration, bool) {
	segments := splitPath(path)
	for _, rt := range idempotentRoutes {
		if rt.matches(method, segments) {
			return rt.ttl, true
		}
	}
	return 0, false
}

func splitPath(path string) []string {
	return strings.Split(strings.Trim(path, "/"), "/")
}

func callerScope(r *http.Request) string {
	return strings.Join([]string{
		UserIDFromContext(r.Context()),
		ProviderIDFromContext(r.Context()),
		r.Method,
		strings.TrimSuffix(r.URL.Path, "/"),
	}, "|")
}

func lookupResponse(ctx context.Context, store pkgredis.IdempotencyStore, key string) (*storedResponse, error) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) || (err == nil && raw == "") {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var prior storedResponse
	if err := json.Unmarshal([]byte(raw), &prior); err != nil {
		return nil, err
	}
	return &prior, nil
}

func (s *storedResponse) replay(w http.ResponseWriter) {
	if s.ContentType != "" {
		w.Header().Set("Content-Type", s.ContentType)
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(s.Status)
	if body, err := base64.StdEncoding.DecodeString(s.Body); err == nil {
		_, _ = w.Write(body)
	}
}

func fingerprint(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.RawStdEncoding.EncodeToString(sum[:])
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}
