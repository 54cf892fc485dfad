package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/autocare/autocare-backend/api/responses"
	authsvc "github.com/autocare/autocare-backend/internal/auth"
	pkgerrors "github.com/autocare/autocare-backend/pkg/errors"
	"github.com/autocare/autocare-backend/pkg/logger"
)

type RateLimiterStore interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
}

// AuthRateLimitPolicy defines the throttling parameters for a traffic surface.
type AuthRateLimitPolicy struct {
	name        string
	window      time.Duration
	ipLimit     int
	mobileLimit int
}

// NewAuthRateLimitPolicy builds a policy with the supplied window and limits.
func NewAuthRateLimitPolicy(name string, window time.Duration, ipLimit, mobileLimit int) AuthRateLimitPolicy {
	return AuthRateLimitPolicy{
		name:        strings.ToLower(strings.TrimSpace(name)),
		window:      window,
		ipLimit:     ipLimit,
		mobileLimit: mobileLimit,
	}
}

func (p AuthRateLimitPolicy) enabled() bool {
	return p.window > 0 && (p.ipLimit > 0 || p.mobileLimit > 0)
}

func (p AuthRateLimitPolicy) normalizedName() string {
	if p.name == "" {
		return "auth"
	}
	return p.name
}

func (p AuthRateLimitPolicy) ipKey(ip string) string {
	if ip == "" {
		return ""
	}
	return fmt.Sprintf("rl:ip:%s:%s", p.normalizedName(), ip)
}

func (p AuthRateLimitPolicy) mobileKey(hash string) string {
	if hash == "" {
		return ""
	}
	return fmt.Sprintf("rl:mobile:%s:%s", p.normalizedName(), hash)
}

// AuthRateLimit enforces per-IP and per-mobile counters for the OTP endpoints.
// Mobiles are hashed before they reach redis.
func AuthRateLimit(policy AuthRateLimitPolicy, store RateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			// check reports false once it has written the response.
			check := func(scope, key, label string, limit int) bool {
				if limit <= 0 || key == "" {
					return true
				}
				count, err := store.IncrWithTTL(ctx, key, policy.window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return false
				}
				if count <= int64(limit) {
					return true
				}
				logg.Warn(logg.WithFields(ctx, map[string]any{
					"scope":          scope,
					"subject":        label,
					"policy":         policy.normalizedName(),
					"attempts":       count,
					"limit":          limit,
					"window_seconds": int(policy.window.Seconds()),
				}), "auth.rate_limit.blocked")
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(policy.window)))
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
				return false
			}

			ip := clientIP(r)
			if !check("ip", policy.ipKey(ip), ip, policy.ipLimit) {
				return
			}

			if policy.mobileLimit > 0 {
				body, err := io.ReadAll(r.Body)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))

				// Unparseable numbers fall through; the handler rejects them.
				if mobile, err := authsvc.NormalizeMobile(extractMobile(body)); err == nil {
					hash := hashValue(mobile)
					if !check("mobile", policy.mobileKey(hash), hash, policy.mobileLimit) {
						return
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func retryAfterSeconds(window time.Duration) int {
	if secs := int(window.Seconds()); secs > 0 {
		return secs
	}
	return 1
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func extractMobile(payload []byte) string {
	var body struct {
		Mobile string `json:"mobile_number"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	return body.Mobile
}

func hashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
