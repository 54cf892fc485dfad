package middleware

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/autocare/autocare-backend/api/responses"
	pkgAuth "github.com/autocare/autocare-backend/pkg/auth"
	"github.com/autocare/autocare-backend/pkg/auth/session"
	"github.com/autocare/autocare-backend/pkg/config"
	pkgerrors "github.com/autocare/autocare-backend/pkg/errors"
	"github.com/autocare/autocare-backend/pkg/logger"
)

const wsTokenParam = "access_token"

// Auth requires a valid access token whose session is still live, then puts
// the caller's user, role and provider ids on the request context.
func Auth(cfg config.JWTConfig, sessions session.AccessSessionChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := bearerToken(r)
			if token == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}
			if claims.ID == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id"))
				return
			}
			if sessions != nil {
				live, err := sessions.HasSession(ctx, claims.ID)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate session"))
					return
				}
				if !live {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "session unavailable"))
					return
				}
			}

			userID, role := claims.UserID.String(), string(claims.Role)
			ctx = WithRole(WithUserID(ctx, userID), role)
			ctx = logg.WithActorRole(logg.WithUserID(ctx, userID), role)
			if claims.ProviderID != nil {
				providerID := claims.ProviderID.String()
				ctx = logg.WithProviderID(WithProviderID(ctx, providerID), providerID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken reads the Authorization header. Browsers cannot set headers on
// a websocket handshake, so upgrades may pass the token as a query parameter.
func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		if !websocket.IsWebSocketUpgrade(r) {
			return ""
		}
		return strings.TrimSpace(r.URL.Query().Get(wsTokenParam))
	}
	if scheme, rest, ok := strings.Cut(raw, " "); ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(rest)
	}
	return raw
}
