package controllers

import (
	"net/http"

	"github.com/autocare/autocare-backend/api/responses"
	"github.com/autocare/autocare-backend/internal/realtime"
	pkgerrors "github.com/autocare/autocare-backend/pkg/errors"
	"github.com/autocare/autocare-backend/pkg/logger"
)

// RealtimeConnect upgrades GET /api/v1/ws to a websocket bound to the caller.
// The upgrader writes its own HTTP error when the handshake fails.
func RealtimeConnect(hub *realtime.Hub, allowedOrigins []string, logg *logger.Logger) http.HandlerFunc {
	upgrader := realtime.Upgrader(allowedOrigins)
	return func(w http.ResponseWriter, r *http.Request) {
		if hub == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "realtime hub unavailable"))
			return
		}
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := hub.Serve(w, r, upgrader, userID); err != nil && logg != nil {
			logg.Warn(logg.WithField(r.Context(), "user_id", userID.String()), "websocket upgrade failed: "+err.Error())
		}
	}
}
