package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/autocare/autocare-backend/api/responses"
	"github.com/autocare/autocare-backend/api/validators"
	"github.com/autocare/autocare-backend/pkg/db/models"
	"github.com/autocare/autocare-backend/pkg/enums"
	pkgerrors "github.com/autocare/autocare-backend/pkg/errors"
	"github.com/autocare/autocare-backend/pkg/logger"
	"github.com/autocare/autocare-backend/pkg/outbox"
)

const maxDeadLetterLimit = 200

// DeadLetterService is the operator view over events the publisher gave up on.
type DeadLetterService interface {
	List(ctx context.Context, filter outbox.DeadLetterFilter) ([]models.OutboxDLQ, error)
	Replay(ctx context.Context, eventID uuid.UUID) error
}

type deadLetterView struct {
	EventID       uuid.UUID       `json:"event_id"`
	EventType     string          `json:"event_type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   uuid.UUID       `json:"aggregate_id"`
	Reason        string          `json:"error_reason"`
	Message       *string         `json:"error_message,omitempty"`
	AttemptCount  int             `json:"attempt_count"`
	FailedAt      time.Time       `json:"failed_at"`
	Payload       json.RawMessage `json:"payload"`
}

func newDeadLetterView(row models.OutboxDLQ) deadLetterView {
	return deadLetterView{
		EventID:       row.EventID,
		EventType:     string(row.EventType),
		AggregateType: string(row.AggregateType),
		AggregateID:   row.AggregateID,
		Reason:        string(row.ErrorReason),
		Message:       row.ErrorMessage,
		AttemptCount:  row.AttemptCount,
		FailedAt:      row.FailedAt,
		Payload:       row.Payload,
	}
}

// AdminDeadLetters answers GET /admin/outbox/dead-letters?reason=&event_type=&limit=.
func AdminDeadLetters(svc DeadLetterService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dead letter service unavailable"))
			return
		}
		var filter outbox.DeadLetterFilter
		if raw := r.URL.Query().Get("reason"); raw != "" {
			reason, err := enums.ParseOutboxDLQErrorReason(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown reason"))
				return
			}
			filter.Reason = &reason
		}
		if raw := r.URL.Query().Get("event_type"); raw != "" {
			eventType, err := enums.ParseOutboxEventType(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid event_type"))
				return
			}
			filter.EventType = &eventType
		}
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, maxDeadLetterLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter.Limit = limit

		rows, err := svc.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		views := make([]deadLetterView, 0, len(rows))
		for _, row := range rows {
			views = append(views, newDeadLetterView(row))
		}
		responses.WriteSuccess(w, map[string]any{"dead_letters": views, "count": len(views)})
	}
}

// AdminReplayDeadLetter re-queues the outbox row behind a dead letter.
func AdminReplayDeadLetter(svc DeadLetterService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dead letter service unavailable"))
			return
		}
		eventID, err := pathUUID(r, "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Replay(r.Context(), eventID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]string{
			"event_id": eventID.String(),
			"status":   "requeued",
		})
	}
}
