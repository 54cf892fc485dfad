package outbox

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/autocare/autocare-backend/pkg/db/models"
	pkgerrors "github.com/autocare/autocare-backend/pkg/errors"
	"github.com/autocare/autocare-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// DeadLetters lets operators inspect and replay events the publisher parked.
type DeadLetters struct {
	tx     txRunner
	events *Repository
	dlq    *DLQRepository
	logg   *logger.Logger
}

func NewDeadLetters(tx txRunner, events *Repository, dlq *DLQRepository, logg *logger.Logger) *DeadLetters {
	return &DeadLetters{tx: tx, events: events, dlq: dlq, logg: logg}
}

func (d *DeadLetters) List(ctx context.Context, filter DeadLetterFilter) ([]models.OutboxDLQ, error) {
	rows, err := d.dlq.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list dead letters")
	}
	return rows, nil
}

// Replay re-arms the outbox row behind a dead letter and drops the dead
// letter in the same transaction. When the row was already purged by
// retention the event cannot be replayed.
func (d *DeadLetters) Replay(ctx context.Context, eventID uuid.UUID) error {
	err := d.tx.WithTx(ctx, func(tx *gorm.DB) error {
		entry, err := d.dlq.FindByEventIDTx(tx, eventID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load dead letter")
		}
		if entry == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "dead letter not found")
		}
		requeued, err := d.events.RequeueTx(tx, eventID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "requeue outbox event")
		}
		if !requeued {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "outbox event was purged and cannot be replayed")
		}
		if err := d.dlq.DeleteTx(tx, eventID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete dead letter")
		}
		return nil
	})
	if err != nil {
		return err
	}
	if d.logg != nil {
		d.logg.Info(d.logg.WithField(ctx, "outbox_id", eventID.String()), "dead letter replayed")
	}
	return nil
}
