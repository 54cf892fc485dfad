package outbox

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/autocare/autocare-backend/pkg/db/models"
	"github.com/autocare/autocare-backend/pkg/enums"
)

const (
	maxDLQErrorLen  = 1024
	defaultDLQLimit = 50
	maxDLQListLimit = 200
)

// DLQRepository stores outbox rows the publisher gave up on.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.ErrorMessage != nil {
		msg := truncateDLQError(*entry.ErrorMessage)
		entry.ErrorMessage = &msg
	}
	return tx.Create(&entry).Error
}

// FindByEventIDTx returns nil when the event was never dead-lettered.
func (r *DLQRepository) FindByEventIDTx(tx *gorm.DB, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	var dlq models.OutboxDLQ
	err := tx.Where("event_id = ?", eventID).First(&dlq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &dlq, nil
}

// DeadLetterFilter narrows a dead-letter listing. A nil Reason lists all.
type DeadLetterFilter struct {
	Reason    *enums.OutboxDLQErrorReason
	EventType *enums.OutboxEventType
	Limit     int
}

// List returns the newest failures first.
func (r *DLQRepository) List(ctx context.Context, filter DeadLetterFilter) ([]models.OutboxDLQ, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultDLQLimit
	}
	if limit > maxDLQListLimit {
		limit = maxDLQListLimit
	}
	query := r.db.WithContext(ctx).Model(&models.OutboxDLQ{})
	if filter.Reason != nil {
		query = query.Where("error_reason = ?", *filter.Reason)
	}
	if filter.EventType != nil {
		query = query.Where("event_type = ?", *filter.EventType)
	}
	var rows []models.OutboxDLQ
	err := query.Order("failed_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

func (r *DLQRepository) DeleteTx(tx *gorm.DB, eventID uuid.UUID) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Where("event_id = ?", eventID).Delete(&models.OutboxDLQ{}).Error
}

// DeleteOrphanedBefore removes dead letters that failed before cutoff and
// whose outbox row has already been purged. Those can no longer be replayed.
func (r *DLQRepository) DeleteOrphanedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	db := r.db
	if tx != nil {
		db = tx
	}
	res := db.WithContext(ctx).
		Where("failed_at < ?", cutoff).
		Where("NOT EXISTS (SELECT 1 FROM outbox_events e WHERE e.id = outbox_dlq.event_id)").
		Delete(&models.OutboxDLQ{})
	return res.RowsAffected, res.Error
}

// truncateDLQError caps the message at maxDLQErrorLen bytes without
// splitting a UTF-8 sequence.
func truncateDLQError(message string) string {
	if len(message) <= maxDLQErrorLen {
		return message
	}
	cut := maxDLQErrorLen
	for cut > 0 && !utf8.RuneStart(message[cut]) {
		cut--
	}
	return message[:cut]
}
