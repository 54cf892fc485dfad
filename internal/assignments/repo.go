package assignments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/autocare/autocare-backend/pkg/db/models"
	"github.com/autocare/autocare-backend/pkg/enums"
	"github.com/autocare/autocare-backend/pkg/pagination"
)

// Repository exposes the persistence the lifecycle manager needs across the
// service_assignments, bookings and service_providers tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, assignment *models.ServiceAssignment) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ServiceAssignment, error)
	FindActiveByBooking(ctx context.Context, bookingID uuid.UUID) (*models.ServiceAssignment, error)
	RejectedProviderIDs(ctx context.Context, bookingID uuid.UUID) ([]uuid.UUID, error)
	Transition(ctx context.Context, id uuid.UUID, from enums.AssignmentStatus, updates map[string]any) (bool, error)
	ListByProvider(ctx context.Context, params listByProviderParams) ([]models.ServiceAssignment, *pagination.Cursor, error)
	FindBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	FindBookings(ctx context.Context, ids []uuid.UUID) ([]models.Booking, error)
	UpdateBooking(ctx context.Context, id uuid.UUID, updates map[string]any) error
	RecordMatchMiss(ctx context.Context, bookingID uuid.UUID, now time.Time) (int, error)
	ListRematchCandidates(ctx context.Context, limit int) ([]models.Booking, error)
	FindProvider(ctx context.Context, id uuid.UUID) (*models.ServiceProvider, error)
	ClaimProvider(ctx context.Context, claim providerClaim) (bool, error)
	IncrementCompletedJobs(ctx context.Context, providerID uuid.UUID) error
}

type listByProviderParams struct {
	ProviderID uuid.UUID
	Statuses   []enums.AssignmentStatus
	Limit      int
	Cursor     *pagination.Cursor
}

// providerClaim is a compare-and-set on service_providers.claim_version.
type providerClaim struct {
	ProviderID      uuid.UUID
	ExpectedVersion int64
	MaxActive       int
	Now             time.Time
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns an assignments repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, assignment *models.ServiceAssignment) error {
	if assignment.ID == uuid.Nil {
		assignment.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(assignment).Error
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.ServiceAssignment, error) {
	var assignment models.ServiceAssignment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&assignment).Error; err != nil {
		return nil, err
	}
	return &assignment, nil
}

func (r *repositoryImpl) FindActiveByBooking(ctx context.Context, bookingID uuid.UUID) (*models.ServiceAssignment, error) {
	var assignment models.ServiceAssignment
	err := r.db.WithContext(ctx).
		Where("booking_id = ? AND status IN ?", bookingID, enums.ActiveAssignmentStatuses).
		Order("created_at DESC").
		First(&assignment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &assignment, nil
}

func (r *repositoryImpl) RejectedProviderIDs(ctx context.Context, bookingID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.ServiceAssignment{}).
		Where("booking_id = ? AND status = ?", bookingID, enums.AssignmentStatusRejected).
		Distinct().
		Pluck("provider_id", &ids).Error
	return ids, err
}

// Transition applies updates only while the row is still in from, so two
// concurrent actors cannot both move the same assignment.
func (r *repositoryImpl) Transition(ctx context.Context, id uuid.UUID, from enums.AssignmentStatus, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ServiceAssignment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repositoryImpl) ListByProvider(ctx context.Context, params listByProviderParams) ([]models.ServiceAssignment, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.ServiceAssignment{}).Where("provider_id = ?", params.ProviderID)
	if len(params.Statuses) > 0 {
		query = query.Where("status IN ?", params.Statuses)
	}

	var rows []models.ServiceAssignment
	if err := query.Scopes(pagination.Keyset(params.Cursor, params.Limit)).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Trim(rows, params.Limit, func(a models.ServiceAssignment) pagination.Cursor {
		return pagination.Cursor{CreatedAt: a.CreatedAt, ID: a.ID}
	})
	return page, next, nil
}

func (r *repositoryImpl) FindBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&booking).Error; err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *repositoryImpl) FindBookings(ctx context.Context, ids []uuid.UUID) ([]models.Booking, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var bookings []models.Booking
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&bookings).Error
	return bookings, err
}

func (r *repositoryImpl) UpdateBooking(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repositoryImpl) RecordMatchMiss(ctx context.Context, bookingID uuid.UUID, now time.Time) (int, error) {
	err := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ?", bookingID).
		Updates(map[string]any{
			"match_attempts":        gorm.Expr("match_attempts + 1"),
			"last_match_attempt_at": now,
		}).Error
	if err != nil {
		return 0, err
	}
	var attempts int
	err = r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ?", bookingID).
		Pluck("match_attempts", &attempts).Error
	return attempts, err
}

func (r *repositoryImpl) ListRematchCandidates(ctx context.Context, limit int) ([]models.Booking, error) {
	if limit <= 0 {
		limit = 100
	}
	active := r.db.Model(&models.ServiceAssignment{}).
		Select("booking_id").
		Where("status IN ?", enums.ActiveAssignmentStatuses)

	var bookings []models.Booking
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.BookingStatusPending).
		Where("latitude IS NOT NULL AND longitude IS NOT NULL").
		Where("id NOT IN (?)", active).
		Order("last_match_attempt_at IS NOT NULL, last_match_attempt_at ASC, created_at ASC").
		Limit(limit).
		Find(&bookings).Error
	return bookings, err
}

func (r *repositoryImpl) FindProvider(ctx context.Context, id uuid.UUID) (*models.ServiceProvider, error) {
	var provider models.ServiceProvider
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&provider).Error; err != nil {
		return nil, err
	}
	return &provider, nil
}

func (r *repositoryImpl) ClaimProvider(ctx context.Context, claim providerClaim) (bool, error) {
	query := r.db.WithContext(ctx).
		Model(&models.ServiceProvider{}).
		Where("id = ? AND claim_version = ?", claim.ProviderID, claim.ExpectedVersion).
		Where("is_available = ? AND verification_status = ?", true, enums.VerificationStatusVerified)
	if claim.MaxActive > 0 {
		query = query.Where(
			"(SELECT COUNT(*) FROM service_assignments sa WHERE sa.provider_id = service_providers.id AND sa.status IN ?) < ?",
			enums.WorkloadAssignmentStatuses, claim.MaxActive,
		)
	}
	res := query.Updates(map[string]any{
		"claim_version":    gorm.Expr("claim_version + 1"),
		"last_assigned_at": claim.Now,
	})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repositoryImpl) IncrementCompletedJobs(ctx context.Context, providerID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.ServiceProvider{}).
		Where("id = ?", providerID).
		UpdateColumn("total_jobs_completed", gorm.Expr("total_jobs_completed + 1")).Error
}
