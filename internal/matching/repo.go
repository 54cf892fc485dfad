package matching

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/autocare/autocare-backend/internal/geo"
	"github.com/autocare/autocare-backend/pkg/db/models"
	"github.com/autocare/autocare-backend/pkg/enums"
)

// ProviderFilter narrows the eligible provider query.
type ProviderFilter struct {
	Near       *geo.Point
	RadiusKm   float64
	FreshSince *time.Time
	Exclude    []uuid.UUID
}

// CandidateSource loads the raw provider data the locator ranks.
type CandidateSource interface {
	EligibleProviders(ctx context.Context, filter ProviderFilter) ([]models.ServiceProvider, error)
	ActiveJobCounts(ctx context.Context, providerIDs []uuid.UUID) (map[uuid.UUID]int, error)
}

// Repository reads candidates from the service_providers and
// service_assignments tables.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a candidate source to db.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository that runs on tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) EligibleProviders(ctx context.Context, filter ProviderFilter) ([]models.ServiceProvider, error) {
	query := r.db.WithContext(ctx).
		Model(&models.ServiceProvider{}).
		Where("is_available = ?", true).
		Where("verification_status = ?", enums.VerificationStatusVerified).
		Where("current_latitude IS NOT NULL AND current_longitude IS NOT NULL")

	if filter.FreshSince != nil {
		query = query.Where("location_updated_at >= ?", *filter.FreshSince)
	}
	if len(filter.Exclude) > 0 {
		query = query.Where("id NOT IN ?", filter.Exclude)
	}
	if filter.Near != nil && filter.RadiusKm > 0 {
		box := geo.BoundsFor(*filter.Near, filter.RadiusKm)
		query = query.Where("current_latitude BETWEEN ? AND ?", box.MinLat, box.MaxLat)
		if !box.WrapsLongitude {
			query = query.Where("current_longitude BETWEEN ? AND ?", box.MinLng, box.MaxLng)
		}
	}

	var providers []models.ServiceProvider
	if err := query.Order("id ASC").Find(&providers).Error; err != nil {
		return nil, err
	}
	return providers, nil
}

func (r *Repository) ActiveJobCounts(ctx context.Context, providerIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	counts := make(map[uuid.UUID]int, len(providerIDs))
	if len(providerIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		ProviderID uuid.UUID
		Total      int
	}
	err := r.db.WithContext(ctx).
		Model(&models.ServiceAssignment{}).
		Select("provider_id, COUNT(*) AS total").
		Where("provider_id IN ?", providerIDs).
		Where("status IN ?", enums.WorkloadAssignmentStatuses).
		Group("provider_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.ProviderID] = row.Total
	}
	return counts, nil
}
