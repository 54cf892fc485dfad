package providers

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/autocare/autocare-backend/pkg/db/models"
	"github.com/autocare/autocare-backend/pkg/enums"
)

// Repository persists provider profiles, their coverage and position reports.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, provider *models.ServiceProvider) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ServiceProvider, error)
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.ServiceProvider, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.ServiceProvider, error)
	NextEmployeeNumber(ctx context.Context) (int64, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	ServiceAreaIDs(ctx context.Context, providerID uuid.UUID) ([]uuid.UUID, error)
	ReplaceServiceAreas(ctx context.Context, providerID uuid.UUID, areaIDs []uuid.UUID) error
	CountServiceAreas(ctx context.Context, ids []uuid.UUID) (int64, error)
	RecordLocation(ctx context.Context, loc *models.ProviderLocation) error
	ListWithLocation(ctx context.Context) ([]models.ServiceProvider, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, provider *models.ServiceProvider) error {
	if provider.ID == uuid.Nil {
		provider.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(provider).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ServiceProvider, error) {
	var provider models.ServiceProvider
	if err := r.db.WithContext(ctx).First(&provider, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &provider, nil
}

func (r *repository) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.ServiceProvider, error) {
	var provider models.ServiceProvider
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&provider).Error; err != nil {
		return nil, err
	}
	return &provider, nil
}

func (r *repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.ServiceProvider, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []models.ServiceProvider
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&out).Error
	return out, err
}

// NextEmployeeNumber draws from provider_employee_seq. SQLite has no
// sequences, so there the next number follows the row count.
func (r *repository) NextEmployeeNumber(ctx context.Context) (int64, error) {
	db := r.db.WithContext(ctx)
	var next int64
	if db.Dialector.Name() == "sqlite" {
		if err := db.Model(&models.ServiceProvider{}).Count(&next).Error; err != nil {
			return 0, err
		}
		return next + 1, nil
	}
	if err := db.Raw("SELECT nextval('provider_employee_seq')").Scan(&next).Error; err != nil {
		return 0, fmt.Errorf("next employee number: %w", err)
	}
	return next, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Model(&models.ServiceProvider{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) ServiceAreaIDs(ctx context.Context, providerID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.ProviderServiceArea{}).
		Where("provider_id = ?", providerID).
		Order("service_area_id ASC").
		Pluck("service_area_id", &ids).Error
	return ids, err
}

func (r *repository) ReplaceServiceAreas(ctx context.Context, providerID uuid.UUID, areaIDs []uuid.UUID) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("provider_id = ?", providerID).Delete(&models.ProviderServiceArea{}).Error; err != nil {
		return err
	}
	if len(areaIDs) == 0 {
		return nil
	}
	rows := make([]models.ProviderServiceArea, 0, len(areaIDs))
	for _, id := range areaIDs {
		rows = append(rows, models.ProviderServiceArea{ProviderID: providerID, ServiceAreaID: id})
	}
	return db.Create(&rows).Error
}

func (r *repository) CountServiceAreas(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ServiceArea{}).Where("id IN ?", ids).Count(&count).Error
	return count, err
}

// RecordLocation appends the report and moves the provider's denormalised
// latest position, unless a newer report has already landed.
func (r *repository) RecordLocation(ctx context.Context, loc *models.ProviderLocation) error {
	db := r.db.WithContext(ctx)
	if loc.ID == uuid.Nil {
		loc.ID = uuid.New()
	}
	if err := db.Create(loc).Error; err != nil {
		return err
	}
	res := db.Model(&models.ServiceProvider{}).
		Where("id = ?", loc.ProviderID).
		Where("location_updated_at IS NULL OR location_updated_at <= ?", loc.RecordedAt).
		Updates(map[string]any{
			"current_latitude":    loc.Latitude,
			"current_longitude":   loc.Longitude,
			"location_updated_at": loc.RecordedAt,
		})
	return res.Error
}

// ListWithLocation returns verified, available providers that have reported a
// position. It backs nearby search when the geo index is not wired.
func (r *repository) ListWithLocation(ctx context.Context) ([]models.ServiceProvider, error) {
	var out []models.ServiceProvider
	err := r.db.WithContext(ctx).
		Where("is_available = ?", true).
		Where("verification_status = ?", enums.VerificationStatusVerified).
		Where("current_latitude IS NOT NULL AND current_longitude IS NOT NULL").
		Order("id ASC").
		Find(&out).Error
	return out, err
}
