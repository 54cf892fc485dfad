package serviceareas

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/autocare/autocare-backend/internal/repo"
	"github.com/autocare/autocare-backend/pkg/db/models"
)

// Repository persists service areas.
type Repository struct {
	repo.Base
}

// NewRepository binds a GORM DB to service area operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

func (r *Repository) Create(ctx context.Context, area *models.ServiceArea) error {
	if area.ID == uuid.Nil {
		area.ID = uuid.New()
	}
	return r.DB(ctx).Create(area).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ServiceArea, error) {
	var area models.ServiceArea
	if err := r.DB(ctx).Where("id = ?", id).First(&area).Error; err != nil {
		return nil, err
	}
	return &area, nil
}

// List returns areas ordered by name; activeOnly drops deactivated rows.
func (r *Repository) List(ctx context.Context, activeOnly bool) ([]models.ServiceArea, error) {
	query := r.DB(ctx).Model(&models.ServiceArea{})
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	var areas []models.ServiceArea
	if err := query.Order("name ASC").Find(&areas).Error; err != nil {
		return nil, err
	}
	return areas, nil
}

func (r *Repository) Update(ctx context.Context, area *models.ServiceArea) error {
	return r.DB(ctx).Save(area).Error
}

// Delete removes the area and its provider coverage links.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	var deleted bool
	err := r.DB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("service_area_id = ?", id).Delete(&models.ProviderServiceArea{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.ServiceArea{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected > 0
		return nil
	})
	return deleted, err
}
