package addresses

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/autocare/autocare-backend/internal/repo"
	"github.com/autocare/autocare-backend/pkg/db/models"
)

// Repository persists saved customer addresses. Every lookup is scoped to
// the owning user.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Bind(tx)}
}

func (r *Repository) Create(ctx context.Context, address *models.Address) error {
	if address.ID == uuid.Nil {
		address.ID = uuid.New()
	}
	return r.DB(ctx).Create(address).Error
}

func (r *Repository) FindForUser(ctx context.Context, id, userID uuid.UUID) (*models.Address, error) {
	var address models.Address
	if err := r.DB(ctx).Where("id = ? AND user_id = ?", id, userID).First(&address).Error; err != nil {
		return nil, err
	}
	return &address, nil
}

// ListByUser returns the default address first, then newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Address, error) {
	var rows []models.Address
	err := r.DB(ctx).
		Where("user_id = ?", userID).
		Order("is_default DESC").
		Order("created_at DESC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *Repository) CountByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	return r.Count(ctx, &models.Address{}, "user_id = ?", userID)
}

func (r *Repository) Update(ctx context.Context, id, userID uuid.UUID, updates map[string]any) error {
	res := r.DB(ctx).Model(&models.Address{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	res := r.DB(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&models.Address{})
	return res.RowsAffected > 0, res.Error
}

// ClearDefault unsets the default flag on every address of the user.
func (r *Repository) ClearDefault(ctx context.Context, userID uuid.UUID) error {
	return r.DB(ctx).Model(&models.Address{}).
		Where("user_id = ? AND is_default = ?", userID, true).
		Update("is_default", false).Error
}

func (r *Repository) MarkDefault(ctx context.Context, id, userID uuid.UUID) error {
	return r.Update(ctx, id, userID, map[string]any{"is_default": true})
}

// Newest returns the most recently created address of the user.
func (r *Repository) Newest(ctx context.Context, userID uuid.UUID) (*models.Address, error) {
	var address models.Address
	err := r.DB(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id ASC").
		First(&address).Error
	if err != nil {
		return nil, err
	}
	return &address, nil
}
