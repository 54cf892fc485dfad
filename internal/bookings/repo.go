package bookings

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/autocare/autocare-backend/pkg/db/models"
	"github.com/autocare/autocare-backend/pkg/enums"
	"github.com/autocare/autocare-backend/pkg/pagination"
)

// Repository persists bookings.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, booking *models.Booking) error
	FindForUser(ctx context.Context, id, userID uuid.UUID) (*models.Booking, error)
	List(ctx context.Context, params listQuery) ([]models.Booking, *pagination.Cursor, error)
	HasOpenSlot(ctx context.Context, userID uuid.UUID, date time.Time, slot string) (bool, error)
	TakenSlots(ctx context.Context, userID uuid.UUID, date time.Time) ([]string, error)
	MarkCancelled(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	StatusCounts(ctx context.Context, userID uuid.UUID) (map[enums.BookingStatus]int64, error)
	UniqueLocations(ctx context.Context, userID uuid.UUID) (int64, error)
	AddressUsage(ctx context.Context, userID uuid.UUID, limit int) ([]AddressUsage, error)
	FindAddress(ctx context.Context, id, userID uuid.UUID) (*models.Address, error)
}

type listQuery struct {
	UserID uuid.UUID
	Status *enums.BookingStatus
	Limit  int
	Cursor *pagination.Cursor
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to booking operations.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, booking *models.Booking) error {
	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(booking).Error
}

func (r *repository) FindForUser(ctx context.Context, id, userID uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&booking).Error; err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *repository) List(ctx context.Context, params listQuery) ([]models.Booking, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.Booking{}).Where("user_id = ?", params.UserID)
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}

	var rows []models.Booking
	if err := query.Scopes(pagination.Keyset(params.Cursor, params.Limit)).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Trim(rows, params.Limit, func(b models.Booking) pagination.Cursor {
		return pagination.Cursor{CreatedAt: b.CreatedAt, ID: b.ID}
	})
	return page, next, nil
}

func (r *repository) HasOpenSlot(ctx context.Context, userID uuid.UUID, date time.Time, slot string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("user_id = ? AND booking_date = ? AND time_slot = ? AND status IN ?", userID, date, slot, enums.OpenBookingStatuses).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) TakenSlots(ctx context.Context, userID uuid.UUID, date time.Time) ([]string, error) {
	var slots []string
	err := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("user_id = ? AND booking_date = ? AND status IN ?", userID, date, enums.OpenBookingStatuses).
		Distinct().
		Pluck("time_slot", &slots).Error
	return slots, err
}

func (r *repository) MarkCancelled(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ? AND status IN ?", id, []enums.BookingStatus{enums.BookingStatusPending, enums.BookingStatusConfirmed}).
		Updates(map[string]any{
			"status":       enums.BookingStatusCancelled,
			"cancelled_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) StatusCounts(ctx context.Context, userID uuid.UUID) (map[enums.BookingStatus]int64, error) {
	var rows []struct {
		Status enums.BookingStatus
		Total  int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Select("status, COUNT(*) AS total").
		Where("user_id = ?", userID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[enums.BookingStatus]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Total
	}
	return out, nil
}

func (r *repository) UniqueLocations(ctx context.Context, userID uuid.UUID) (int64, error) {
	distinct := r.db.Model(&models.Booking{}).
		Select("DISTINCT latitude, longitude").
		Where("user_id = ? AND latitude IS NOT NULL AND longitude IS NOT NULL", userID)
	var count int64
	err := r.db.WithContext(ctx).Table("(?) AS locations", distinct).Count(&count).Error
	return count, err
}

func (r *repository) AddressUsage(ctx context.Context, userID uuid.UUID, limit int) ([]AddressUsage, error) {
	var rows []struct {
		AddressID  uuid.UUID
		UsageCount int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Select("address_id, COUNT(*) AS usage_count").
		Where("user_id = ? AND address_id IS NOT NULL", userID).
		Group("address_id").
		Order("usage_count DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil || len(rows) == 0 {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.AddressID)
	}
	var addresses []models.Address
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&addresses).Error; err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]models.Address, len(addresses))
	for _, a := range addresses {
		byID[a.ID] = a
	}

	out := make([]AddressUsage, 0, len(rows))
	for _, row := range rows {
		usage := AddressUsage{AddressID: row.AddressID, UsageCount: row.UsageCount}
		if a, ok := byID[row.AddressID]; ok {
			usage.Label = string(a.AddressType)
			usage.FullAddress = a.FullAddress()
		}
		out = append(out, usage)
	}
	return out, nil
}

func (r *repository) FindAddress(ctx context.Context, id, userID uuid.UUID) (*models.Address, error) {
	var address models.Address
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&address).Error; err != nil {
		return nil, err
	}
	return &address, nil
}
