package models

import (
	"time"

	"github.com/google/uuid"
)

// ServiceArea is an admin-defined circular geofence.
type ServiceArea struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name            string    `gorm:"column:name;not null;uniqueIndex"`
	Description     *string   `gorm:"column:description"`
	CenterLatitude  float64   `gorm:"column:center_latitude;not null"`
	CenterLongitude float64   `gorm:"column:center_longitude;not null"`
	RadiusKm        float64   `gorm:"column:radius_km;not null"`
	IsActive        bool      `gorm:"column:is_active;not null"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
