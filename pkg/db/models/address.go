package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/autocare/autocare-backend/pkg/enums"
)

// Address is a saved customer location.
type Address struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID      uuid.UUID         `gorm:"column:user_id;type:uuid;not null"`
	AddressType enums.AddressType `gorm:"column:address_type;type:address_type;not null"`
	Line1       string            `gorm:"column:address_line1;not null"`
	Line2       *string           `gorm:"column:address_line2"`
	Landmark    *string           `gorm:"column:landmark"`
	City        string            `gorm:"column:city;not null"`
	State       string            `gorm:"column:state;not null"`
	Pincode     string            `gorm:"column:pincode;not null"`
	Latitude    *float64          `gorm:"column:latitude"`
	Longitude   *float64          `gorm:"column:longitude"`
	IsDefault   bool              `gorm:"column:is_default;not null"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// FullAddress joins the non-empty address parts for display and booking snapshots.
func (a Address) FullAddress() string {
	parts := []string{a.Line1}
	if a.Line2 != nil {
		parts = append(parts, *a.Line2)
	}
	if a.Landmark != nil {
		parts = append(parts, *a.Landmark)
	}
	parts = append(parts, a.City, a.State, a.Pincode)

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return strings.Join(out, ", ")
}

// HasCoordinates reports whether both coordinates are set.
func (a Address) HasCoordinates() bool {
	return a.Latitude != nil && a.Longitude != nil
}
