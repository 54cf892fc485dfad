package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/autocare/autocare-backend/pkg/enums"
)

// User is an account authenticated by mobile number OTP.
type User struct {
	ID           uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	MobileNumber string         `gorm:"column:mobile_number;not null;uniqueIndex"`
	Name         string         `gorm:"column:name;not null"`
	Email        *string        `gorm:"column:email"`
	UserType     enums.UserType `gorm:"column:user_type;type:user_type;not null"`
	IsVerified   bool           `gorm:"column:is_verified;not null"`
	IsActive     bool           `gorm:"column:is_active;not null"`
	LastLoginAt  *time.Time     `gorm:"column:last_login_at"`
	CreatedAt    time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
