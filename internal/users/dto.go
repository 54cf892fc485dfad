package users

import (
	"time"

	"github.com/google/uuid"

	"github.com/autocare/autocare-backend/pkg/db/models"
	"github.com/autocare/autocare-backend/pkg/enums"
)

// UserDTO is the transport shape of an account.
type UserDTO struct {
	ID           uuid.UUID      `json:"id"`
	MobileNumber string         `json:"mobile_number"`
	Name         string         `json:"name"`
	Email        *string        `json:"email,omitempty"`
	UserType     enums.UserType `json:"user_type"`
	IsVerified   bool           `json:"is_verified"`
	IsActive     bool           `json:"is_active"`
	LastLoginAt  *time.Time     `json:"last_login_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// CreateUserDTO holds the data required by the repo to persist a new user.
type CreateUserDTO struct {
	MobileNumber string
	Name         string
	Email        *string
	UserType     enums.UserType
	IsVerified   bool
}

// UpdateInput carries a partial profile update; nil fields are untouched.
type UpdateInput struct {
	Name  *string
	Email *string
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}

	return &UserDTO{
		ID:           u.ID,
		MobileNumber: u.MobileNumber,
		Name:         u.Name,
		Email:        u.Email,
		UserType:     u.UserType,
		IsVerified:   u.IsVerified,
		IsActive:     u.IsActive,
		LastLoginAt:  u.LastLoginAt,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func (c CreateUserDTO) ToModel() *models.User {
	userType := c.UserType
	if userType == "" {
		userType = enums.UserTypeCustomer
	}
	return &models.User{
		MobileNumber: c.MobileNumber,
		Name:         c.Name,
		Email:        c.Email,
		UserType:     userType,
		IsVerified:   c.IsVerified,
		IsActive:     true,
	}
}
