package auth

import (
	"github.com/google/uuid"

	"github.com/autocare/autocare-backend/internal/users"
	"github.com/autocare/autocare-backend/pkg/enums"
)

// SendOTPRequest asks for a code for the given account type.
type SendOTPRequest struct {
	Mobile   string         `json:"mobile_number" validate:"required"`
	UserType enums.UserType `json:"user_type,omitempty"`
}

type SendOTPResponse struct {
	MobileNumber     string `json:"mobile_number"`
	ExpiresInSeconds int    `json:"expires_in"`
	IsNewUser        bool   `json:"is_new_user"`
	DebugOTP         string `json:"debug_otp,omitempty"`
}

type VerifyOTPRequest struct {
	Mobile   string         `json:"mobile_number" validate:"required"`
	Code     string         `json:"otp" validate:"required,len=6,numeric"`
	UserType enums.UserType `json:"user_type,omitempty"`
}

// ProviderSummary is returned alongside provider tokens.
type ProviderSummary struct {
	ID                 uuid.UUID                `json:"id"`
	EmployeeID         string                   `json:"employee_id"`
	VerificationStatus enums.VerificationStatus `json:"verification_status"`
	IsAvailable        bool                     `json:"is_available"`
}

// AuthResponse contains the tokens minted after a successful verification.
type AuthResponse struct {
	AccessToken  string           `json:"access_token"`
	RefreshToken string           `json:"refresh_token"`
	TokenType    string           `json:"token_type"`
	ExpiresIn    int              `json:"expires_in"`
	IsNewUser    bool             `json:"is_new_user"`
	User         *users.UserDTO   `json:"user"`
	Provider     *ProviderSummary `json:"provider,omitempty"`
}

// ProviderRegisterRequest onboards a field technician.
type ProviderRegisterRequest struct {
	Mobile          string  `json:"mobile_number" validate:"required"`
	Name            string  `json:"name" validate:"required,max=100"`
	Email           *string `json:"email,omitempty" validate:"omitempty,email"`
	Specialization  string  `json:"specialization,omitempty"`
	ExperienceYears int     `json:"experience_years" validate:"gte=0,lte=60"`
}
