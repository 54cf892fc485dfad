package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/autocare/autocare-backend/internal/users"
	pkgAuth "github.com/autocare/autocare-backend/pkg/auth"
	"github.com/autocare/autocare-backend/pkg/auth/session"
	"github.com/autocare/autocare-backend/pkg/config"
	"github.com/autocare/autocare-backend/pkg/db/models"
	"github.com/autocare/autocare-backend/pkg/enums"
	pkgerrors "github.com/autocare/autocare-backend/pkg/errors"
	"github.com/autocare/autocare-backend/pkg/logger"
)

// Service defines the OTP login behaviour needed by the auth controllers.
type Service interface {
	SendOTP(ctx context.Context, req SendOTPRequest) (*SendOTPResponse, error)
	VerifyOTP(ctx context.Context, req VerifyOTPRequest) (*AuthResponse, error)
}

type service struct {
	users     userRepository
	providers providerDirectory
	otp       *otpManager
	sender    SMSSender
	session   sessionManager
	jwtCfg    config.JWTConfig
	otpTTL    time.Duration
	exposeOTP bool
	logg      *logger.Logger
	now       func() time.Time
}

type userRepository interface {
	FindByMobile(ctx context.Context, mobile string) (*models.User, error)
	Create(ctx context.Context, dto users.CreateUserDTO) (*models.User, error)
	RecordLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

type providerDirectory interface {
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.ServiceProvider, error)
}

type sessionManager interface {
	Generate(ctx context.Context, accessID string, userID uuid.UUID) (string, error)
}

// ServiceParams bundles the dependencies required to build an auth service.
type ServiceParams struct {
	UserRepo       userRepository
	Providers      providerDirectory
	OTPStore       otpStore
	Sender         SMSSender
	SessionManager sessionManager
	JWTConfig      config.JWTConfig
	OTPConfig      config.OTPConfig
	// ExposeOTP returns the code in the send response; never set in production.
	ExposeOTP bool
	Logger    *logger.Logger
	Clock     func() time.Time
}

// NewService constructs the OTP login service.
func NewService(params ServiceParams) (Service, error) {
	if params.UserRepo == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if params.Providers == nil {
		return nil, fmt.Errorf("provider directory is required")
	}
	if params.SessionManager == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	otp, err := newOTPManager(params.OTPStore, params.OTPConfig)
	if err != nil {
		return nil, err
	}
	sender := params.Sender
	if sender == nil {
		sender = NewLogSender(params.Logger, false)
	}
	now := params.Clock
	if now == nil {
		now = time.Now
	}
	return &service{
		users:     params.UserRepo,
		providers: params.Providers,
		otp:       otp,
		sender:    sender,
		session:   params.SessionManager,
		jwtCfg:    params.JWTConfig,
		otpTTL:    otp.cfg.TTL,
		exposeOTP: params.ExposeOTP,
		logg:      params.Logger,
		now:       now,
	}, nil
}

func (s *service) SendOTP(ctx context.Context, req SendOTPRequest) (*SendOTPResponse, error) {
	mobile, err := NormalizeMobile(req.Mobile)
	if err != nil {
		return nil, err
	}
	userType, err := resolveUserType(req.UserType)
	if err != nil {
		return nil, err
	}

	user, err := s.lookup(ctx, mobile)
	if err != nil {
		return nil, err
	}
	if err := checkAccountType(user, userType); err != nil {
		return nil, err
	}

	code, err := s.otp.Issue(ctx, string(userType), mobile)
	if err != nil {
		return nil, err
	}
	if err := s.sender.SendOTP(ctx, mobile, code); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "send otp")
	}

	resp := &SendOTPResponse{
		MobileNumber:     mobile,
		ExpiresInSeconds: int(s.otpTTL.Seconds()),
		IsNewUser:        user == nil,
	}
	if s.exposeOTP {
		resp.DebugOTP = code
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"mobile":    MaskMobile(mobile),
			"user_type": userType,
		})
		s.logg.Info(logCtx, "otp issued")
	}
	return resp, nil
}

func (s *service) VerifyOTP(ctx context.Context, req VerifyOTPRequest) (*AuthResponse, error) {
	mobile, err := NormalizeMobile(req.Mobile)
	if err != nil {
		return nil, err
	}
	userType, err := resolveUserType(req.UserType)
	if err != nil {
		return nil, err
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "otp is required")
	}

	if err := s.otp.Check(ctx, string(userType), mobile, code); err != nil {
		return nil, err
	}

	user, err := s.lookup(ctx, mobile)
	if err != nil {
		return nil, err
	}
	if err := checkAccountType(user, userType); err != nil {
		return nil, err
	}
	isNew := false
	if user == nil {
		user, err = s.users.Create(ctx, users.CreateUserDTO{
			MobileNumber: mobile,
			UserType:     enums.UserTypeCustomer,
			IsVerified:   true,
		})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create user")
		}
		isNew = true
	}
	if !user.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "account is disabled")
	}

	var provider *models.ServiceProvider
	if userType == enums.UserTypeProvider {
		provider, err = s.providers.FindByUserID(ctx, user.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "provider profile not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load provider")
		}
	}

	now := s.now().UTC()
	if err := s.users.RecordLogin(ctx, user.ID, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record login")
	}
	user.IsVerified = true
	user.LastLoginAt = &now

	resp, err := s.issueTokens(ctx, now, user, provider)
	if err != nil {
		return nil, err
	}
	resp.IsNewUser = isNew

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"user_id":   user.ID.String(),
			"user_type": user.UserType,
			"new_user":  isNew,
		})
		s.logg.Info(logCtx, "otp login succeeded")
	}
	return resp, nil
}

func (s *service) issueTokens(ctx context.Context, now time.Time, user *models.User, provider *models.ServiceProvider) (*AuthResponse, error) {
	accessID := session.NewAccessID()
	payload := pkgAuth.AccessTokenPayload{
		UserID: user.ID,
		Role:   user.UserType,
		JTI:    accessID,
	}
	var summary *ProviderSummary
	if provider != nil {
		id := provider.ID
		payload.ProviderID = &id
		summary = &ProviderSummary{
			ID:                 provider.ID,
			EmployeeID:         provider.EmployeeID,
			VerificationStatus: provider.VerificationStatus,
			IsAvailable:        provider.IsAvailable,
		}
	}
	accessToken, err := pkgAuth.MintAccessToken(s.jwtCfg, now, payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	refreshToken, err := s.session.Generate(ctx, accessID, user.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store refresh token")
	}
	return &AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    s.jwtCfg.ExpirationMinutes * 60,
		User:         users.FromModel(user),
		Provider:     summary,
	}, nil
}

// lookup returns nil without error when the mobile number is unknown.
func (s *service) lookup(ctx context.Context, mobile string) (*models.User, error) {
	user, err := s.users.FindByMobile(ctx, mobile)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	return user, nil
}

func resolveUserType(raw enums.UserType) (enums.UserType, error) {
	if raw == "" {
		return enums.UserTypeCustomer, nil
	}
	if !raw.IsValid() {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "user_type must be customer, provider or admin")
	}
	return raw, nil
}

// checkAccountType enforces that only customers self-register through OTP and
// that a number is used with the account type it was created for.
func checkAccountType(user *models.User, want enums.UserType) error {
	if user == nil {
		if want == enums.UserTypeCustomer {
			return nil
		}
		return pkgerrors.Newf(pkgerrors.CodeNotFound, "no %s account found for this mobile number", want)
	}
	if user.UserType != want {
		return pkgerrors.Newf(pkgerrors.CodeForbidden, "this mobile number is registered as a %s", user.UserType)
	}
	return nil
}
