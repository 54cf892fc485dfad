package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/autocare/autocare-backend/internal/providers"
	"github.com/autocare/autocare-backend/internal/users"
	"github.com/autocare/autocare-backend/pkg/db"
	"github.com/autocare/autocare-backend/pkg/db/models"
	"github.com/autocare/autocare-backend/pkg/enums"
	pkgerrors "github.com/autocare/autocare-backend/pkg/errors"
	"github.com/autocare/autocare-backend/pkg/logger"
)

// RegisterService onboards providers and sends their first OTP.
type RegisterService interface {
	RegisterProvider(ctx context.Context, req ProviderRegisterRequest) (*SendOTPResponse, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type registerUserRepository interface {
	FindByMobile(ctx context.Context, mobile string) (*models.User, error)
	Create(ctx context.Context, dto users.CreateUserDTO) (*models.User, error)
}

type providerRegistrar interface {
	Register(ctx context.Context, tx *gorm.DB, input providers.RegisterInput) (*models.ServiceProvider, error)
}

type otpSender interface {
	SendOTP(ctx context.Context, req SendOTPRequest) (*SendOTPResponse, error)
}

// RegisterServiceParams packages the dependencies for the registration flow.
type RegisterServiceParams struct {
	TxRunner        txRunner
	UserRepoFactory func(tx *gorm.DB) registerUserRepository
	Providers       providerRegistrar
	OTP             otpSender
	Logger          *logger.Logger
}

type registerService struct {
	tx        txRunner
	userRepo  func(tx *gorm.DB) registerUserRepository
	providers providerRegistrar
	otp       otpSender
	logg      *logger.Logger
}

// NewRegisterService builds a registration service with the provided dependencies.
func NewRegisterService(params RegisterServiceParams) (RegisterService, error) {
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Providers == nil {
		return nil, fmt.Errorf("provider registrar required")
	}
	if params.OTP == nil {
		return nil, fmt.Errorf("otp sender required")
	}
	factory := params.UserRepoFactory
	if factory == nil {
		factory = func(tx *gorm.DB) registerUserRepository { return users.NewRepository(tx) }
	}
	return &registerService{
		tx:        params.TxRunner,
		userRepo:  factory,
		providers: params.Providers,
		otp:       params.OTP,
		logg:      params.Logger,
	}, nil
}

func (s *registerService) RegisterProvider(ctx context.Context, req ProviderRegisterRequest) (*SendOTPResponse, error) {
	mobile, err := NormalizeMobile(req.Mobile)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}

	var provider *models.ServiceProvider
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		userRepo := s.userRepo(tx)

		if _, err := userRepo.FindByMobile(ctx, mobile); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "mobile number already registered")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check mobile number")
		}

		user, err := userRepo.Create(ctx, users.CreateUserDTO{
			MobileNumber: mobile,
			Name:         name,
			Email:        req.Email,
			UserType:     enums.UserTypeProvider,
		})
		if err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "mobile number already registered")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create user")
		}

		provider, err = s.providers.Register(ctx, tx, providers.RegisterInput{
			UserID:          user.ID,
			Mobile:          mobile,
			Name:            name,
			Email:           req.Email,
			Specialization:  req.Specialization,
			ExperienceYears: req.ExperienceYears,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"provider_id": provider.ID.String(),
			"employee_id": provider.EmployeeID,
		})
		s.logg.Info(logCtx, "provider registered")
	}

	return s.otp.SendOTP(ctx, SendOTPRequest{Mobile: mobile, UserType: enums.UserTypeProvider})
}
