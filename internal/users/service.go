package users

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/autocare/autocare-backend/pkg/db/models"
	pkgerrors "github.com/autocare/autocare-backend/pkg/errors"
	"github.com/autocare/autocare-backend/pkg/logger"
)

const maxNameLength = 100

type profileStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, updates map[string]any) (*models.User, error)
}

// Service serves the signed-in user's own profile.
type Service interface {
	Get(ctx context.Context, userID uuid.UUID) (*UserDTO, error)
	Update(ctx context.Context, userID uuid.UUID, input UpdateInput) (*UserDTO, error)
}

type service struct {
	repo profileStore
	logg *logger.Logger
}

func NewService(repo profileStore, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	return &service{repo: repo, logg: logg}, nil
}

func (s *service) Get(ctx context.Context, userID uuid.UUID) (*UserDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, mapLookupError(err)
	}
	return FromModel(user), nil
}

func (s *service) Update(ctx context.Context, userID uuid.UUID, input UpdateInput) (*UserDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	updates := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" || len(name) > maxNameLength {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "name must be 1-%d characters", maxNameLength)
		}
		updates["name"] = name
	}
	if input.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*input.Email))
		if email == "" {
			updates["email"] = nil
		} else {
			if _, err := mail.ParseAddress(email); err != nil {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid email address")
			}
			updates["email"] = email
		}
	}

	user, err := s.repo.UpdateProfile(ctx, userID, updates)
	if err != nil {
		return nil, mapLookupError(err)
	}
	if s.logg != nil && len(updates) > 0 {
		s.logg.Info(s.logg.WithField(ctx, "user_id", userID.String()), "user profile updated")
	}
	return FromModel(user), nil
}

func mapLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
}
