package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/bug-tracker/internal/auth"
	"github.com/spec-kit/bug-tracker/internal/config"
	"github.com/spec-kit/bug-tracker/internal/domain"
	"github.com/spec-kit/bug-tracker/internal/repository"
	apperrors "github.com/spec-kit/bug-tracker/pkg/util"
)

// UserService manages accounts. Role changes are only reachable from the
// admin CLI.
type UserService struct {
	users      repository.UserRepository
	bcryptCost int
	logger     *zap.Logger
}

// CreateUserInput describes a new account.
type CreateUserInput struct {
	Email     string      `json:"email" validate:"required,email"`
	FirstName string      `json:"first_name" validate:"required,max=100"`
	LastName  string      `json:"last_name" validate:"required,max=100"`
	Password  string      `json:"password" validate:"required,min=8"`
	Role      domain.Role `json:"role" validate:"omitempty,oneof=manager developer"`
}

// NewUserService constructs the service.
func NewUserService(users repository.UserRepository, bcryptCost int, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{users: users, bcryptCost: bcryptCost, logger: logger}
}

// CreateUser registers an account. Role defaults to developer.
func (s *UserService) CreateUser(ctx context.Context, input CreateUserInput) (*domain.User, error) {
	input.Email = domain.NormalizeEmail(input.Email)
	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)
	if err := validate.Struct(input); err != nil {
		return nil, apperrors.FromValidation(err)
	}
	if input.Role == "" {
		input.Role = domain.RoleDeveloper
	}

	if _, err := s.users.GetByEmail(ctx, input.Email); err == nil {
		return nil, apperrors.NewConflict("email already registered", map[string]any{"email": input.Email})
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.MapError(err)
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	user := &domain.User{
		Email:        input.Email,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		PasswordHash: hash,
		Role:         input.Role,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.logger.Info("user created", zap.Int64("user_id", user.ID), zap.String("role", string(user.Role)))
	return user, nil
}

// ListUsers returns every account ordered by email.
func (s *UserService) ListUsers(ctx context.Context) ([]domain.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if users == nil {
		users = []domain.User{}
	}
	return users, nil
}

// SetRole changes a user's role.
func (s *UserService) SetRole(ctx context.Context, id int64, role domain.Role) error {
	if !role.Valid() {
		return apperrors.NewValidationError("invalid input", map[string]any{"role": "oneof=manager developer"})
	}
	if err := s.users.UpdateRole(ctx, id, role); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("user", map[string]any{"id": id})
		}
		return apperrors.MapError(err)
	}
	s.logger.Info("user role changed", zap.Int64("user_id", id), zap.String("role", string(role)))
	return nil
}

// DeleteUser removes an account. Bugs it created or was assigned keep
// existing with the reference cleared.
func (s *UserService) DeleteUser(ctx context.Context, id int64) error {
	if err := s.users.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("user", map[string]any{"id": id})
		}
		return apperrors.MapError(err)
	}
	s.logger.Info("user deleted", zap.Int64("user_id", id))
	return nil
}

// EnsureBootstrapManager creates the configured manager account on first
// start. It does nothing when no email is configured or the account exists.
func (s *UserService) EnsureBootstrapManager(ctx context.Context, cfg config.BootstrapConfig) error {
	if strings.TrimSpace(cfg.ManagerEmail) == "" {
		return nil
	}
	email := domain.NormalizeEmail(cfg.ManagerEmail)
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	firstName, lastName := cfg.ManagerFirstName, cfg.ManagerLastName
	if firstName == "" {
		firstName = "Admin"
	}
	if lastName == "" {
		lastName = "Manager"
	}
	_, err := s.CreateUser(ctx, CreateUserInput{
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
		Password:  cfg.ManagerPassword,
		Role:      domain.RoleManager,
	})
	return err
}
