package service

import (
	"context"
	"strings"

	"helpmatch/internal/models"
	"helpmatch/internal/repository"
	"helpmatch/internal/validation"
)

// CreateUserInput registers a participant.
type CreateUserInput struct {
	Username string          `json:"username" validate:"username"`
	Email    string          `json:"email" validate:"required,email"`
	Role     models.UserRole `json:"role" validate:"oneof=requester helper"`
}

// UserService manages participant profiles.
type UserService struct {
	users repository.UserRepository
}

// NewUserService returns a new UserService.
func NewUserService(users repository.UserRepository) *UserService {
	return &UserService{users: users}
}

// CreateUser registers a user with a fresh rating and hours record.
func (s *UserService) CreateUser(ctx context.Context, in CreateUserInput) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Role == "" {
		in.Role = models.RoleRequester
	}
	if err := validation.Struct(in); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	user := &models.User{Username: in.Username, Email: in.Email, Role: in.Role}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser returns a user profile.
func (s *UserService) GetUser(ctx context.Context, id uint) (*models.User, error) {
	return s.users.GetByID(ctx, id)
}

// DeactivateUser marks a user inactive. Their history is kept.
func (s *UserService) DeactivateUser(ctx context.Context, actorID, id uint) error {
	if actorID != id {
		return models.NewForbiddenError("users can only deactivate their own account")
	}
	return s.users.Deactivate(ctx, id)
}
