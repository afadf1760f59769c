package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/bookshelf/internal/domain"
	"github.com/utafrali/bookshelf/internal/repository"
	apperrors "github.com/utafrali/bookshelf/pkg/errors"
)

// UserService implements the user directory operations that carry business
// rules on top of the repository.
type UserService struct {
	users  repository.UserRepository
	hasher PasswordHasher
	events EventPublisher
	logger *slog.Logger
}

// NewUserService creates a new user service.
func NewUserService(
	users repository.UserRepository,
	hasher PasswordHasher,
	events EventPublisher,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		users:  users,
		hasher: hasher,
		events: events,
		logger: logger,
	}
}

// RegisterInput holds the parameters for registering a new user.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// Register creates an account with the default role. The password is hashed
// before it reaches the repository.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	if input.Email == "" {
		return nil, apperrors.InvalidInput("email is required")
	}
	if input.Password == "" {
		return nil, apperrors.InvalidInput("password is required")
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:        uuid.New(),
		Name:      input.Name,
		Email:     input.Email,
		Role:      domain.RoleUser,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.users.Create(ctx, &domain.NewUser{
		ID:           user.ID,
		Name:         user.Name,
		Email:        user.Email,
		PasswordHash: hash,
		Role:         user.Role,
	}); err != nil {
		return nil, err
	}

	if err := s.events.PublishUserRegistered(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.registered event",
			slog.String("user_id", user.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID.String()),
	)

	return user, nil
}

// GetProfile returns the user with id.
func (s *UserService) GetProfile(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperrors.NotFound("user", id.String())
	}
	return user, nil
}

// ListUsers returns every user, newest first.
func (s *UserService) ListUsers(ctx context.Context) ([]domain.User, error) {
	return s.users.FindAll(ctx)
}

// UpdateRole sets id's role. actor is recorded on the emitted event.
func (s *UserService) UpdateRole(ctx context.Context, id uuid.UUID, role domain.Role, actor uuid.UUID) (*domain.User, error) {
	if _, err := domain.ParseRole(string(role)); err != nil {
		return nil, apperrors.InvalidInput(fmt.Sprintf("unknown role %q", role))
	}

	if err := s.users.UpdateRole(ctx, id, role); err != nil {
		return nil, err
	}

	user, err := s.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.events.PublishUserRoleChanged(ctx, user, actor.String()); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.role_changed event",
			slog.String("user_id", id.String()),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user role updated",
		slog.String("user_id", id.String()),
		slog.String("role", role.String()),
		slog.String("actor_id", actor.String()),
	)

	return user, nil
}

// DeleteUser removes id. Tokens already issued to the user stay in the token
// store until they expire but no longer authorize requests.
func (s *UserService) DeleteUser(ctx context.Context, id, actor uuid.UUID) error {
	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}

	if err := s.events.PublishUserDeleted(ctx, id.String(), actor.String()); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.deleted event",
			slog.String("user_id", id.String()),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user deleted",
		slog.String("user_id", id.String()),
		slog.String("actor_id", actor.String()),
	)

	return nil
}

// ChangePassword replaces id's password after checking the current one.
func (s *UserService) ChangePassword(ctx context.Context, id uuid.UUID, current, next string) error {
	if current == "" || next == "" {
		return apperrors.InvalidInput("current and new password are required")
	}
	if current == next {
		return apperrors.InvalidInput("new password must be different from current password")
	}

	cred, err := s.users.FindCredential(ctx, id)
	if err != nil {
		return err
	}
	if cred == nil {
		return apperrors.NotFound("user", id.String())
	}

	ok, err := s.hasher.Verify(current, cred.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.AuthenticationFailed()
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePasswordHash(ctx, id, hash); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "password changed",
		slog.String("user_id", id.String()),
	)

	return nil
}
