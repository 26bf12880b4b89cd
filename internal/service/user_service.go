package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/phrazzld/taskstream-api/internal/domain"
	"github.com/phrazzld/taskstream-api/internal/platform/logger"
	"github.com/phrazzld/taskstream-api/internal/service/auth"
	"github.com/phrazzld/taskstream-api/internal/store"
)

// UserService provides registration, login and profile lookups.
type UserService interface {
	// Register validates and stores a new user.
	// Returns domain validation errors or ErrEmailTaken.
	Register(ctx context.Context, email, password string) (*domain.User, error)

	// Authenticate checks an email and password pair.
	// Returns ErrInvalidCredentials for an unknown email or a wrong password.
	Authenticate(ctx context.Context, email, password string) (*domain.User, error)

	// GetUser retrieves a user by ID.
	GetUser(ctx context.Context, userID int64) (*domain.User, error)
}

type userServiceImpl struct {
	users    store.UserStore
	verifier auth.PasswordVerifier
	logger   *slog.Logger
}

// NewUserService creates a new UserService
func NewUserService(users store.UserStore, verifier auth.PasswordVerifier, logger *slog.Logger) UserService {
	if logger == nil {
		logger = slog.Default()
	}
	return &userServiceImpl{
		users:    users,
		verifier: verifier,
		logger:   logger.With("component", "user_service"),
	}
}

func (s *userServiceImpl) Register(ctx context.Context, email, password string) (*domain.User, error) {
	user, err := domain.NewUser(email, password)
	if err != nil {
		return nil, err
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrEmailExists) {
			return nil, ErrEmailTaken
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to create user", "error", err)
		return nil, NewServiceError("register", "failed to create user", err)
	}
	return user, nil
}

func (s *userServiceImpl) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			log.Debug("login attempt for unknown email")
			return nil, ErrInvalidCredentials
		}
		return nil, NewServiceError("authenticate", "failed to retrieve user", err)
	}

	if err := s.verifier.Compare(user.HashedPassword, password); err != nil {
		log.Debug("login attempt with wrong password", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (s *userServiceImpl) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, err
		}
		return nil, NewServiceError("get_user", "failed to retrieve user", err)
	}
	return user, nil
}
