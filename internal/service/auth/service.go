// Package auth handles account registration, login and token refresh
package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatlink-backend/internal/domain"
	"chatlink-backend/pkg/errors"
	"chatlink-backend/pkg/jwt"
	"chatlink-backend/pkg/logger"
	"chatlink-backend/pkg/password"
	"chatlink-backend/pkg/sanitize"
)

// UserStore is the persistence surface the service needs
type UserStore interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
}

// LoginThrottle locks an account after repeated failed logins
type LoginThrottle interface {
	Locked(ctx context.Context, username string) (bool, time.Duration, error)
	RecordFailure(ctx context.Context, username string) error
	Reset(ctx context.Context, username string) error
}

// Service handles authentication business logic
type Service struct {
	users      UserStore
	jwtManager *jwt.Manager
	throttle   LoginThrottle // may be nil
}

// NewService creates a new auth service. throttle may be nil to disable
// login lockout.
func NewService(users UserStore, jwtManager *jwt.Manager, throttle LoginThrottle) *Service {
	return &Service{users: users, jwtManager: jwtManager, throttle: throttle}
}

// RegisterInput contains user registration data
type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	DisplayName string
}

// TokenPair is issued on register, login and refresh
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// AuthOutput carries the authenticated user with fresh tokens
type AuthOutput struct {
	User   *domain.UserResponse `json:"user"`
	Tokens TokenPair            `json:"tokens"`
}

// Register creates a new user account and issues a token pair
func (s *Service) Register(ctx context.Context, input *RegisterInput) (*AuthOutput, error) {
	input.Username = sanitize.Username(input.Username)
	input.Email = sanitize.Email(input.Email)
	input.DisplayName = sanitize.DisplayName(input.DisplayName)
	if input.Username == "" {
		return nil, errors.MissingFieldError("username")
	}
	if input.DisplayName == "" {
		input.DisplayName = input.Username
	}

	if err := password.Validate(input.Password); err != nil {
		return nil, errors.ValidationError(err.Error())
	}

	hash, err := password.Hash(input.Password)
	if err != nil {
		return nil, errors.InternalError("failed to hash password")
	}

	now := time.Now()
	user := &domain.User{
		UserID:       uuid.New(),
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: hash,
		DisplayName:  input.DisplayName,
		Status:       "offline",
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	tokens, err := s.issueTokens(user)
	if err != nil {
		return nil, err
	}

	logger.Info("User registered",
		zap.String("user_id", user.UserID.String()),
		zap.String("username", user.Username))

	return &AuthOutput{User: user.ToResponse(), Tokens: *tokens}, nil
}

// Login verifies credentials and issues a token pair
func (s *Service) Login(ctx context.Context, username, plaintext string) (*AuthOutput, error) {
	username = sanitize.Username(username)

	if s.throttle != nil {
		locked, retryAfter, err := s.throttle.Locked(ctx, username)
		if err != nil {
			logger.Warn("Login throttle check failed", zap.Error(err))
		} else if locked {
			return nil, errors.TooManyAttemptsError(retryAfter)
		}
	}

	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		s.recordFailure(ctx, username)
		// Same error for unknown user and bad password
		return nil, errors.InvalidCredentialsError()
	}

	if !password.Verify(user.PasswordHash, plaintext) {
		s.recordFailure(ctx, username)
		return nil, errors.InvalidCredentialsError()
	}

	if s.throttle != nil {
		if err := s.throttle.Reset(ctx, username); err != nil {
			logger.Warn("Login throttle reset failed", zap.Error(err))
		}
	}

	tokens, err := s.issueTokens(user)
	if err != nil {
		return nil, err
	}

	logger.Info("User logged in", zap.String("user_id", user.UserID.String()))
	return &AuthOutput{User: user.ToResponse(), Tokens: *tokens}, nil
}

// Refresh exchanges a valid refresh token for a fresh pair
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*AuthOutput, error) {
	claims, err := s.jwtManager.ValidateToken(refreshToken)
	if err != nil {
		return nil, errors.InvalidTokenError("invalid refresh token")
	}

	user, err := s.users.GetUser(ctx, claims.UserID)
	if err != nil {
		return nil, errors.UserNotFoundError()
	}

	tokens, err := s.issueTokens(user)
	if err != nil {
		return nil, err
	}
	return &AuthOutput{User: user.ToResponse(), Tokens: *tokens}, nil
}

func (s *Service) recordFailure(ctx context.Context, username string) {
	if s.throttle == nil {
		return
	}
	if err := s.throttle.RecordFailure(ctx, username); err != nil {
		logger.Warn("Login throttle record failed", zap.Error(err))
	}
}

func (s *Service) issueTokens(user *domain.User) (*TokenPair, error) {
	access, err := s.jwtManager.GenerateAccessToken(user.UserID, user.Username)
	if err != nil {
		return nil, errors.InternalError("failed to issue access token")
	}
	refresh, err := s.jwtManager.GenerateRefreshToken(user.UserID)
	if err != nil {
		return nil, errors.InternalError("failed to issue refresh token")
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
