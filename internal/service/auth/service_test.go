package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatlink-backend/internal/domain"
	"chatlink-backend/pkg/errors"
	"chatlink-backend/pkg/jwt"
	"chatlink-backend/pkg/password"
)

// MockUserStore is a mock implementation of UserStore
type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) CreateUser(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserStore) GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserStore) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func newTestService(users *MockUserStore) *Service {
	manager := jwt.NewManager("test-secret", 15*time.Minute, 24*time.Hour)
	return NewService(users, manager, nil)
}

func TestRegisterIssuesTokens(t *testing.T) {
	users := new(MockUserStore)
	users.On("CreateUser", mock.Anything, mock.AnythingOfType("*domain.User")).Return(nil)

	svc := newTestService(users)
	out, err := svc.Register(context.Background(), &RegisterInput{
		Username:    "alice",
		Email:       "alice@example.com",
		Password:    "correct-horse",
		DisplayName: "Alice",
	})

	require.NoError(t, err)
	assert.Equal(t, "alice", out.User.Username)
	assert.NotEmpty(t, out.Tokens.AccessToken)
	assert.NotEmpty(t, out.Tokens.RefreshToken)
	users.AssertExpectations(t)
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	users := new(MockUserStore)
	svc := newTestService(users)

	_, err := svc.Register(context.Background(), &RegisterInput{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "short",
	})

	require.Error(t, err)
	users.AssertNotCalled(t, "CreateUser", mock.Anything, mock.Anything)
}

func TestLoginVerifiesPassword(t *testing.T) {
	hash, err := password.Hash("correct-horse")
	require.NoError(t, err)

	user := &domain.User{
		UserID:       uuid.New(),
		Username:     "alice",
		PasswordHash: hash,
	}

	users := new(MockUserStore)
	users.On("GetUserByUsername", mock.Anything, "alice").Return(user, nil)

	svc := newTestService(users)

	out, err := svc.Login(context.Background(), "alice", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, user.UserID, out.User.UserID)

	_, err = svc.Login(context.Background(), "alice", "wrong-password")
	require.Error(t, err)
	appErr := errors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, errors.ErrCodeInvalidCreds, appErr.Code)
}

func TestLoginUnknownUserSameError(t *testing.T) {
	users := new(MockUserStore)
	users.On("GetUserByUsername", mock.Anything, "ghost").Return(nil, errors.UserNotFoundError())

	svc := newTestService(users)
	_, err := svc.Login(context.Background(), "ghost", "whatever")

	require.Error(t, err)
	appErr := errors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, errors.ErrCodeInvalidCreds, appErr.Code, "unknown user must not be distinguishable")
}

// MockThrottle is a mock implementation of LoginThrottle
type MockThrottle struct {
	mock.Mock
}

func (m *MockThrottle) Locked(ctx context.Context, username string) (bool, time.Duration, error) {
	args := m.Called(ctx, username)
	return args.Bool(0), args.Get(1).(time.Duration), args.Error(2)
}

func (m *MockThrottle) RecordFailure(ctx context.Context, username string) error {
	args := m.Called(ctx, username)
	return args.Error(0)
}

func (m *MockThrottle) Reset(ctx context.Context, username string) error {
	args := m.Called(ctx, username)
	return args.Error(0)
}

func TestLoginLockedOut(t *testing.T) {
	users := new(MockUserStore)
	throttle := new(MockThrottle)
	throttle.On("Locked", mock.Anything, "alice").Return(true, 5*time.Minute, nil)

	manager := jwt.NewManager("test-secret", 15*time.Minute, 24*time.Hour)
	svc := NewService(users, manager, throttle)

	_, err := svc.Login(context.Background(), "alice", "correct-horse")
	require.Error(t, err)
	appErr := errors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, errors.ErrCodeTooManyAttempts, appErr.Code)
	users.AssertNotCalled(t, "GetUserByUsername", mock.Anything, mock.Anything)
}

func TestLoginFailureRecordedAndSuccessResets(t *testing.T) {
	hash, err := password.Hash("correct-horse")
	require.NoError(t, err)
	user := &domain.User{UserID: uuid.New(), Username: "alice", PasswordHash: hash}

	users := new(MockUserStore)
	users.On("GetUserByUsername", mock.Anything, "alice").Return(user, nil)

	throttle := new(MockThrottle)
	throttle.On("Locked", mock.Anything, "alice").Return(false, time.Duration(0), nil)
	throttle.On("RecordFailure", mock.Anything, "alice").Return(nil)
	throttle.On("Reset", mock.Anything, "alice").Return(nil)

	manager := jwt.NewManager("test-secret", 15*time.Minute, 24*time.Hour)
	svc := NewService(users, manager, throttle)

	_, err = svc.Login(context.Background(), "alice", "wrong-password")
	require.Error(t, err)
	throttle.AssertCalled(t, "RecordFailure", mock.Anything, "alice")

	_, err = svc.Login(context.Background(), "alice", "correct-horse")
	require.NoError(t, err)
	throttle.AssertCalled(t, "Reset", mock.Anything, "alice")
}

func TestRefreshRoundTrip(t *testing.T) {
	user := &domain.User{UserID: uuid.New(), Username: "alice"}

	users := new(MockUserStore)
	users.On("GetUser", mock.Anything, user.UserID).Return(user, nil)

	svc := newTestService(users)
	refresh, err := svc.jwtManager.GenerateRefreshToken(user.UserID)
	require.NoError(t, err)

	out, err := svc.Refresh(context.Background(), refresh)
	require.NoError(t, err)
	assert.NotEmpty(t, out.Tokens.AccessToken)

	_, err = svc.Refresh(context.Background(), "not-a-token")
	assert.Error(t, err)
}
