package store

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"chatlink-backend/internal/domain"
	"chatlink-backend/pkg/errors"
)

// CreateUser persists a new user. Username and email must be unique.
func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Username, user.Username) {
			return errors.UsernameExistsError()
		}
		if strings.EqualFold(existing.Email, user.Email) {
			return errors.EmailExistsError()
		}
	}

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	s.users[user.UserID] = user
	s.markDirty(collectionUsers)
	return nil
}

// GetUser returns a user by id
func (s *Store) GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, errors.UserNotFoundError()
	}
	copied := *user
	return &copied, nil
}

// GetUserByUsername returns a user by username (case-insensitive)
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if strings.EqualFold(user.Username, username) {
			copied := *user
			return &copied, nil
		}
	}
	return nil, errors.UserNotFoundError()
}

// ListUsers returns all users
func (s *Store) ListUsers(ctx context.Context) ([]*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]*domain.User, 0, len(s.users))
	for _, user := range s.users {
		copied := *user
		users = append(users, &copied)
	}
	return users, nil
}

// UpdateUser applies profile changes to an existing user
func (s *Store) UpdateUser(ctx context.Context, userID uuid.UUID, displayName, avatarURL *string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, errors.UserNotFoundError()
	}

	if displayName != nil {
		user.DisplayName = *displayName
	}
	if avatarURL != nil {
		user.AvatarURL = *avatarURL
	}
	user.UpdatedAt = time.Now()
	s.markDirty(collectionUsers)

	copied := *user
	return &copied, nil
}

// SetUserPresence updates the persisted online status and session handle.
// An empty handle clears the stored handle (user went offline).
func (s *Store) SetUserPresence(ctx context.Context, userID uuid.UUID, online bool, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return errors.UserNotFoundError()
	}

	if online {
		user.Status = "online"
	} else {
		user.Status = "offline"
	}
	user.SessionHandle = handle
	user.UpdatedAt = time.Now()
	s.markDirty(collectionUsers)
	return nil
}
