package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PushToken is a registered device token for push notifications
type PushToken struct {
	Token     string    `json:"token"`
	UserID    uuid.UUID `json:"user_id"`
	Platform  string    `json:"platform"` // fcm, apns
	CreatedAt time.Time `json:"created_at"`
}

// SavePushToken registers or refreshes a device token
func (s *Store) SavePushToken(ctx context.Context, token *PushToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}
	copied := *token
	s.tokens[token.Token] = &copied
	s.markDirty(collectionTokens)
	return nil
}

// DeletePushToken removes a device token; no-op if absent
func (s *Store) DeletePushToken(ctx context.Context, tokenValue string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[tokenValue]; ok {
		delete(s.tokens, tokenValue)
		s.markDirty(collectionTokens)
	}
	return nil
}

// GetPushTokens returns all device tokens registered for a user
func (s *Store) GetPushTokens(ctx context.Context, userID uuid.UUID) ([]*PushToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tokens []*PushToken
	for _, token := range s.tokens {
		if token.UserID == userID {
			copied := *token
			tokens = append(tokens, &copied)
		}
	}
	return tokens, nil
}
