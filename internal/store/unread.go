package store

import (
	"context"

	"github.com/google/uuid"
)

// IncrementUnread bumps the unread counter for (recipient, conversation key)
// and returns the new count.
func (s *Store) IncrementUnread(ctx context.Context, userID uuid.UUID, conversationKey string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := userID.String()
	if s.unread[key] == nil {
		s.unread[key] = make(map[string]int)
	}
	s.unread[key][conversationKey]++
	count := s.unread[key][conversationKey]
	s.markDirty(collectionUnread)
	return count, nil
}

// ResetUnread zeroes the counter for (recipient, conversation key).
// Counters are never negative; resetting an absent counter is a no-op.
func (s *Store) ResetUnread(ctx context.Context, userID uuid.UUID, conversationKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := userID.String()
	if counts, ok := s.unread[key]; ok {
		if _, present := counts[conversationKey]; present {
			delete(counts, conversationKey)
			s.markDirty(collectionUnread)
		}
	}
	return nil
}

// GetUnreadCounts returns all unread counters for a user keyed by
// conversation key.
func (s *Store) GetUnreadCounts(ctx context.Context, userID uuid.UUID) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for convKey, n := range s.unread[userID.String()] {
		counts[convKey] = n
	}
	return counts, nil
}
