package store

import (
	"context"

	"github.com/google/uuid"

	"chatlink-backend/internal/domain"
)

// AppendCall records a terminated call in the append-only history
func (s *Store) AppendCall(ctx context.Context, call *domain.Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *call
	s.calls = append(s.calls, &copied)
	s.markDirty(collectionCalls)
	return nil
}

// GetUserCalls returns the call history involving a user, newest first
func (s *Store) GetUserCalls(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Call, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*domain.Call
	for i := len(s.calls) - 1; i >= 0; i-- {
		call := s.calls[i]
		if call.CallerID == userID || call.CalleeID == userID {
			copied := *call
			matched = append(matched, &copied)
		}
	}

	if offset >= len(matched) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

// CountCalls returns the size of the call history
func (s *Store) CountCalls(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.calls), nil
}
