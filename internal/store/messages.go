package store

import (
	"context"

	"chatlink-backend/internal/domain"
)

// AppendMessage persists a message under its conversation key
func (s *Store) AppendMessage(ctx context.Context, msg *domain.Message) error {
	key := msg.ConversationKey()

	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *msg
	s.messages[key] = append(s.messages[key], &copied)
	s.markDirty(collectionMessages)
	return nil
}

// GetMessages returns a page of a conversation's history, newest last.
// limit <= 0 means the default page size; offset counts back from the end.
func (s *Store) GetMessages(ctx context.Context, conversationKey string, limit, offset int) ([]*domain.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.messages[conversationKey]
	end := len(all) - offset
	if end < 0 {
		end = 0
	}
	start := end - limit
	if start < 0 {
		start = 0
	}

	page := make([]*domain.Message, 0, end-start)
	for _, msg := range all[start:end] {
		copied := *msg
		page = append(page, &copied)
	}
	return page, nil
}

// CountMessages returns the number of stored messages for a conversation
func (s *Store) CountMessages(ctx context.Context, conversationKey string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages[conversationKey]), nil
}
