package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"chatlink-backend/internal/domain"
	"chatlink-backend/pkg/errors"
)

// CreateGroup persists a new group
func (s *Store) CreateGroup(ctx context.Context, group *domain.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	group.CreatedAt = now
	group.UpdatedAt = now
	s.groups[group.GroupID] = group
	s.markDirty(collectionGroups)
	return nil
}

// GetGroup returns a group by id
func (s *Store) GetGroup(ctx context.Context, groupID uuid.UUID) (*domain.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	group, ok := s.groups[groupID]
	if !ok {
		return nil, errors.GroupNotFoundError()
	}
	copied := *group
	copied.Members = append([]uuid.UUID(nil), group.Members...)
	return &copied, nil
}

// ListGroupsForUser returns all groups the user is a member of
func (s *Store) ListGroupsForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var groups []*domain.Group
	for _, group := range s.groups {
		if group.HasMember(userID) {
			copied := *group
			copied.Members = append([]uuid.UUID(nil), group.Members...)
			groups = append(groups, &copied)
		}
	}
	return groups, nil
}

// UpdateGroup applies mutable field changes
func (s *Store) UpdateGroup(ctx context.Context, groupID uuid.UUID, update *domain.GroupUpdate) (*domain.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	group, ok := s.groups[groupID]
	if !ok {
		return nil, errors.GroupNotFoundError()
	}

	if update.Name != nil {
		group.Name = *update.Name
	}
	if update.AvatarURL != nil {
		group.AvatarURL = *update.AvatarURL
	}
	group.UpdatedAt = time.Now()
	s.markDirty(collectionGroups)

	copied := *group
	copied.Members = append([]uuid.UUID(nil), group.Members...)
	return &copied, nil
}

// AddGroupMember adds a user to a group, idempotently
func (s *Store) AddGroupMember(ctx context.Context, groupID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	group, ok := s.groups[groupID]
	if !ok {
		return errors.GroupNotFoundError()
	}
	if group.HasMember(userID) {
		return nil
	}
	group.Members = append(group.Members, userID)
	group.UpdatedAt = time.Now()
	s.markDirty(collectionGroups)
	return nil
}

// RemoveGroupMember removes a user from a group; no-op if absent
func (s *Store) RemoveGroupMember(ctx context.Context, groupID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	group, ok := s.groups[groupID]
	if !ok {
		return errors.GroupNotFoundError()
	}
	for i, m := range group.Members {
		if m == userID {
			group.Members = append(group.Members[:i], group.Members[i+1:]...)
			group.UpdatedAt = time.Now()
			s.markDirty(collectionGroups)
			return nil
		}
	}
	return nil
}

// DeleteGroup removes a group entirely
func (s *Store) DeleteGroup(ctx context.Context, groupID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[groupID]; !ok {
		return errors.GroupNotFoundError()
	}
	delete(s.groups, groupID)
	s.markDirty(collectionGroups)
	return nil
}
