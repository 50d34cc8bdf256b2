package domain

import (
	"time"

	"github.com/google/uuid"
)

// Group represents a group chat
type Group struct {
	GroupID   uuid.UUID   `json:"group_id"`
	Name      string      `json:"name"`
	AvatarURL string      `json:"avatar_url,omitempty"`
	CreatedBy uuid.UUID   `json:"created_by"`
	Members   []uuid.UUID `json:"members"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// HasMember reports whether userID belongs to the group
func (g *Group) HasMember(userID uuid.UUID) bool {
	for _, m := range g.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// GroupCreate represents data to create a new group
type GroupCreate struct {
	Name      string      `json:"name" binding:"required,min=1,max=100"`
	AvatarURL string      `json:"avatar_url,omitempty"`
	MemberIDs []uuid.UUID `json:"member_ids" binding:"required,min=1"`
}

// GroupUpdate represents mutable group fields
type GroupUpdate struct {
	Name      *string `json:"name,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}
