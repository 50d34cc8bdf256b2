// Package group exposes group chat management endpoints
package group

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chatlink-backend/internal/domain"
	"chatlink-backend/pkg/response"
)

// Store is the persistence surface the handler needs
type Store interface {
	CreateGroup(ctx context.Context, group *domain.Group) error
	GetGroup(ctx context.Context, groupID uuid.UUID) (*domain.Group, error)
	ListGroupsForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Group, error)
	UpdateGroup(ctx context.Context, groupID uuid.UUID, update *domain.GroupUpdate) (*domain.Group, error)
	AddGroupMember(ctx context.Context, groupID, userID uuid.UUID) error
	RemoveGroupMember(ctx context.Context, groupID, userID uuid.UUID) error
	DeleteGroup(ctx context.Context, groupID uuid.UUID) error
}

// Handler handles HTTP requests for groups
type Handler struct {
	store Store
}

// NewHandler creates a new group handler
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// Create creates a group with the caller as first member
// POST /v1/groups
func (h *Handler) Create(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	var req domain.GroupCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	members := req.MemberIDs
	if !containsID(members, userID) {
		members = append(members, userID)
	}

	now := time.Now()
	group := &domain.Group{
		GroupID:   uuid.New(),
		Name:      req.Name,
		AvatarURL: req.AvatarURL,
		CreatedBy: userID,
		Members:   members,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.store.CreateGroup(c.Request.Context(), group); err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, group)
}

// List returns the caller's groups
// GET /v1/groups
func (h *Handler) List(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	groups, err := h.store.ListGroupsForUser(c.Request.Context(), userID)
	if err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"groups": groups})
}

// Get returns one group the caller belongs to
// GET /v1/groups/:id
func (h *Handler) Get(c *gin.Context) {
	group, ok := h.memberGroup(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, group)
}

// Update renames the group or changes its avatar
// PUT /v1/groups/:id
func (h *Handler) Update(c *gin.Context) {
	group, ok := h.memberGroup(c)
	if !ok {
		return
	}

	var req domain.GroupUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	updated, err := h.store.UpdateGroup(c.Request.Context(), group.GroupID, &req)
	if err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, http.StatusOK, updated)
}

// MemberRequest names a user to add or remove
type MemberRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

// AddMember adds a user to the group
// POST /v1/groups/:id/members
func (h *Handler) AddMember(c *gin.Context) {
	group, ok := h.memberGroup(c)
	if !ok {
		return
	}

	var req MemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	if err := h.store.AddGroupMember(c.Request.Context(), group.GroupID, req.UserID); err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"added": req.UserID})
}

// RemoveMember removes a user from the group
// DELETE /v1/groups/:id/members/:userID
func (h *Handler) RemoveMember(c *gin.Context) {
	group, ok := h.memberGroup(c)
	if !ok {
		return
	}

	memberID, err := uuid.Parse(c.Param("userID"))
	if err != nil {
		response.ValidationError(c, "invalid user id")
		return
	}

	if err := h.store.RemoveGroupMember(c.Request.Context(), group.GroupID, memberID); err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"removed": memberID})
}

// Delete removes the group entirely; only the creator may do this
// DELETE /v1/groups/:id
func (h *Handler) Delete(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)
	group, ok := h.memberGroup(c)
	if !ok {
		return
	}
	if group.CreatedBy != userID {
		response.Forbidden(c, "only the group creator can delete it")
		return
	}

	if err := h.store.DeleteGroup(c.Request.Context(), group.GroupID); err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": group.GroupID})
}

// memberGroup resolves :id and enforces that the caller is a member
func (h *Handler) memberGroup(c *gin.Context) (*domain.Group, bool) {
	userID := c.MustGet("user_id").(uuid.UUID)

	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "invalid group id")
		return nil, false
	}

	group, err := h.store.GetGroup(c.Request.Context(), groupID)
	if err != nil {
		response.AppError(c, err)
		return nil, false
	}
	if !group.HasMember(userID) {
		response.Forbidden(c, "not a member of this group")
		return nil, false
	}
	return group, true
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
