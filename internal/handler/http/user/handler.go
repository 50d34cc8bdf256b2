// Package user exposes the user directory endpoints
package user

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chatlink-backend/internal/domain"
	"chatlink-backend/internal/presence"
	"chatlink-backend/pkg/response"
	"chatlink-backend/pkg/sanitize"
)

// Store is the persistence surface the handler needs
type Store interface {
	GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	ListUsers(ctx context.Context) ([]*domain.User, error)
	UpdateUser(ctx context.Context, userID uuid.UUID, displayName, avatarURL *string) (*domain.User, error)
}

// Handler handles HTTP requests for user profiles
type Handler struct {
	store    Store
	registry *presence.Registry
}

// NewHandler creates a new user handler
func NewHandler(store Store, registry *presence.Registry) *Handler {
	return &Handler{store: store, registry: registry}
}

// List returns every registered user
// GET /v1/users
func (h *Handler) List(c *gin.Context) {
	users, err := h.store.ListUsers(c.Request.Context())
	if err != nil {
		response.AppError(c, err)
		return
	}

	out := make([]*domain.UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, u.ToResponse())
	}
	response.Success(c, http.StatusOK, gin.H{"users": out})
}

// Get returns one user profile
// GET /v1/users/:id
func (h *Handler) Get(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "invalid user id")
		return
	}

	user, err := h.store.GetUser(c.Request.Context(), userID)
	if err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, http.StatusOK, user.ToResponse())
}

// UpdateRequest carries the mutable profile fields
type UpdateRequest struct {
	DisplayName *string `json:"display_name,omitempty"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
}

// Update modifies the caller's own profile
// PUT /v1/users/me
func (h *Handler) Update(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}
	if req.DisplayName != nil {
		clean := sanitize.DisplayName(*req.DisplayName)
		if clean == "" {
			response.ValidationError(c, "display name cannot be empty")
			return
		}
		req.DisplayName = &clean
	}

	user, err := h.store.UpdateUser(c.Request.Context(), userID, req.DisplayName, req.AvatarURL)
	if err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, http.StatusOK, user.ToResponse())
}

// Online returns the live presence snapshot
// GET /v1/users/online
func (h *Handler) Online(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{"users": h.registry.Snapshot()})
}
