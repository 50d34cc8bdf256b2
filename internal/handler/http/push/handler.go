// Package push exposes device token registration endpoints
package push

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chatlink-backend/internal/store"
	"chatlink-backend/pkg/push"
	"chatlink-backend/pkg/response"
)

// TokenStore is the persistence surface the handler needs
type TokenStore interface {
	SavePushToken(ctx context.Context, token *store.PushToken) error
	DeletePushToken(ctx context.Context, tokenValue string) error
}

// Handler handles device token registration
type Handler struct {
	tokens TokenStore
}

// NewHandler creates a new push token handler
func NewHandler(tokens TokenStore) *Handler {
	return &Handler{tokens: tokens}
}

// RegisterRequest carries one device token
type RegisterRequest struct {
	Token    string `json:"token" binding:"required"`
	Platform string `json:"platform" binding:"required"`
}

// Register stores a device token for the caller
// POST /v1/push/tokens
func (h *Handler) Register(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}
	if req.Platform != push.PlatformFCM && req.Platform != push.PlatformAPNs {
		response.ValidationError(c, "platform must be fcm or apns")
		return
	}

	err := h.tokens.SavePushToken(c.Request.Context(), &store.PushToken{
		Token:    req.Token,
		UserID:   userID,
		Platform: req.Platform,
	})
	if err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"registered": true})
}

// Unregister removes a device token
// DELETE /v1/push/tokens/:token
func (h *Handler) Unregister(c *gin.Context) {
	tokenValue := c.Param("token")
	if tokenValue == "" {
		response.ValidationError(c, "token required")
		return
	}

	if err := h.tokens.DeletePushToken(c.Request.Context(), tokenValue); err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"unregistered": true})
}
