// Package chat exposes conversation history, unread counters and call logs
package chat

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chatlink-backend/internal/delivery"
	"chatlink-backend/internal/domain"
	"chatlink-backend/pkg/pagination"
	"chatlink-backend/pkg/response"
)

// Store is the persistence surface the handler needs
type Store interface {
	GetMessages(ctx context.Context, conversationKey string, limit, offset int) ([]*domain.Message, error)
	CountMessages(ctx context.Context, conversationKey string) (int, error)
	GetGroup(ctx context.Context, groupID uuid.UUID) (*domain.Group, error)
	GetUserCalls(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Call, error)
}

// Handler handles HTTP requests for conversation data
type Handler struct {
	store    Store
	delivery *delivery.Coordinator
}

// NewHandler creates a new chat handler
func NewHandler(store Store, deliv *delivery.Coordinator) *Handler {
	return &Handler{store: store, delivery: deliv}
}

// History returns a page of messages for a conversation, newest last
// GET /v1/conversations/:key/messages?limit=&offset=
func (h *Handler) History(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)
	key := c.Param("key")

	if !h.authorized(c, userID, key) {
		return
	}

	params, err := pagination.Parse(c.Query("limit"), c.Query("offset"))
	if err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	messages, err := h.store.GetMessages(c.Request.Context(), key, params.Limit, params.Offset)
	if err != nil {
		response.AppError(c, err)
		return
	}
	total, err := h.store.CountMessages(c.Request.Context(), key)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, pagination.NewPage(messages, params, int64(total)))
}

// MarkRead resets the unread counter for a conversation
// POST /v1/conversations/:key/read
func (h *Handler) MarkRead(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)
	key := c.Param("key")

	if !h.authorized(c, userID, key) {
		return
	}

	if err := h.delivery.MarkRead(c.Request.Context(), userID, key); err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"conversation_key": key, "unread": 0})
}

// Unread returns the caller's unread counters keyed by conversation
// GET /v1/unread
func (h *Handler) Unread(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	counts, err := h.delivery.UnreadCounts(c.Request.Context(), userID)
	if err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"counts": counts})
}

// Calls returns the caller's call history, newest first
// GET /v1/calls?limit=&offset=
func (h *Handler) Calls(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	params, err := pagination.Parse(c.Query("limit"), c.Query("offset"))
	if err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	calls, err := h.store.GetUserCalls(c.Request.Context(), userID, params.Limit, params.Offset)
	if err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"calls": calls, "limit": params.Limit, "offset": params.Offset})
}

// authorized verifies the caller participates in the conversation named by key
func (h *Handler) authorized(c *gin.Context, userID uuid.UUID, key string) bool {
	if a, b, ok := domain.ParseDirectKey(key); ok {
		if a == userID || b == userID {
			return true
		}
		response.Forbidden(c, "not a participant of this conversation")
		return false
	}

	if groupID, ok := domain.ParseGroupKey(key); ok {
		group, err := h.store.GetGroup(c.Request.Context(), groupID)
		if err != nil {
			response.AppError(c, err)
			return false
		}
		if group.HasMember(userID) {
			return true
		}
		response.Forbidden(c, "not a member of this group")
		return false
	}

	response.ValidationError(c, "invalid conversation key")
	return false
}
