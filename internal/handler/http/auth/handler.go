// Package auth exposes registration, login and token refresh endpoints
package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chatlink-backend/internal/service/auth"
	"chatlink-backend/pkg/response"
)

// Handler handles HTTP requests for authentication
type Handler struct {
	authService *auth.Service
}

// NewHandler creates a new auth handler
func NewHandler(authService *auth.Service) *Handler {
	return &Handler{authService: authService}
}

// RegisterRequest represents registration request body
type RegisterRequest struct {
	Username    string `json:"username" binding:"required,min=3,max=30"`
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	DisplayName string `json:"display_name" binding:"required"`
}

// LoginRequest represents login request body
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RefreshRequest represents refresh token request
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Register handles user registration
// POST /v1/auth/register
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	out, err := h.authService.Register(c.Request.Context(), &auth.RegisterInput{
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, out)
}

// Login handles user login
// POST /v1/auth/login
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	out, err := h.authService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, out)
}

// Refresh exchanges a refresh token for a new pair
// POST /v1/auth/refresh
func (h *Handler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	out, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, out)
}
