// Package storage exposes the attachment upload endpoint
package storage

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chatlink-backend/internal/service/storage"
	"chatlink-backend/pkg/response"
)

// Handler handles attachment uploads
type Handler struct {
	storageService *storage.Service
}

// NewHandler creates a new storage handler
func NewHandler(storageService *storage.Service) *Handler {
	return &Handler{storageService: storageService}
}

// Upload accepts a multipart file and returns the stored attachment.
// Voice recordings carry their measured duration in the duration form field.
// POST /v1/uploads
func (h *Handler) Upload(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.ValidationError(c, "file field required")
		return
	}

	duration := 0.0
	if raw := c.PostForm("duration"); raw != "" {
		duration, err = strconv.ParseFloat(raw, 64)
		if err != nil || duration < 0 {
			response.ValidationError(c, "invalid duration")
			return
		}
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.InternalError(c, "failed to read upload")
		return
	}
	defer file.Close()

	attachment, err := h.storageService.Upload(c.Request.Context(), userID, &storage.UploadInput{
		FileName:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Size:        fileHeader.Size,
		Duration:    duration,
		Reader:      file,
	})
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, attachment)
}
