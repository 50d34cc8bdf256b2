package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"chatlink-backend/internal/domain"
	"chatlink-backend/pkg/constants"
	"chatlink-backend/pkg/errors"
)

// Service handles attachment uploads
type Service struct {
	backend      Backend
	maxSize      int64
	maxVoiceTime time.Duration
}

// NewService creates a storage service over the given backend
func NewService(backend Backend, maxVoiceTime time.Duration) *Service {
	return &Service{
		backend:      backend,
		maxSize:      constants.MaxUploadSize,
		maxVoiceTime: maxVoiceTime,
	}
}

// UploadInput describes one incoming file
type UploadInput struct {
	FileName    string
	ContentType string
	Size        int64
	// Duration in seconds, set for voice recordings
	Duration float64
	Reader   io.Reader
}

// Upload stores the file and returns the attachment to embed in a message
func (s *Service) Upload(ctx context.Context, userID uuid.UUID, input *UploadInput) (*domain.Attachment, error) {
	if input.Size <= 0 || input.Size > s.maxSize {
		return nil, errors.ValidationError(fmt.Sprintf("file size must be between 1 byte and %d bytes", s.maxSize))
	}
	if input.Duration > s.maxVoiceTime.Seconds() {
		return nil, errors.ValidationError(fmt.Sprintf("voice recording exceeds %.0f seconds", s.maxVoiceTime.Seconds()))
	}

	contentType := input.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(input.FileName))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	objectKey := fmt.Sprintf("users/%s/%s%s", userID, uuid.New(), filepath.Ext(input.FileName))

	url, err := s.backend.Put(ctx, objectKey, io.LimitReader(input.Reader, s.maxSize), input.Size, contentType)
	if err != nil {
		return nil, errors.StorageError(err)
	}

	return &domain.Attachment{
		URL:      url,
		Name:     input.FileName,
		MimeType: contentType,
		Size:     input.Size,
		Duration: input.Duration,
	}, nil
}
