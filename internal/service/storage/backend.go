// Package storage persists uploaded attachments to MinIO, or to local disk
// when no object store is configured.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"chatlink-backend/pkg/resilience"
)

// Backend writes an object and returns the URL clients fetch it from
type Backend interface {
	Put(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) (string, error)
}

// MinioBackend stores objects in a MinIO bucket. Uploads go through a
// circuit breaker so a down object store fails fast instead of piling up
// blocked requests.
type MinioBackend struct {
	client  *minio.Client
	bucket  string
	breaker *resilience.Breaker
}

// NewMinioBackend connects to MinIO and ensures the bucket exists
func NewMinioBackend(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioBackend, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &MinioBackend{
		client:  client,
		bucket:  bucket,
		breaker: resilience.NewBreaker("minio", 5, 30*time.Second),
	}, nil
}

// Put uploads the object and returns a presigned-free public path
func (b *MinioBackend) Put(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) (string, error) {
	err := b.breaker.Do(func() error {
		_, err := b.client.PutObject(ctx, b.bucket, objectKey, reader, size, minio.PutObjectOptions{
			ContentType: contentType,
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}
	return fmt.Sprintf("/%s/%s", b.bucket, objectKey), nil
}

// DiskBackend stores objects under a local directory, served statically
type DiskBackend struct {
	root string
}

// NewDiskBackend creates the upload root if missing
func NewDiskBackend(root string) (*DiskBackend, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &DiskBackend{root: root}, nil
}

// Put writes the object to disk via a temp file so partial writes never leave
// a half-written object at the final path.
func (b *DiskBackend) Put(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) (string, error) {
	path := filepath.Join(b.root, filepath.FromSlash(objectKey))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create object dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to finalize object: %w", err)
	}

	return "/uploads/" + objectKey, nil
}
