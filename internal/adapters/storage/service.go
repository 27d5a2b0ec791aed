// Package storage provides a domain-agnostic interface for S3-compatible object storage.
// The webhook module uses it to archive raw inbound bodies.
package storage

import (
	"context"
	"io"
)

// StorageService defines the interface for object storage operations.
type StorageService interface {
	// PutObject stores size bytes from reader under key.
	PutObject(ctx context.Context, bucket, key, contentType string, reader io.Reader, size int64) error

	// GetObject returns the object stored under key.
	// The caller is responsible for closing the returned io.ReadCloser.
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)

	// DeleteObject removes an object from storage.
	DeleteObject(ctx context.Context, bucket, key string) error

	// EnsureBucketExists creates the bucket if it doesn't exist.
	EnsureBucketExists(ctx context.Context, bucket string) error

	// ValidateContentType checks if the content type is allowed.
	ValidateContentType(contentType string) error

	// ValidateFileSize checks if the object size is within limits.
	ValidateFileSize(sizeBytes int64) error
}

// Config defines the configuration interface for storage.
type Config interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinIOMaxFileSize() int64
	IsMinIOEnabled() bool
}
