// Package storage provides the object storage used for table snapshots.
package storage

import (
	"context"
	"errors"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
	ErrDeleteFailed   = errors.New("delete failed")
)

// ObjectStorage stores snapshot blobs under slash-separated keys.
// Implementations are the local filesystem and S3.
type ObjectStorage interface {
	// Put writes data under key, replacing any existing object. Readers never
	// observe a partially written object.
	Put(ctx context.Context, key string, data []byte) error

	// Get returns the object stored under key, or ErrObjectNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error

	// Exists checks if an object exists.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns all keys under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Location returns a human-readable location for key, such as a file
	// path or an s3:// URL.
	Location(key string) string
}

// MultipartUploadConfig holds configuration for multipart uploads.
type MultipartUploadConfig struct {
	// PartSize is the size of each part in bytes (default: 5MB).
	PartSize int64
}

// DefaultMultipartConfig returns the default multipart upload configuration.
func DefaultMultipartConfig() MultipartUploadConfig {
	return MultipartUploadConfig{
		PartSize: 5 * 1024 * 1024, // 5MB
	}
}
