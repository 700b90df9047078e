// Package blobstore stores generated documents.
package blobstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no object exists at a path.
var ErrNotFound = errors.New("blobstore: object not found")

type Object struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// Store is implemented by S3Store and Memory.
type Store interface {
	Put(ctx context.Context, path string, body []byte, contentType string) error
	Get(ctx context.Context, path string) ([]byte, error)
	Stat(ctx context.Context, path string) (Object, error)
	List(ctx context.Context, prefix string) ([]Object, error)
	Delete(ctx context.Context, path string) error
	PresignGetURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}
