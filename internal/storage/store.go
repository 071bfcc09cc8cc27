package storage

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("storage: object not found")

// ObjectStore abstracts the image blob backend so handlers and services
// can be tested without MinIO.
type ObjectStore interface {
	Put(ctx context.Context, key string, content []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, string, error)
	PresignedURL(ctx context.Context, key string) (string, error)
}
