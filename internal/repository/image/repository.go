package image

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("image: not found")

type Image struct {
	ID          int64
	UserID      int64
	StorageKey  string
	URL         string
	ContentHash string
	CreatedAt   time.Time
}

// Repository persists uploaded image metadata. Deduplication queries go
// through FindByUserAndHash before any object write happens.
type Repository interface {
	Create(ctx context.Context, img Image) (Image, error)
	FindByUserAndHash(ctx context.Context, userID int64, contentHash string) (Image, error)
	FindByID(ctx context.Context, id int64) (Image, error)
}
