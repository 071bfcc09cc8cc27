package user

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("user: not found")
	ErrDuplicateUsername = errors.New("user: username already registered")
)

type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Repository persists registered users.
type Repository interface {
	Create(ctx context.Context, username, passwordHash string) (User, error)
	FindByUsername(ctx context.Context, username string) (User, error)
	FindByID(ctx context.Context, id int64) (User, error)
}
