package llmlog

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var ErrNotFound = errors.New("llmlog: not found")

// Request is one structured-output query as received from a user.
type Request struct {
	ID             int64
	UserID         int64
	Prompt         string
	FieldStructure json.RawMessage
	ImageID        *int64
	CacheKey       string
	CreatedAt      time.Time
}

// Response stores both the raw model output and the schema-validated
// object that was returned to the client.
type Response struct {
	ID        int64
	RequestID int64
	Raw       json.RawMessage
	Validated json.RawMessage
	CreatedAt time.Time
}

// Repository is the persistent tier of the result cache as well as the
// audit log of every fresh model call.
type Repository interface {
	Record(ctx context.Context, req Request, raw, validated json.RawMessage) (Request, error)
	// FindValidatedByCacheKey returns the most recent validated response
	// recorded under the cache key.
	FindValidatedByCacheKey(ctx context.Context, cacheKey string) (json.RawMessage, error)
}
