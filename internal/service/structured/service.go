package structured

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"structify/internal/cache/memory"
	"structify/internal/llm"
	"structify/internal/repository/image"
	"structify/internal/repository/llmlog"
	"structify/internal/storage"
)

var (
	ErrImageNotFound  = errors.New("structured: image not found")
	ErrImageForbidden = errors.New("structured: image does not belong to this user")
	ErrUpstream       = errors.New("structured: llm call failed")
)

// Query is one structured-output request from an authenticated user.
type Query struct {
	UserID  int64
	Prompt  string
	Fields  []llm.FieldSpec
	ImageID *int64
}

// Result carries the populated object and whether it was served from a
// previously computed cache entry.
type Result struct {
	Data      json.RawMessage
	FromCache bool
}

// Service runs structured queries against the model behind two cache
// tiers: an in-memory LRU and the persisted response log.
type Service struct {
	client  llm.Client
	logs    llmlog.Repository
	images  image.Repository
	objects storage.ObjectStore
	mem     *memory.LRUTTL[string, json.RawMessage]
	flight  singleflight.Group
	logger  *zap.Logger
}

func New(
	client llm.Client,
	logs llmlog.Repository,
	images image.Repository,
	objects storage.ObjectStore,
	mem *memory.LRUTTL[string, json.RawMessage],
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		client:  client,
		logs:    logs,
		images:  images,
		objects: objects,
		mem:     mem,
		logger:  logger,
	}
}

// CacheKey derives the deterministic key for a query. The image enters
// the key through its content hash, so re-uploaded (deduplicated) images
// keep hitting the same entry.
func CacheKey(model, prompt string, fields []llm.FieldSpec, imageHash string) string {
	payload := struct {
		Model     string          `json:"model"`
		Prompt    string          `json:"prompt"`
		Fields    []llm.FieldSpec `json:"fields"`
		ImageHash string          `json:"image_hash"`
	}{
		Model:     model,
		Prompt:    prompt,
		Fields:    fields,
		ImageHash: imageHash,
	}
	canonical, _ := json.Marshal(payload)
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

func (s *Service) Structured(ctx context.Context, q Query) (Result, error) {
	q.Prompt = strings.TrimSpace(q.Prompt)

	var img *image.Image
	if q.ImageID != nil {
		resolved, err := s.resolveImage(ctx, q.UserID, *q.ImageID)
		if err != nil {
			return Result{}, err
		}
		img = &resolved
	}

	imageHash := ""
	if img != nil {
		imageHash = img.ContentHash
	}
	key := CacheKey(s.client.Name(), q.Prompt, q.Fields, imageHash)

	if data, ok := s.mem.Get(key); ok {
		return Result{Data: data, FromCache: true}, nil
	}

	if data, err := s.logs.FindValidatedByCacheKey(ctx, key); err == nil {
		s.mem.Set(key, data, len(data))
		return Result{Data: data, FromCache: true}, nil
	} else if !errors.Is(err, llmlog.ErrNotFound) {
		s.logger.Warn("cache lookup failed", zap.String("cache_key", key), zap.Error(err))
	}

	// Collapse concurrent identical misses; only the leader calls the
	// model and records the result.
	v, err, _ := s.flight.Do(key, func() (any, error) {
		return s.generate(ctx, q, img, key)
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Data: v.(json.RawMessage), FromCache: false}, nil
}

func (s *Service) resolveImage(ctx context.Context, userID, imageID int64) (image.Image, error) {
	img, err := s.images.FindByID(ctx, imageID)
	if errors.Is(err, image.ErrNotFound) {
		return image.Image{}, ErrImageNotFound
	}
	if err != nil {
		return image.Image{}, fmt.Errorf("resolve image: %w", err)
	}
	if img.UserID != userID {
		return image.Image{}, ErrImageForbidden
	}
	return img, nil
}

func (s *Service) generate(ctx context.Context, q Query, img *image.Image, key string) (json.RawMessage, error) {
	var attachment *llm.ImageAttachment
	if img != nil {
		data, contentType, err := s.objects.Get(ctx, img.StorageKey)
		if err != nil {
			return nil, fmt.Errorf("load image %q: %w", img.StorageKey, err)
		}
		attachment = &llm.ImageAttachment{MIMEType: contentType, Data: data}
	}

	raw, err := s.client.GenerateStructured(ctx, q.Prompt, q.Fields, attachment)
	if err != nil {
		if errors.Is(err, llm.ErrEmptyResponse) || errors.Is(err, llm.ErrInvalidJSON) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	validated, err := llm.ValidateResult(raw, q.Fields)
	if err != nil {
		return nil, err
	}

	fieldStructure, _ := json.Marshal(q.Fields)
	_, err = s.logs.Record(ctx, llmlog.Request{
		UserID:         q.UserID,
		Prompt:         q.Prompt,
		FieldStructure: fieldStructure,
		ImageID:        q.ImageID,
		CacheKey:       key,
	}, raw, validated)
	if err != nil {
		// The result is still good; losing the log entry only costs a
		// future persistent-tier hit.
		s.logger.Warn("record llm exchange failed", zap.String("cache_key", key), zap.Error(err))
	}

	s.mem.Set(key, validated, len(validated))
	return validated, nil
}
