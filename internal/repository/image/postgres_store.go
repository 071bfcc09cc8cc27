package image

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
)

type PostgresStore struct {
	db *sql.DB

	schemaOnce sync.Once
	schemaErr  error

	// hashCache fronts the (user, content hash) dedup lookup so repeat
	// uploads of the same file skip the round trip.
	hashCache *lru.Cache[string, Image]
}

func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	cache, err := lru.New[string, Image](1024)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{db: db, hashCache: cache}, nil
}

func hashCacheKey(userID int64, contentHash string) string {
	return fmt.Sprintf("%d:%s", userID, strings.TrimSpace(contentHash))
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store is nil")
	}
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS images (
  id BIGSERIAL PRIMARY KEY,
  user_id BIGINT NOT NULL REFERENCES users(id),
  storage_key TEXT NOT NULL,
  url TEXT NOT NULL,
  content_hash TEXT NOT NULL,
  created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
  UNIQUE (user_id, content_hash)
);
CREATE INDEX IF NOT EXISTS idx_images_content_hash ON images (content_hash);
`)
	})
	return s.schemaErr
}

func (s *PostgresStore) Create(ctx context.Context, img Image) (Image, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return Image{}, fmt.Errorf("ensure schema: %w", err)
	}
	// ON CONFLICT DO NOTHING covers a concurrent upload of the same
	// content; the loser re-reads the winning row.
	var created Image
	err := s.db.QueryRowContext(ctx, `
INSERT INTO images (user_id, storage_key, url, content_hash)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id, content_hash) DO NOTHING
RETURNING id, user_id, storage_key, url, content_hash, created_at`,
		img.UserID, img.StorageKey, img.URL, img.ContentHash,
	).Scan(&created.ID, &created.UserID, &created.StorageKey, &created.URL, &created.ContentHash, &created.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return s.FindByUserAndHash(ctx, img.UserID, img.ContentHash)
	}
	if err != nil {
		return Image{}, err
	}
	s.hashCache.Add(hashCacheKey(created.UserID, created.ContentHash), created)
	return created, nil
}

func (s *PostgresStore) FindByUserAndHash(ctx context.Context, userID int64, contentHash string) (Image, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return Image{}, fmt.Errorf("ensure schema: %w", err)
	}
	key := hashCacheKey(userID, contentHash)
	if img, ok := s.hashCache.Get(key); ok {
		return img, nil
	}
	row := s.db.QueryRowContext(ctx, `
SELECT id, user_id, storage_key, url, content_hash, created_at
FROM images WHERE user_id = $1 AND content_hash = $2`,
		userID, strings.TrimSpace(contentHash))
	img, err := scanImage(row)
	if err != nil {
		return Image{}, err
	}
	s.hashCache.Add(key, img)
	return img, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id int64) (Image, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return Image{}, fmt.Errorf("ensure schema: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `
SELECT id, user_id, storage_key, url, content_hash, created_at
FROM images WHERE id = $1`, id)
	return scanImage(row)
}

func scanImage(row *sql.Row) (Image, error) {
	var img Image
	err := row.Scan(&img.ID, &img.UserID, &img.StorageKey, &img.URL, &img.ContentHash, &img.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Image{}, ErrNotFound
	}
	if err != nil {
		return Image{}, err
	}
	return img, nil
}
