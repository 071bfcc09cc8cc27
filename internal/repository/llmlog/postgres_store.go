package llmlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type PostgresStore struct {
	db *sql.DB

	schemaOnce sync.Once
	schemaErr  error
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store is nil")
	}
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS llm_requests (
  id BIGSERIAL PRIMARY KEY,
  user_id BIGINT NOT NULL REFERENCES users(id),
  prompt TEXT NOT NULL,
  field_structure JSONB NOT NULL,
  image_id BIGINT REFERENCES images(id),
  cache_key TEXT,
  created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_llm_requests_cache_key ON llm_requests (cache_key);

CREATE TABLE IF NOT EXISTS llm_responses (
  id BIGSERIAL PRIMARY KEY,
  request_id BIGINT NOT NULL REFERENCES llm_requests(id),
  raw_response JSONB NOT NULL,
  validated_response JSONB NOT NULL,
  created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_llm_responses_request_id ON llm_responses (request_id);
`)
	})
	return s.schemaErr
}

func (s *PostgresStore) Record(ctx context.Context, req Request, raw, validated json.RawMessage) (Request, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return Request{}, fmt.Errorf("ensure schema: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Request{}, err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
INSERT INTO llm_requests (user_id, prompt, field_structure, image_id, cache_key)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at`,
		req.UserID, req.Prompt, []byte(req.FieldStructure), req.ImageID, nullable(req.CacheKey),
	).Scan(&req.ID, &req.CreatedAt)
	if err != nil {
		return Request{}, fmt.Errorf("insert request: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO llm_responses (request_id, raw_response, validated_response)
VALUES ($1, $2, $3)`,
		req.ID, []byte(raw), []byte(validated))
	if err != nil {
		return Request{}, fmt.Errorf("insert response: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Request{}, err
	}
	return req, nil
}

func (s *PostgresStore) FindValidatedByCacheKey(ctx context.Context, cacheKey string) (json.RawMessage, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	cacheKey = strings.TrimSpace(cacheKey)
	if cacheKey == "" {
		return nil, ErrNotFound
	}
	var validated []byte
	err := s.db.QueryRowContext(ctx, `
SELECT r.validated_response
FROM llm_responses r
JOIN llm_requests q ON q.id = r.request_id
WHERE q.cache_key = $1
ORDER BY r.created_at DESC
LIMIT 1`, cacheKey).Scan(&validated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(validated), nil
}

func nullable(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
