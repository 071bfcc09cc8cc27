package llmlog

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	// latest validated response per cache key
	byCacheKey map[string]json.RawMessage
	requests   []Request
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byCacheKey: make(map[string]json.RawMessage)}
}

func (s *MemoryStore) Record(_ context.Context, req Request, _, validated json.RawMessage) (Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	req.ID = s.nextID
	req.CreatedAt = time.Now()
	s.requests = append(s.requests, req)
	if key := strings.TrimSpace(req.CacheKey); key != "" {
		s.byCacheKey[key] = append(json.RawMessage(nil), validated...)
	}
	return req, nil
}

func (s *MemoryStore) FindValidatedByCacheKey(_ context.Context, cacheKey string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	validated, ok := s.byCacheKey[strings.TrimSpace(cacheKey)]
	if !ok {
		return nil, ErrNotFound
	}
	return append(json.RawMessage(nil), validated...), nil
}

// Requests returns a copy of the recorded requests, newest last.
func (s *MemoryStore) Requests() []Request {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}
