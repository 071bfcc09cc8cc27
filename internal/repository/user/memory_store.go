package user

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is the in-process fallback used when no database DSN is
// configured. It is also the repository used by handler tests.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]User
	byName map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[int64]User),
		byName: make(map[string]int64),
	}
}

func (s *MemoryStore) Create(_ context.Context, username, passwordHash string) (User, error) {
	username = strings.TrimSpace(username)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byName[username]; ok {
		return User{}, ErrDuplicateUsername
	}
	s.nextID++
	u := User{
		ID:           s.nextID,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}
	s.byID[u.ID] = u
	s.byName[u.Username] = u.ID
	return u, nil
}

func (s *MemoryStore) FindByUsername(_ context.Context, username string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[strings.TrimSpace(username)]
	if !ok {
		return User{}, ErrNotFound
	}
	return s.byID[id], nil
}

func (s *MemoryStore) FindByID(_ context.Context, id int64) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}
