package image

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]Image
	byHash map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[int64]Image),
		byHash: make(map[string]int64),
	}
}

func memKey(userID int64, contentHash string) string {
	return fmt.Sprintf("%d:%s", userID, strings.TrimSpace(contentHash))
}

func (s *MemoryStore) Create(_ context.Context, img Image) (Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memKey(img.UserID, img.ContentHash)
	if id, ok := s.byHash[key]; ok {
		return s.byID[id], nil
	}
	s.nextID++
	img.ID = s.nextID
	img.CreatedAt = time.Now()
	s.byID[img.ID] = img
	s.byHash[key] = img.ID
	return img, nil
}

func (s *MemoryStore) FindByUserAndHash(_ context.Context, userID int64, contentHash string) (Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byHash[memKey(userID, contentHash)]
	if !ok {
		return Image{}, ErrNotFound
	}
	return s.byID[id], nil
}

func (s *MemoryStore) FindByID(_ context.Context, id int64) (Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	img, ok := s.byID[id]
	if !ok {
		return Image{}, ErrNotFound
	}
	return img, nil
}
