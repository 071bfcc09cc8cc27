package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"

	"structify/internal/middleware"
	"structify/internal/repository/image"
	"structify/internal/repository/user"
)

type fakeObjectStore struct {
	mu       sync.Mutex
	data     map[string][]byte
	putCalls int
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{data: map[string][]byte{}}
}

func (s *fakeObjectStore) Put(_ context.Context, key string, content []byte, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putCalls++
	s.data[key] = append([]byte(nil), content...)
	return "http://minio:9000/llm-images/" + key, nil
}

func (s *fakeObjectStore) Get(_ context.Context, key string) ([]byte, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.data[key]
	if !ok {
		return nil, "", fmt.Errorf("not found")
	}
	return append([]byte(nil), raw...), "image/png", nil
}

func (s *fakeObjectStore) PresignedURL(_ context.Context, key string) (string, error) {
	return "http://minio:9000/llm-images/" + key + "?signed", nil
}

func multipartUpload(t *testing.T, filename, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	hdr.Set("Content-Type", contentType)
	part, err := w.CreatePart(hdr)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func uploadAs(t *testing.T, h *ImageHandler, u user.User, filename, contentType string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, bodyType := multipartUpload(t, filename, contentType, content)
	req := httptest.NewRequest(http.MethodPost, "/images/upload", body)
	req.Header.Set("Content-Type", bodyType)
	req = req.WithContext(middleware.WithUser(req.Context(), u))
	rec := httptest.NewRecorder()
	h.HandleUpload(rec, req)
	return rec
}

func decodeImageOut(t *testing.T, rec *httptest.ResponseRecorder) imageOut {
	t.Helper()
	var out imageOut
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestUploadStoresImage(t *testing.T) {
	objects := newFakeObjectStore()
	h := NewImageHandler(image.NewMemoryStore(), objects, nil)
	alice := user.User{ID: 1, Username: "alice"}

	rec := uploadAs(t, h, alice, "cat.png", "image/png", []byte("png-bytes"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	out := decodeImageOut(t, rec)
	if out.Deduplicated {
		t.Fatalf("first upload must not be deduplicated")
	}
	if out.ContentHash == "" || out.URL == "" || out.ID == 0 {
		t.Fatalf("incomplete response: %+v", out)
	}
	if objects.putCalls != 1 {
		t.Fatalf("put calls = %d, want 1", objects.putCalls)
	}
}

func TestUploadDeduplicatesPerUser(t *testing.T) {
	objects := newFakeObjectStore()
	h := NewImageHandler(image.NewMemoryStore(), objects, nil)
	alice := user.User{ID: 1, Username: "alice"}
	bob := user.User{ID: 2, Username: "bob"}
	content := []byte("same-bytes")

	first := decodeImageOut(t, uploadAs(t, h, alice, "a.png", "image/png", content))

	second := decodeImageOut(t, uploadAs(t, h, alice, "b.png", "image/png", content))
	if !second.Deduplicated {
		t.Fatalf("same user, same bytes: expected dedup hit")
	}
	if second.ID != first.ID || second.URL != first.URL {
		t.Fatalf("dedup must return the original record: %+v vs %+v", second, first)
	}
	if objects.putCalls != 1 {
		t.Fatalf("put calls = %d, want 1 (no second object write)", objects.putCalls)
	}

	// Deduplication is per user: another user uploading the same bytes
	// gets their own object.
	third := decodeImageOut(t, uploadAs(t, h, bob, "c.png", "image/png", content))
	if third.Deduplicated {
		t.Fatalf("different user must not hit alice's record")
	}
	if objects.putCalls != 2 {
		t.Fatalf("put calls = %d, want 2", objects.putCalls)
	}
}

func TestUploadRejectsNonImage(t *testing.T) {
	h := NewImageHandler(image.NewMemoryStore(), newFakeObjectStore(), nil)
	alice := user.User{ID: 1, Username: "alice"}

	rec := uploadAs(t, h, alice, "doc.pdf", "application/pdf", []byte("%PDF"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUploadRejectsEmptyFile(t *testing.T) {
	h := NewImageHandler(image.NewMemoryStore(), newFakeObjectStore(), nil)
	alice := user.User{ID: 1, Username: "alice"}

	rec := uploadAs(t, h, alice, "empty.png", "image/png", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUploadObjectKeyShape(t *testing.T) {
	key := objectKey(7, "abc123", "photo.jpeg")
	if got, want := key[:7], "user_7/"; got != want {
		t.Fatalf("key prefix = %q, want %q", got, want)
	}
	if got := key[len(key)-5:]; got != ".jpeg" {
		t.Fatalf("key suffix = %q, want .jpeg", got)
	}
	if objectKey(7, "abc123", "photo.jpeg") == key {
		t.Fatalf("keys must be unique per upload")
	}
}
