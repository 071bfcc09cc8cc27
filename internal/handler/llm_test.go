package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"structify/internal/cache/memory"
	"structify/internal/llm"
	"structify/internal/middleware"
	"structify/internal/repository/image"
	"structify/internal/repository/llmlog"
	"structify/internal/repository/user"
	"structify/internal/service/structured"
)

type stubLLM struct {
	response json.RawMessage
	err      error
}

func (s *stubLLM) GenerateStructured(_ context.Context, _ string, _ []llm.FieldSpec, _ *llm.ImageAttachment) (json.RawMessage, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.response, nil
}

func (s *stubLLM) Name() string { return "stub:model" }
func (s *stubLLM) Close() error { return nil }

func newStructuredFixture(client llm.Client, images image.Repository) *StructuredHandler {
	mem := memory.NewLRUTTL[string, json.RawMessage](16, 0, time.Minute)
	svc := structured.New(client, llmlog.NewMemoryStore(), images, newFakeObjectStore(), mem, nil)
	return NewStructuredHandler(svc, nil)
}

func postStructured(t *testing.T, h *StructuredHandler, u user.User, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/llm/structured", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(middleware.WithUser(req.Context(), u))
	rec := httptest.NewRecorder()
	h.HandleStructured(rec, req)
	return rec
}

const validBody = `{"prompt":"describe the item","fields":[{"name":"title","type":"string"},{"name":"price","type":"number"}]}`

func TestStructuredEndpoint(t *testing.T) {
	h := newStructuredFixture(&stubLLM{response: json.RawMessage(`{"title":"Book","price":9.5}`)}, image.NewMemoryStore())
	alice := user.User{ID: 1, Username: "alice"}

	rec := postStructured(t, h, alice, validBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Data      map[string]any `json:"data"`
		FromCache bool           `json:"from_cache"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.FromCache {
		t.Fatalf("first call must not be from cache")
	}
	if out.Data["title"] != "Book" || out.Data["price"] != 9.5 {
		t.Fatalf("data = %v", out.Data)
	}

	// Identical query again: served from cache.
	rec = postStructured(t, h, alice, validBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.FromCache {
		t.Fatalf("second call must set from_cache")
	}
}

func TestStructuredRequiresPrompt(t *testing.T) {
	h := newStructuredFixture(&stubLLM{}, image.NewMemoryStore())
	rec := postStructured(t, h, user.User{ID: 1}, `{"prompt":"  ","fields":[{"name":"a","type":"string"}]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestStructuredRejectsBadFields(t *testing.T) {
	h := newStructuredFixture(&stubLLM{}, image.NewMemoryStore())
	cases := []string{
		`{"prompt":"p","fields":[]}`,
		`{"prompt":"p","fields":[{"name":"a","type":"boolean"}]}`,
		`{"prompt":"p","fields":[{"name":"a","type":"string"},{"name":"a","type":"number"}]}`,
	}
	for _, body := range cases {
		rec := postStructured(t, h, user.User{ID: 1}, body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestStructuredImageOwnership(t *testing.T) {
	images := image.NewMemoryStore()
	foreign, err := images.Create(context.Background(), image.Image{UserID: 2, StorageKey: "k", URL: "u", ContentHash: "h"})
	if err != nil {
		t.Fatalf("seed image: %v", err)
	}
	h := newStructuredFixture(&stubLLM{response: json.RawMessage(`{"title":"x","price":0}`)}, images)

	rec := postStructured(t, h, user.User{ID: 1},
		fmt.Sprintf(`{"prompt":"p","fields":[{"name":"title","type":"string"},{"name":"price","type":"number"}],"image_id":%d}`, foreign.ID))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign image: status = %d, want 403", rec.Code)
	}

	rec = postStructured(t, h, user.User{ID: 1},
		`{"prompt":"p","fields":[{"name":"title","type":"string"},{"name":"price","type":"number"}],"image_id":999}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing image: status = %d, want 404", rec.Code)
	}
}

func TestStructuredUpstreamFailureMapsTo502(t *testing.T) {
	h := newStructuredFixture(&stubLLM{err: fmt.Errorf("quota exceeded")}, image.NewMemoryStore())
	rec := postStructured(t, h, user.User{ID: 1}, validBody)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestStructuredBadModelOutputMapsTo500(t *testing.T) {
	h := newStructuredFixture(&stubLLM{response: json.RawMessage(`{"unexpected":true}`)}, image.NewMemoryStore())
	rec := postStructured(t, h, user.User{ID: 1}, validBody)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}
