package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"structify/internal/llm"
	"structify/internal/middleware"
	"structify/internal/service/structured"
)

type StructuredHandler struct {
	svc    *structured.Service
	logger *zap.Logger
}

func NewStructuredHandler(svc *structured.Service, logger *zap.Logger) *StructuredHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StructuredHandler{svc: svc, logger: logger}
}

type structuredRequest struct {
	Prompt  string          `json:"prompt"`
	Fields  []llm.FieldSpec `json:"fields"`
	ImageID *int64          `json:"image_id"`
}

type structuredResponse struct {
	Data      json.RawMessage `json:"data"`
	FromCache bool            `json:"from_cache"`
}

func (h *StructuredHandler) HandleStructured(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	u, ok := middleware.UserFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Could not validate credentials")
		return
	}

	var in structuredRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(in.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "Prompt is required")
		return
	}
	if err := llm.ValidateFields(in.Fields); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.svc.Structured(r.Context(), structured.Query{
		UserID:  u.ID,
		Prompt:  in.Prompt,
		Fields:  in.Fields,
		ImageID: in.ImageID,
	})
	if err != nil {
		h.writeStructuredError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, structuredResponse{Data: result.Data, FromCache: result.FromCache})
}

func (h *StructuredHandler) writeStructuredError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, structured.ErrImageNotFound):
		writeError(w, http.StatusNotFound, "Image not found")
	case errors.Is(err, structured.ErrImageForbidden):
		writeError(w, http.StatusForbidden, "Image does not belong to this user")
	case errors.Is(err, structured.ErrUpstream):
		h.logger.Warn("llm upstream failure", zap.Error(err))
		writeError(w, http.StatusBadGateway, "LLM call failed")
	case errors.Is(err, llm.ErrEmptyResponse):
		writeError(w, http.StatusInternalServerError, "Empty response from model")
	case errors.Is(err, llm.ErrInvalidJSON):
		writeError(w, http.StatusInternalServerError, "Model output did not match the requested fields")
	default:
		h.logger.Error("structured query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Structured query failed")
	}
}
