package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"structify/internal/middleware"
	"structify/internal/repository/image"
	"structify/internal/storage"
)

const maxUploadBytes = 32 << 20

type ImageHandler struct {
	images  image.Repository
	objects storage.ObjectStore
	logger  *zap.Logger
}

func NewImageHandler(images image.Repository, objects storage.ObjectStore, logger *zap.Logger) *ImageHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImageHandler{images: images, objects: objects, logger: logger}
}

type imageOut struct {
	ID           int64  `json:"id"`
	URL          string `json:"url"`
	ContentHash  string `json:"content_hash"`
	Deduplicated bool   `json:"deduplicated"`
}

// HandleUpload stores an image with per-user deduplication: when the
// user already uploaded bytes with the same SHA-256 hash, the existing
// record is returned and no object is written.
func (h *ImageHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	u, ok := middleware.UserFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Could not validate credentials")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		writeError(w, http.StatusBadRequest, "Only image uploads are allowed")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read file")
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "Empty file")
		return
	}

	sum := sha256.Sum256(data)
	contentHash := hex.EncodeToString(sum[:])

	existing, err := h.images.FindByUserAndHash(r.Context(), u.ID, contentHash)
	if err == nil {
		writeJSON(w, http.StatusOK, imageOut{
			ID:           existing.ID,
			URL:          existing.URL,
			ContentHash:  existing.ContentHash,
			Deduplicated: true,
		})
		return
	}
	if !errors.Is(err, image.ErrNotFound) {
		h.logger.Error("dedup lookup", zap.Int64("user_id", u.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to store image")
		return
	}

	key := objectKey(u.ID, contentHash, header.Filename)
	url, err := h.objects.Put(r.Context(), key, data, contentType)
	if err != nil {
		h.logger.Error("object put", zap.String("key", key), zap.Error(err))
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to upload image: %v", err))
		return
	}

	created, err := h.images.Create(r.Context(), image.Image{
		UserID:      u.ID,
		StorageKey:  key,
		URL:         url,
		ContentHash: contentHash,
	})
	if err != nil {
		h.logger.Error("persist image row", zap.String("key", key), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to store image")
		return
	}

	// A concurrent identical upload may have won the unique constraint;
	// in that case the returned row predates this object write.
	writeJSON(w, http.StatusOK, imageOut{
		ID:           created.ID,
		URL:          created.URL,
		ContentHash:  created.ContentHash,
		Deduplicated: created.StorageKey != key,
	})
}

// objectKey groups objects by user and keeps the original extension.
func objectKey(userID int64, contentHash, filename string) string {
	ext := path.Ext(strings.TrimSpace(filename))
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")
	return fmt.Sprintf("user_%d/%s_%s%s", userID, contentHash, suffix, ext)
}
