package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"structify/internal/auth"
	"structify/internal/middleware"
	"structify/internal/repository/user"
)

type AuthHandler struct {
	users  user.Repository
	tokens *auth.TokenManager
	logger *zap.Logger
}

func NewAuthHandler(users user.Repository, tokens *auth.TokenManager, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{users: users, tokens: tokens, logger: logger}
}

type userOut struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var in struct {
		Username        string `json:"username"`
		Password        string `json:"password"`
		PasswordConfirm string `json:"password_confirm"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	username := strings.TrimSpace(in.Username)
	if username == "" || in.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}
	if in.Password != in.PasswordConfirm {
		writeError(w, http.StatusBadRequest, "Passwords do not match")
		return
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		h.logger.Error("hash password", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to register user")
		return
	}
	u, err := h.users.Create(r.Context(), username, hash)
	if errors.Is(err, user.ErrDuplicateUsername) {
		writeError(w, http.StatusBadRequest, "Username already registered")
		return
	}
	if err != nil {
		h.logger.Error("create user", zap.String("username", username), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to register user")
		return
	}
	writeJSON(w, http.StatusCreated, userOut{ID: u.ID, Username: u.Username})
}

func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	username, password, ok := loginCredentials(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	u, err := h.users.FindByUsername(r.Context(), username)
	if err != nil || !auth.VerifyPassword(u.PasswordHash, password) {
		writeError(w, http.StatusBadRequest, "Incorrect username or password")
		return
	}

	token, err := h.tokens.Issue(u.ID, u.Username)
	if err != nil {
		h.logger.Error("issue token", zap.String("username", u.Username), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"access_token": token,
		"token_type":   "bearer",
	})
}

// loginCredentials accepts both the OAuth2 password form used by the web
// client and a JSON body.
func loginCredentials(r *http.Request) (username, password string, ok bool) {
	contentType := r.Header.Get("Content-Type")
	if strings.Contains(contentType, "application/json") {
		var in struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			return "", "", false
		}
		return strings.TrimSpace(in.Username), in.Password, true
	}
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			return "", "", false
		}
	} else if err := r.ParseForm(); err != nil {
		return "", "", false
	}
	return strings.TrimSpace(r.FormValue("username")), r.FormValue("password"), true
}

func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	u, ok := middleware.UserFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Could not validate credentials")
		return
	}
	writeJSON(w, http.StatusOK, userOut{ID: u.ID, Username: u.Username})
}
