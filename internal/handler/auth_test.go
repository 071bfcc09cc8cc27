package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"structify/internal/auth"
	"structify/internal/middleware"
	"structify/internal/repository/user"
)

func newAuthFixture(t *testing.T) (*AuthHandler, *user.MemoryStore, *auth.TokenManager) {
	t.Helper()
	users := user.NewMemoryStore()
	tokens, err := auth.NewTokenManager("test-secret", time.Hour)
	require.NoError(t, err)
	return NewAuthHandler(users, tokens, nil), users, tokens
}

func postJSON(t *testing.T, h http.HandlerFunc, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func detail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["detail"]
}

func TestRegister(t *testing.T) {
	h, _, _ := newAuthFixture(t)

	rec := postJSON(t, h.HandleRegister, "/auth/register",
		`{"username":"alice","password":"pw123","password_confirm":"pw123"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var out struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, "alice", out.Username)
	require.NotZero(t, out.ID)
}

func TestRegisterPasswordMismatch(t *testing.T) {
	h, _, _ := newAuthFixture(t)

	rec := postJSON(t, h.HandleRegister, "/auth/register",
		`{"username":"alice","password":"pw123","password_confirm":"other"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Passwords do not match", detail(t, rec))
}

func TestRegisterDuplicateUsername(t *testing.T) {
	h, _, _ := newAuthFixture(t)

	body := `{"username":"alice","password":"pw123","password_confirm":"pw123"}`
	require.Equal(t, http.StatusCreated, postJSON(t, h.HandleRegister, "/auth/register", body).Code)

	rec := postJSON(t, h.HandleRegister, "/auth/register", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Username already registered", detail(t, rec))
}

func TestRegisterEmptyUsername(t *testing.T) {
	h, _, _ := newAuthFixture(t)

	rec := postJSON(t, h.HandleRegister, "/auth/register",
		`{"username":"  ","password":"pw123","password_confirm":"pw123"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginWithForm(t *testing.T) {
	h, _, tokens := newAuthFixture(t)
	require.Equal(t, http.StatusCreated, postJSON(t, h.HandleRegister, "/auth/register",
		`{"username":"alice","password":"pw123","password_confirm":"pw123"}`).Code)

	form := url.Values{"username": {"alice"}, "password": {"pw123"}}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.HandleLogin(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, "bearer", out.TokenType)

	claims, err := tokens.Parse(out.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "alice", claims.Username)
}

func TestLoginWithJSON(t *testing.T) {
	h, _, _ := newAuthFixture(t)
	require.Equal(t, http.StatusCreated, postJSON(t, h.HandleRegister, "/auth/register",
		`{"username":"alice","password":"pw123","password_confirm":"pw123"}`).Code)

	rec := postJSON(t, h.HandleLogin, "/auth/login", `{"username":"alice","password":"pw123"}`)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestLoginWrongPassword(t *testing.T) {
	h, _, _ := newAuthFixture(t)
	require.Equal(t, http.StatusCreated, postJSON(t, h.HandleRegister, "/auth/register",
		`{"username":"alice","password":"pw123","password_confirm":"pw123"}`).Code)

	rec := postJSON(t, h.HandleLogin, "/auth/login", `{"username":"alice","password":"nope"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Incorrect username or password", detail(t, rec))
}

func TestLoginUnknownUser(t *testing.T) {
	h, _, _ := newAuthFixture(t)

	rec := postJSON(t, h.HandleLogin, "/auth/login", `{"username":"ghost","password":"pw"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Incorrect username or password", detail(t, rec))
}

func TestMeThroughMiddleware(t *testing.T) {
	h, users, tokens := newAuthFixture(t)
	require.Equal(t, http.StatusCreated, postJSON(t, h.HandleRegister, "/auth/register",
		`{"username":"alice","password":"pw123","password_confirm":"pw123"}`).Code)

	authn := middleware.NewAuthenticator(tokens, users)
	protected := authn.Require(http.HandlerFunc(h.HandleMe))

	token, err := tokens.Issue(1, "alice")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Username string `json:"username"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, "alice", out.Username)
}

func TestMeWithoutToken(t *testing.T) {
	h, users, tokens := newAuthFixture(t)
	authn := middleware.NewAuthenticator(tokens, users)
	protected := authn.Require(http.HandlerFunc(h.HandleMe))

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
}
