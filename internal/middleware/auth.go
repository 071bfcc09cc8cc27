package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"structify/internal/auth"
	"structify/internal/repository/user"
)

type userCtxKey struct{}

// WithUser stores the authenticated user on the request context.
func WithUser(ctx context.Context, u user.User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFrom returns the authenticated user placed by the auth middleware.
func UserFrom(ctx context.Context) (user.User, bool) {
	u, ok := ctx.Value(userCtxKey{}).(user.User)
	return u, ok
}

// Authenticator guards routes behind a bearer token and resolves the
// token subject to a live user row.
type Authenticator struct {
	tokens *auth.TokenManager
	users  user.Repository
}

func NewAuthenticator(tokens *auth.TokenManager, users user.Repository) *Authenticator {
	return &Authenticator{tokens: tokens, users: users}
}

func (a *Authenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get("Authorization"))
		if raw == "" || !strings.HasPrefix(raw, "Bearer ") {
			unauthorized(w)
			return
		}
		claims, err := a.tokens.Parse(strings.TrimSpace(strings.TrimPrefix(raw, "Bearer ")))
		if err != nil {
			unauthorized(w)
			return
		}
		u, err := a.users.FindByUsername(r.Context(), claims.Username)
		if err != nil {
			unauthorized(w)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": "Could not validate credentials"})
}
