package server

import (
	"net/http"

	"structify/internal/handler"
	"structify/internal/middleware"
)

func NewMux(
	authHandler *handler.AuthHandler,
	imageHandler *handler.ImageHandler,
	structuredHandler *handler.StructuredHandler,
	authn *middleware.Authenticator,
) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", handler.HandleHealth)

	// Public auth endpoints
	mux.HandleFunc("/auth/register", authHandler.HandleRegister)
	mux.HandleFunc("/auth/login", authHandler.HandleLogin)

	// Bearer-protected endpoints
	mux.Handle("/auth/me", authn.Require(http.HandlerFunc(authHandler.HandleMe)))
	mux.Handle("/images/upload", authn.Require(http.HandlerFunc(imageHandler.HandleUpload)))
	mux.Handle("/llm/structured", authn.Require(http.HandlerFunc(structuredHandler.HandleStructured)))

	return middleware.CORS(mux)
}
