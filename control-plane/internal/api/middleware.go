package api

import (
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// TokenAuthConfig controls bearer token authentication.
type TokenAuthConfig struct {
	// TokenHash is the bcrypt hash of the accepted token. Empty disables
	// authentication.
	TokenHash string

	// Logger for authentication events.
	Logger *slog.Logger
}

// TokenAuthMiddleware creates middleware that checks the request's bearer
// token against a bcrypt hash.
func TokenAuthMiddleware(config TokenAuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if config.TokenHash == "" {
			return next
		}
		hash := []byte(config.TokenHash)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || token == "" {
				config.Logger.Warn("api auth failed: missing credentials",
					"path", r.URL.Path,
					"has_auth_header", authHeader != "",
				)
				http.Error(w, "unauthorized: missing credentials", http.StatusUnauthorized)
				return
			}

			if err := bcrypt.CompareHashAndPassword(hash, []byte(token)); err != nil {
				config.Logger.Warn("api auth failed: invalid token", "path", r.URL.Path)
				http.Error(w, "unauthorized: invalid token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// wrapHandler converts an http.HandlerFunc to use middleware.
func wrapHandler(h http.HandlerFunc, middleware func(http.Handler) http.Handler) http.HandlerFunc {
	return middleware(h).ServeHTTP
}
