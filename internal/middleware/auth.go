package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
)

// RequireAPIKey rejects requests without "Authorization: Bearer <key>". An
// empty key disables the check for loopback-only deployments.
func RequireAPIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}

		expected := []byte("Bearer " + key)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if subtle.ConstantTimeCompare([]byte(authHeader), expected) != 1 {
				slog.Warn("Unauthorized request", "path", r.URL.Path, "has_auth", authHeader != "")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
