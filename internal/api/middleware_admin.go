package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"ratelimiter/internal/models"

	"github.com/gorilla/mux"
)

// adminTokenMiddleware guards destructive endpoints with a static bearer
// token. An empty token means dev mode and every request passes.
func adminTokenMiddleware(token string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, r, http.StatusUnauthorized, "Authorization required", models.ErrorCodeUnauthorized)
				return
			}

			const prefix = "Bearer "
			if !strings.HasPrefix(authHeader, prefix) {
				writeError(w, r, http.StatusUnauthorized, "Invalid authorization format", models.ErrorCodeUnauthorized)
				return
			}

			if !isValidAdminToken(authHeader[len(prefix):], token) {
				slog.Warn("Rejected admin request",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"request_id", RequestIDFromContext(r.Context()),
				)
				writeError(w, r, http.StatusUnauthorized, "Invalid admin token", models.ErrorCodeUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isValidAdminToken(presented, expected string) bool {
	if presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) == 1
}
