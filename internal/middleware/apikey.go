package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/Rorqualx/darkpattern-remover/internal/config"
)

// APIKey rejects requests without the configured key. The key is read from
// the X-API-Key header or an "Authorization: Bearer" header. /health and
// /metrics stay open for probes.
func APIKey(cfg *config.Config) Middleware {
	return func(next http.Handler) http.Handler {
		if !cfg.APIKeyEnabled {
			return next
		}
		want := []byte(cfg.APIKey)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get("X-API-Key")
			if key == "" {
				if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
					key = strings.TrimPrefix(auth, "Bearer ")
				}
			}

			if subtle.ConstantTimeCompare([]byte(key), want) != 1 {
				writeError(w, http.StatusUnauthorized, "Invalid or missing API key", time.Now())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
