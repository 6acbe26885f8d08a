package auth

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
)

// APIKey returns middleware enforcing API key authentication on every
// request it wraps.
func APIKey(mode, header, key string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		if mode != "apikey" {
			return next
		}
		if key == "" {
			slog.Warn("auth: apikey mode with an empty key, all API requests will be rejected")
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(header)
			if key == "" || got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"invalid api key"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
