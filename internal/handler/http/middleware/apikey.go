package middleware

import (
	"net/http"

	"github.com/cmlabs-hris/attendance-sync/internal/handler/http/response"
	"golang.org/x/crypto/bcrypt"
)

const APIKeyHeader = "X-API-Key"

// APIKeyRequired checks the X-API-Key header against a bcrypt hash.
func APIKeyRequired(keyHash string) func(http.Handler) http.Handler {
	hash := []byte(keyHash)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(APIKeyHeader)
			if key == "" {
				response.Unauthorized(w, "Missing API key")
				return
			}

			if err := bcrypt.CompareHashAndPassword(hash, []byte(key)); err != nil {
				response.Unauthorized(w, "Invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
