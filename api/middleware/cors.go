package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

var localOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

// CORS applies the configured origin policy. An empty list falls back to the
// local dev origins.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	origins := allowedOrigins
	if len(origins) == 0 {
		origins = localOrigins
	}
	credentials := true
	for _, origin := range origins {
		if origin == "*" {
			credentials = false
			break
		}
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: credentials,
		MaxAge:           300,
	}).Handler
}
