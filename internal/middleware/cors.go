// Package middleware provides HTTP middleware for the companion server.
package middleware

import (
	"net/http"

	"github.com/go-chi/cors"

	"github.com/earthmate/earthmate/internal/identity"
)

// CORS returns middleware that handles CORS headers.
// Credentials are only allowed for explicit origins, never for "*".
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allowCredentials := true
	for _, o := range allowedOrigins {
		if o == "*" {
			allowCredentials = false
			break
		}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", identity.SessionHeaderName},
		AllowCredentials: allowCredentials,
		MaxAge:           300,
	})
}
