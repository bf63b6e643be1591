package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS lets the planner UI, served from allowedOrigins, call the API.
// Last-Event-ID is allowed so event streams can resume after a reconnect.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{"Accept", "Content-Type", "Last-Event-ID"},
		MaxAge:         300,
	})
}
