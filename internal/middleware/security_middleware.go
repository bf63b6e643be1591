package middleware

import "net/http"

// SecurityHeaders adds response headers suited to a JSON API that may be
// opened directly in a browser:
//
//   - X-Content-Type-Options: nosniff, so bodies are never re-interpreted.
//   - Cache-Control and Pragma: planner responses are per session and must
//     not be stored by browsers or proxies.
//   - Content-Security-Policy: the API serves no documents, so nothing may
//     load and no page may frame a response.
//   - Referrer-Policy: no-referrer, since session IDs appear in URLs.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Cache-Control", "no-store, no-cache, must-revalidate")
		h.Set("Pragma", "no-cache")
		h.Set("Cross-Origin-Opener-Policy", "same-origin")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}
