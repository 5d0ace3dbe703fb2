package middleware

import (
	"io"
	"net/http"
)

// drain at most this much of an unread request body before closing it
const maxDrainBytes = 1 << 20

// DrainAndCloseRequest makes sure request bodies are read to the end and
// closed after the handler ran, so the underlying connections can be reused.
func DrainAndCloseRequest() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			if r.Body != nil {
				_, _ = io.Copy(io.Discard, io.LimitReader(r.Body, maxDrainBytes))
				_ = r.Body.Close()
			}
		})
	}
}
