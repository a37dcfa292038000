// Package middleware provides reusable HTTP middleware for the dispatch API.
package middleware

import (
	"net/http"
	"time"

	"github.com/rs/cors"
)

// corsMaxAge is how long a browser may cache a preflight for the dispatch
// board.
const corsMaxAge = 10 * time.Minute

// NewCORSHandler returns a middleware that lets the dispatch board at
// allowedOrigins call the API. Each origin is scheme and host with no
// trailing slash. The request ID is exposed so the board can quote it when
// a transition is rejected.
//
// Websocket upgrades are not CORS requests; their Origin is checked by the
// upgrader instead.
func NewCORSHandler(allowedOrigins []string) func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         int(corsMaxAge.Seconds()),
	})
	return func(next http.Handler) http.Handler {
		return c.Handler(next)
	}
}
