// Package middleware provides HTTP middleware shared across transports.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/echo-agent/echochamber/internal/logger"
)

const headerRequestID = "X-Request-ID"

// RequestID tags every request with an ID for log correlation. An incoming
// X-Request-ID header is honored so callers can trace across services;
// otherwise a UUID is generated. The ID lands in the request context and on
// the response header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}

		ctx := logger.WithRequestID(r.Context(), id)
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
