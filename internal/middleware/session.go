// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"context"
	"net/http"
	"strings"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// SessionKeyKey is the context key for the rate limit session key.
	SessionKeyKey ContextKey = "session_key"

	// SessionHeader carries a client-chosen session id when no client
	// secret is presented.
	SessionHeader = "X-Session-ID"
)

// SessionParser verifies a client secret and returns its session id.
type SessionParser interface {
	Parse(clientSecret string) (string, error)
}

// Session resolves the caller's session key. A verified bearer client
// secret wins, then the X-Session-ID header. Requests without either are
// let through with no key.
func Session(parser SessionParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ""
			if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
				if id, err := parser.Parse(token); err == nil {
					key = id
				}
			}
			if key == "" {
				if id := strings.TrimSpace(r.Header.Get(SessionHeader)); ValidateID(id) == nil {
					key = id
				}
			}

			if key != "" {
				r = r.WithContext(context.WithValue(r.Context(), SessionKeyKey, key))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// GetSessionKey gets the session key from context.
func GetSessionKey(ctx context.Context) string {
	if v, ok := ctx.Value(SessionKeyKey).(string); ok {
		return v
	}
	return ""
}
