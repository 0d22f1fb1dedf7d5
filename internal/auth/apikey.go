// Package auth provides API key and JWT authentication for the HTTP API.
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// APIKeyHeader carries the static API key
	APIKeyHeader = "X-API-Key"

	// callerContextKey is the context key for storing caller identity
	callerContextKey contextKey = "caller"
)

// Caller identifies an authenticated API client
type Caller struct {
	Subject string
	Method  string // "api_key" or "jwt"
}

// Middleware authenticates requests with a static API key or a Bearer JWT.
// When no API key is configured authentication is disabled.
type Middleware struct {
	apiKey    string
	jwt       *JWTManager
	skipPaths map[string]bool
}

// NewMiddleware creates authentication middleware. jwtManager may be nil to
// disable Bearer token support.
func NewMiddleware(apiKey string, jwtManager *JWTManager) *Middleware {
	return &Middleware{
		apiKey: apiKey,
		jwt:    jwtManager,
		skipPaths: map[string]bool{
			"/healthz": true,
			"/readyz":  true,
			"/metrics": true,
		},
	}
}

// WithSkipPaths adds paths that bypass authentication
func (m *Middleware) WithSkipPaths(paths ...string) *Middleware {
	for _, p := range paths {
		m.skipPaths[p] = true
	}
	return m
}

// Handler wraps next with authentication
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.apiKey == "" || m.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		if key := strings.TrimSpace(r.Header.Get(APIKeyHeader)); key != "" {
			if subtle.ConstantTimeCompare([]byte(key), []byte(m.apiKey)) != 1 {
				unauthorized(w, "invalid API key")
				return
			}
			ctx := context.WithValue(r.Context(), callerContextKey, &Caller{Method: "api_key"})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		if m.jwt != nil {
			if token, ok := bearerToken(r); ok {
				claims, err := m.jwt.ValidateToken(token)
				if err != nil {
					unauthorized(w, "invalid token")
					return
				}
				caller := &Caller{Subject: claims.Subject, Method: "jwt"}
				ctx := context.WithValue(r.Context(), callerContextKey, caller)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
		}

		unauthorized(w, "missing credentials")
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// CallerFromContext extracts caller identity from context
func CallerFromContext(ctx context.Context) (*Caller, bool) {
	caller, ok := ctx.Value(callerContextKey).(*Caller)
	return caller, ok
}
