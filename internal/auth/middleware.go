// Package auth guards the kepo serve endpoints.
//
// middleware.go - Bearer token authentication
//
// This file contains:
// - Tokens, the set of accepted bearer tokens keyed by secret
// - Middleware rejecting requests without a known token
//
// Tokens come from the serve section of kepoki.jsonc. With no tokens
// configured every request is let through.

package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/HyphaGroup/kepoki/internal/logger"
)

// Tokens maps bearer token secrets to token names
type Tokens map[string]string

// Enabled reports whether any token is configured
func (t Tokens) Enabled() bool { return len(t) > 0 }

// Lookup returns the name of the token matching secret
func (t Tokens) Lookup(secret string) (string, bool) {
	for known, name := range t {
		if subtle.ConstantTimeCompare([]byte(known), []byte(secret)) == 1 {
			return name, true
		}
	}
	return "", false
}

// Middleware creates HTTP middleware for bearer token authentication.
// Websocket clients that cannot set headers may pass ?token= instead.
func Middleware(tokens Tokens) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !tokens.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			secret, ok := bearer(r)
			if !ok {
				jsonError(w, "Authentication required (Bearer token)", http.StatusUnauthorized)
				return
			}

			name, ok := tokens.Lookup(secret)
			if !ok {
				logger.Info("Token validation failed for %s from %s", maskToken(secret), r.RemoteAddr)
				jsonError(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			ctx := WithPrincipal(r.Context(), &Principal{Name: name})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearer(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer "), true
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, true
	}
	return "", false
}

func jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": message})
}

func maskToken(secret string) string {
	if len(secret) <= 12 {
		return "***"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}
