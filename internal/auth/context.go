package auth

import (
	"context"
)

type contextKey string

const principalKey contextKey = "auth"

// Principal is the authenticated caller of a request
type Principal struct {
	// Name is the configured token name, safe to log
	Name string
}

// WithPrincipal adds the caller to the context
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// FromContext retrieves the caller from the context
func FromContext(ctx context.Context) *Principal {
	p, ok := ctx.Value(principalKey).(*Principal)
	if !ok {
		return nil
	}
	return p
}
