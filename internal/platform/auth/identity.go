package auth

import (
	"context"
)

// Identity captures the authenticated shopper extracted from a verified Firebase credential.
type Identity struct {
	UID   string
	Email string
}

type contextKey string

const identityContextKey contextKey = "github.com/shopfront/api/internal/platform/auth/identity"

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}
