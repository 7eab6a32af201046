package authz

import (
	"context"

	"github.com/roomify/apiserver/types"
)

type identityContextKey struct{}

// WithIdentity attaches the authenticated identity to the context.
func WithIdentity(ctx context.Context, identity types.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFrom extracts the authenticated identity from the context.
func IdentityFrom(ctx context.Context) (types.Identity, bool) {
	if ctx == nil {
		return types.Identity{}, false
	}
	identity, ok := ctx.Value(identityContextKey{}).(types.Identity)
	if !ok || identity.Subject == "" {
		return types.Identity{}, false
	}
	return identity, true
}
