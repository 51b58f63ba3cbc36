package auth

import (
	"context"
	"slices"

	"github.com/crackersbazaar/api/internal/domain"
)

// Identity captures the authenticated principal extracted from a bearer token.
type Identity struct {
	UID      string
	Username string
	Email    string
	Role     domain.Role
}

// HasRole reports whether the identity holds any of the given roles.
func (i *Identity) HasRole(roles ...domain.Role) bool {
	if i == nil {
		return false
	}
	return slices.Contains(roles, i.Role)
}

// IsAdministrative reports whether the identity may use the admin surface.
func (i *Identity) IsAdministrative() bool {
	return i != nil && i.Role.IsAdministrative()
}

type contextKey struct{}

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(contextKey{}).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}
