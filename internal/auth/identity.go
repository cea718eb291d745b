// Package auth implements the credential and token lifecycle: bcrypt password
// hashing, signed access/refresh token issuance and verification, and the
// request middleware that establishes an authenticated identity.
package auth

import (
	"context"

	"github.com/google/uuid"
)

// Identity is the authenticated caller established by the guard middleware
// and consumed by downstream ownership checks.
type Identity struct {
	UserID uuid.UUID
	Email  string
}

// contextKey is the type for context keys to avoid collisions.
type contextKey string

const identityContextKey contextKey = "identity"

// WithIdentity returns a context carrying the given identity.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// IdentityFrom extracts the authenticated identity from the context.
// The second return is false for anonymous requests.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(Identity)
	return id, ok
}
