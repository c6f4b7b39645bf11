package session

import (
	"context"
	"strings"
)

// Identity is the authenticated caller attached to a request context.
type Identity struct {
	UserID   int64
	Username string
	Roles    []string
}

// HasRole reports whether the identity carries the role (case-insensitive).
func (id Identity) HasRole(role string) bool {
	role = strings.TrimSpace(strings.ToLower(role))
	if role == "" {
		return false
	}
	for _, r := range id.Roles {
		if strings.ToLower(r) == role {
			return true
		}
	}
	return false
}

type identityContextKey struct{}

// ContextWithIdentity attaches the authenticated caller to the context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the authenticated caller from the context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	if !ok || id.UserID == 0 {
		return Identity{}, false
	}
	return id, true
}
