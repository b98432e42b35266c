// Package auth resolves the acting identity for each request. Castellan
// does not authenticate credentials itself; it trusts bearer tokens issued
// by the platform's auth layer, resolves them to a session in Redis and
// loads the account's roles and administrative actions to build the need
// set the permission engine evaluates.
package auth

import (
	"context"

	"github.com/castellan-platform/castellan/internal/access"
)

type identityContextKey struct{}

// ContextWithIdentity stores the identity in context.
func ContextWithIdentity(ctx context.Context, identity access.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext extracts the identity from context, defaulting to the
// anonymous identity.
func IdentityFromContext(ctx context.Context) access.Identity {
	if identity, ok := ctx.Value(identityContextKey{}).(access.Identity); ok {
		return identity
	}
	return access.AnonymousIdentity()
}
