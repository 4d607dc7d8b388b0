package auth

import "context"

// Identity is the authenticated caller attached to the request context by the
// guard middleware.
type Identity struct {
	UserID string
	Email  string
}

type identityContextKey struct{}

func contextWithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext returns the authenticated identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(Identity)
	return identity, ok
}
