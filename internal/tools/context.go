package tools

import "context"

type contextKey string

const identityKey contextKey = "identity"

// WithIdentity adds the user identity to the context so handlers can
// attribute their work.
func WithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext extracts the user identity from the context.
// Returns "default" if not set.
func IdentityFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(identityKey).(string); ok && id != "" {
		return id
	}
	return "default"
}
