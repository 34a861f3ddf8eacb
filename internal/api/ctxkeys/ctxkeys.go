// Package ctxkeys holds the typed request-context keys shared by the HTTP
// middleware and the handlers that read them. Leaf package to avoid cycles.
package ctxkeys

import "context"

// Key is the named type for all API context keys.
type Key string

const (
	// Subject is the authenticated bridge client, from the token's sub claim.
	Subject Key = "subject"

	// Client is the optional client label carried in the token.
	Client Key = "client"
)

// WithValue adds a ctxkeys.Key value to the context.
func WithValue(ctx context.Context, key Key, value string) context.Context {
	return context.WithValue(ctx, key, value)
}

// String returns the value stored under key, or "".
func String(ctx context.Context, key Key) string {
	v, _ := ctx.Value(key).(string)
	return v
}
