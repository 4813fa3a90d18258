package logger

import "context"

// contextKey is a private type to prevent collisions with other context keys.
type contextKey struct{}

// connIDKey is the context key for the client connection ID.
var connIDKey = contextKey{}

// WithConnID returns a new context with the given connection ID stored.
// The server assigns one per accepted socket; handlers and stores log it.
func WithConnID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, connIDKey, id)
}

// ConnID extracts the connection ID from the context.
// Returns an empty string if none is set.
func ConnID(ctx context.Context) string {
	id, _ := ctx.Value(connIDKey).(string)
	return id
}
