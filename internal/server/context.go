package server

import "context"

type contextKey int

// userIDKey is the only value the session gate places in the request context.
// Handlers never see the raw session token.
const userIDKey contextKey = iota

// withUserID returns a context carrying the authenticated user's id.
func withUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the authenticated user's id placed there by the
// session gate. ok is false on requests that did not pass the gate.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok
}
