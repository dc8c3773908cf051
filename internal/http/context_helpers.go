package httpx

import "context"

// userIDKey is an unexported context key type to avoid collisions across packages.
// Centralized in this file so all handlers and middleware use the same key.
type userIDKey struct{}

// WithUserID returns a child context carrying the authenticated user's id.
// An empty id returns the original ctx unchanged.
func WithUserID(ctx context.Context, userID string) context.Context {
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserID returns the authenticated user id from context and whether one is set.
func UserID(ctx context.Context) (string, bool) {
	if id, ok := ctx.Value(userIDKey{}).(string); ok && id != "" {
		return id, true
	}
	return "", false
}
