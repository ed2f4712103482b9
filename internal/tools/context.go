package tools

import "context"

type contextKey string

const userIDKey contextKey = "user_id"

// WithUserID sets the user whose profile and facts the memory tools
// read and write.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserIDFromContext extracts the user ID from the context, or fallback
// when none is set.
func UserIDFromContext(ctx context.Context, fallback string) string {
	if id, ok := ctx.Value(userIDKey).(string); ok && id != "" {
		return id
	}
	return fallback
}
