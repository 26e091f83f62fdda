// Package interceptors provides the Connect interceptors shared by all services:
// bearer-token authentication, request logging/metrics, and tracing.
package interceptors

import "context"

type contextKey string

const (
	userIDKey    contextKey = "user_id"
	userEmailKey contextKey = "user_email"
)

// Principal is the authenticated caller extracted from an access token
type Principal struct {
	UserID string
	Email  string
}

// WithPrincipal stores the caller in the context
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	ctx = context.WithValue(ctx, userIDKey, p.UserID)
	return context.WithValue(ctx, userEmailKey, p.Email)
}

// GetUserIDFromContext returns the authenticated user id
func GetUserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// GetUserEmailFromContext returns the authenticated user's email
func GetUserEmailFromContext(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(userEmailKey).(string)
	return email, ok && email != ""
}
