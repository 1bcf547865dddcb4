package api

import "context"

type contextKey int

const ctxKeyUser contextKey = 0

// ContextWithUser returns a context carrying the authenticated user id.
func ContextWithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKeyUser, userID)
}

// UserFromContext returns the authenticated user id, or "".
func UserFromContext(ctx context.Context) string {
	u, _ := ctx.Value(ctxKeyUser).(string)
	return u
}
