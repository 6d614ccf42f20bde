// internal/server/context.go
package server

import (
	"context"
)

type contextKey string

const (
	contextKeyUserID contextKey = "userID"
)

func withUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKeyUserID, userID)
}

func getUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(contextKeyUserID).(string)
	return userID, ok && userID != ""
}
