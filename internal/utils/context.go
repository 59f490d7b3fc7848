package utils

import (
	"context"
)

type contextKey string

const ContextRequestIDKey contextKey = "requestID"

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextRequestIDKey, id)
}

func GetRequestIDFromContext(ctx context.Context) (string, bool) {
	id := ctx.Value(ContextRequestIDKey)
	idStr, ok := id.(string)
	return idStr, ok && idStr != ""
}
