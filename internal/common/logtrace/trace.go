package logtrace

import (
	"context"
)

type requestIdKey struct{}

// WithRequestId returns a context carrying the given request ID.
func WithRequestId(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIdKey{}, id)
}

// RequestIdFromContext extracts the request ID from the context.
// Returns an empty string if the context is nil or if no request ID is found.
func RequestIdFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	r, ok := ctx.Value(requestIdKey{}).(string)
	if !ok {
		return ""
	}
	return r
}
