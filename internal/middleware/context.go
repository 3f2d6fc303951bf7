package middleware

import "context"

// contextKey defines a custom type for context keys to avoid collisions.
type contextKey string

const previewContextKey = contextKey("preview")

// IsPreview reports whether the request asked for draft content.
func IsPreview(ctx context.Context) bool {
	preview, ok := ctx.Value(previewContextKey).(bool)
	return ok && preview
}

// SetPreview marks the request context as a preview request.
func SetPreview(ctx context.Context, preview bool) context.Context {
	return context.WithValue(ctx, previewContextKey, preview)
}
