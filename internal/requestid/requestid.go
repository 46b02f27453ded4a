package requestid

import (
	"context"

	"github.com/google/uuid"
)

const maxLen = 128

type ctxKey struct{}

// New generates a random UUID v4 request ID.
func New() string {
	return uuid.NewString()
}

// Sanitize returns id if it is safe to echo back and log, or a fresh ID.
// Accepted: 1 to 128 characters of [A-Za-z0-9._-].
func Sanitize(id string) string {
	if id == "" || len(id) > maxLen {
		return New()
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
		default:
			return New()
		}
	}
	return id
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns "" if ctx carries no request ID.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
