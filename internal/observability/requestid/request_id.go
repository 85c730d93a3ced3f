package requestid

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const requestIDContextKey contextKey = "request_id"

// NewRequestID generates a new request ID.
// Format: req_<uuid4>, matching the id scheme of the surrounding
// back-office services so cross-service traces line up.
func NewRequestID() string {
	return "req_" + uuid.NewString()
}

// GetRequestID retrieves the request ID from context, or "".
func GetRequestID(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// SetRequestID stores the request ID in context.
func SetRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, id)
}
