package logging

import "context"

// RequestIDField is the log field under which the correlation id is emitted.
const RequestIDField = "request_id"

type requestIDKey struct{}

// WithRequestID returns a child context carrying the request correlation id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) (string, bool) {
	requestID, ok := ctx.Value(requestIDKey{}).(string)
	return requestID, ok && requestID != ""
}
