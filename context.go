package steris

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const (
	// RequestIDKey is the context key for the request correlation ID (uuid.UUID). The same
	// ID is attached to the transport logs of the request and any retry it triggers
	RequestIDKey contextKey = "RequestID"
	// SkipAuthKey is the context key for the flag (bool) to indicate that the request should
	// bypass bearer-token attachment even when its path is not an exempt auth endpoint
	SkipAuthKey contextKey = "SkipAuth"
)

// ContextWithRequestID returns a new request with a correlation ID in the context
func ContextWithRequestID(req *http.Request, requestID uuid.UUID) *http.Request {
	ctx := context.WithValue(req.Context(), RequestIDKey, requestID)
	return req.WithContext(ctx)
}

// RequestIDFromContext returns the correlation ID from the context if it exists
func RequestIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(RequestIDKey).(uuid.UUID)
	return id, ok
}

// ContextWithSkipAuth returns a new request flagged to skip authorization
func ContextWithSkipAuth(req *http.Request) *http.Request {
	ctx := context.WithValue(req.Context(), SkipAuthKey, true)
	return req.WithContext(ctx)
}

// SkipAuthFromContext returns true if the request is flagged to skip authorization
func SkipAuthFromContext(ctx context.Context) bool {
	skip, ok := ctx.Value(SkipAuthKey).(bool)
	return ok && skip
}
